package wondfs

import "sort"

var sstableMagic = [4]byte{0x22, 0x22, 0xff, 0xff}

type sstableFile struct {
	startBlock int
	blockSpan  int
}

// sstableManager owns a contiguous block range of the device and indexes
// the SSTable files that live in it. Grounds kv/lsm_tree/sstable_manager.rs;
// unlike its streaming per-page BlockIter/FileIter, lookups here decode a
// whole file into an in-memory map on first access and cache it — files
// are at most a handful of blocks (≤512 KiB each), so buffering one is
// cheap and removes the need to hand-roll an incremental page-crossing
// state machine in Go.
type sstableManager struct {
	cache        *pageCache
	blockID      int
	blockNum     int
	curBlockID   int
	maxFileID    int
	files        map[int]sstableFile // file_id -> location
	occupied     map[int]bool        // block_no -> occupied
	decoded      map[int]map[string][]byte
}

func newSSTableManager(cache *pageCache, blockID, blockNum int) *sstableManager {
	return &sstableManager{
		cache:      cache,
		blockID:    blockID,
		blockNum:   blockNum,
		curBlockID: blockID,
		files:      make(map[int]sstableFile),
		occupied:   make(map[int]bool),
		decoded:    make(map[int]map[string][]byte),
	}
}

// build scans the region for the SSTable header magic, registers each
// file found and advances the cursor to the first unoccupied block.
// Panics if the region is entirely full, per spec.md §4.4.
func (m *sstableManager) build() {
	index := m.blockID
	for index < m.blockID+m.blockNum {
		page := m.cache.read(index * pagesPerBlk)
		if page[0] != sstableMagic[0] || page[1] != sstableMagic[1] ||
			page[2] != sstableMagic[2] || page[3] != sstableMagic[3] {
			index++
			continue
		}
		blockCount := int(page[4])
		fileID := int(page[5])<<16 | int(page[6])<<8 | int(page[7])
		m.files[fileID] = sstableFile{startBlock: index, blockSpan: blockCount}
		if fileID > m.maxFileID {
			m.maxFileID = fileID
		}
		for i := 0; i < blockCount; i++ {
			m.occupied[index+i] = true
		}
		index += blockCount
	}
	for i := m.blockID; i < m.blockID+m.blockNum; i++ {
		if m.occupied[i] {
			if i == m.blockID+m.blockNum-1 {
				panic("wondfs: sstableManager: build: region exhausted")
			}
			continue
		}
		m.curBlockID = i
		break
	}
}

// get iterates files in reverse file_id order (newest first), decoding
// (and memoizing) each file lazily.
func (m *sstableManager) get(key []byte) ([]byte, bool) {
	ids := make([]int, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for _, id := range ids {
		table := m.decodeFile(id)
		if v, ok := table[string(key)]; ok {
			return v, true
		}
	}
	return nil, false
}

func (m *sstableManager) decodeFile(fileID int) map[string][]byte {
	if table, ok := m.decoded[fileID]; ok {
		return table
	}
	loc := m.files[fileID]
	buf := make([]byte, 0, loc.blockSpan*pagesPerBlk*pageSize4K)
	for i := 0; i < loc.blockSpan; i++ {
		for p := 0; p < pagesPerBlk; p++ {
			buf = append(buf, m.cache.read((loc.startBlock+i)*pagesPerBlk+p)...)
		}
	}
	entries, _ := decodeBlockEntries(buf[12:])
	table := make(map[string][]byte, len(entries))
	for _, e := range entries {
		table[string(e.key)] = e.value
	}
	m.decoded[fileID] = table
	return table
}

// flush allocates the current block, writes the header, the framed
// records, and the EOF sentinel, then advances the cursor to the next
// unoccupied block. Entries are assumed (by the threshold discipline in
// lsm.go) to fit within a single block.
func (m *sstableManager) flush(entries []lsmEntry) {
	m.maxFileID++
	fileID := m.maxFileID
	m.files[fileID] = sstableFile{startBlock: m.curBlockID, blockSpan: 1}
	m.occupied[m.curBlockID] = true

	var content []byte
	content = append(content, sstableMagic[:]...)
	content = append(content, byte(1), byte(fileID>>16), byte(fileID>>8), byte(fileID))
	content = append(content, 0, 0, 0, 0) // reserved, pads the header to 12 bytes
	for _, e := range entries {
		content = append(content, encodeEntry(e.key, e.value)...)
	}
	content = append(content, encodeEntry([]byte(eofMarker), []byte(eofMarker))...)

	pageCount := (len(content) + pageSize4K - 1) / pageSize4K
	if pageCount == 0 {
		pageCount = 1
	}
	if pageCount > pagesPerBlk {
		panic("wondfs: sstableManager: flush: entries do not fit in one block")
	}
	for p := 0; p < pageCount; p++ {
		page := make([]byte, pageSize4K)
		start := p * pageSize4K
		end := start + pageSize4K
		if end > len(content) {
			end = len(content)
		}
		copy(page, content[start:end])
		m.cache.write(m.curBlockID*pagesPerBlk+p, page)
	}
	m.updateCurBlockID()
}

func (m *sstableManager) updateCurBlockID() {
	if m.curBlockID == m.blockID+m.blockNum-1 {
		m.curBlockID = m.blockID
	} else {
		m.curBlockID++
	}
	loops := 0
	for m.occupied[m.curBlockID] {
		m.curBlockID++
		loops++
		if loops == m.blockNum {
			panic("wondfs: sstableManager: flush: region exhausted")
		}
	}
}
