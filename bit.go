package wondfs

import "encoding/binary"

var bitMagic = [4]byte{0x55, 0x55, 0xdd, 0xdd}

const bitRecordSize = 32

// bitSegment is the 32-byte per-block BIT record: spec.md §3's BIT entry.
// usedMap is stored MSB-first byte order (page 0 is the top bit of byte 0),
// matching the encode/decode layout kv/component/bit.rs uses.
type bitSegment struct {
	usedMap       [16]byte
	lastEraseTime uint32
	eraseCount    uint32
	averageAge    uint32
	reserved      [4]byte
}

func (s *bitSegment) getPage(offset int) bool {
	byteIdx, bitIdx := offset/8, 7-offset%8
	return s.usedMap[byteIdx]&(1<<uint(bitIdx)) != 0
}

func (s *bitSegment) setPage(offset int, used bool) {
	byteIdx, bitIdx := offset/8, 7-offset%8
	if used {
		s.usedMap[byteIdx] |= 1 << uint(bitIdx)
	} else {
		s.usedMap[byteIdx] &^= 1 << uint(bitIdx)
	}
}

// bitTable is the in-memory mirror of the on-device BIT. Grounds
// kv/component/bit.rs: one RW table, a dirty flag, and an op-in-progress
// flag gating need_sync.
type bitTable struct {
	table map[int]*bitSegment
	dirty bool
	isOp  bool
}

func newBitTable() *bitTable {
	return &bitTable{table: make(map[int]*bitSegment)}
}

func (t *bitTable) initSegment(blockNo int, seg bitSegment) {
	if _, ok := t.table[blockNo]; ok {
		panic("wondfs: BIT: init block already exists")
	}
	s := seg
	t.table[blockNo] = &s
}

func (t *bitTable) segment(blockNo int) *bitSegment {
	s, ok := t.table[blockNo]
	if !ok {
		panic("wondfs: BIT: no such block")
	}
	return s
}

func (t *bitTable) getPage(addr int) bool {
	return t.segment(addr / pagesPerBlk).getPage(addr % pagesPerBlk)
}

func (t *bitTable) setPage(addr int, used bool) {
	t.segment(addr / pagesPerBlk).setPage(addr%pagesPerBlk, used)
	t.dirty = true
}

func (t *bitTable) getBlock(blockNo int) [pagesPerBlk]bool {
	var res [pagesPerBlk]bool
	seg := t.segment(blockNo)
	for i := 0; i < pagesPerBlk; i++ {
		res[i] = seg.getPage(i)
	}
	return res
}

func (t *bitTable) setBlock(blockNo int, status [pagesPerBlk]bool) {
	for i, v := range status {
		t.setPage(blockNo*pagesPerBlk+i, v)
	}
}

func (t *bitTable) lastEraseTime(blockNo int) uint32 { return t.segment(blockNo).lastEraseTime }
func (t *bitTable) setLastEraseTime(blockNo int, v uint32) {
	t.segment(blockNo).lastEraseTime = v
	t.dirty = true
}

func (t *bitTable) eraseCount(blockNo int) uint32 { return t.segment(blockNo).eraseCount }
func (t *bitTable) setEraseCount(blockNo int, v uint32) {
	t.segment(blockNo).eraseCount = v
	t.dirty = true
}

func (t *bitTable) averageAge(blockNo int) uint32 { return t.segment(blockNo).averageAge }
func (t *bitTable) setAverageAge(blockNo int, v uint32) {
	t.segment(blockNo).averageAge = v
	t.dirty = true
}

func (t *bitTable) needSync() bool {
	if t.isOp {
		return false
	}
	return t.dirty
}

func (t *bitTable) markSynced() { t.dirty = false }
func (t *bitTable) beginOp()    { t.isOp = true }
func (t *bitTable) endOp()      { t.isOp = false }

// encode lays out one block's worth of BIT records: magic at byte 0, then
// a 32-byte record per block starting at 32 + 32*block_no.
func (t *bitTable) encode(blockCount int) []byte {
	buf := make([]byte, pagesPerBlk*pageSize4K)
	copy(buf[0:4], bitMagic[:])
	for blockNo := 0; blockNo < blockCount; blockNo++ {
		seg, ok := t.table[blockNo]
		if !ok {
			continue
		}
		off := 32 + blockNo*bitRecordSize
		copy(buf[off:off+16], seg.usedMap[:])
		binary.BigEndian.PutUint32(buf[off+16:off+20], seg.lastEraseTime)
		binary.BigEndian.PutUint32(buf[off+20:off+24], seg.eraseCount)
		binary.BigEndian.PutUint32(buf[off+24:off+28], seg.averageAge)
		copy(buf[off+28:off+32], seg.reserved[:])
	}
	return buf
}

// decodeBIT reconstructs a bitTable from an encoded image. The magic is
// not re-checked here: pingPongMount already decided which copy is
// authoritative, and an all-zero image (a fresh mkfs) is legitimate.
func decodeBIT(image []byte, blockCount int) *bitTable {
	t := newBitTable()
	for blockNo := 0; blockNo < blockCount; blockNo++ {
		off := 32 + blockNo*bitRecordSize
		var seg bitSegment
		copy(seg.usedMap[:], image[off:off+16])
		seg.lastEraseTime = binary.BigEndian.Uint32(image[off+16 : off+20])
		seg.eraseCount = binary.BigEndian.Uint32(image[off+20 : off+24])
		seg.averageAge = binary.BigEndian.Uint32(image[off+24 : off+28])
		copy(seg.reserved[:], image[off+28:off+32])
		t.initSegment(blockNo, seg)
	}
	return t
}
