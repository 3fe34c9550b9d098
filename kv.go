package wondfs

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
)

func encodeJSON(v interface{}) []byte {
	buf, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return buf
}

func decodeJSON(buf []byte, v interface{}) error {
	return json.Unmarshal(buf, v)
}

// KVManager is the storage core's central façade: it owns the buffer
// cache, BIT, PIT, GC block table and LSM tree, and routes "m:"/"d:"/"e:"
// prefixed keys to the right handling. Grounds kv/kv_manager.rs +
// kv/kv_helper.rs + kv/kv.rs, collapsed into one Go type the way the
// teacher keeps its whole on-disk model in one package-level struct
// (Superblock) rather than splitting it across micro-types.
type KVManager struct {
	sb    *Superblock
	cache *pageCache
	bit   *bitTable
	pit   *pitTable
	gc    *GCManager
	lsm   *LSMTree

	maxIno uint32
}

// newKVManager wires the subsystems together over a fresh (unmounted)
// device layout; callers must still call mount (or mkfs) before use.
func newKVManager(sb *Superblock, dev Device) *KVManager {
	cache := newPageCache(dev, sb.cacheCap)
	kv := &KVManager{
		sb:    sb,
		cache: cache,
		gc:    newGCManager(sb.mainSizeBlocks()),
	}
	kv.lsm = newLSMTree(cache, kv.kvBlockBase(), sb.kvSizeBlocks(), sb.memtableThreshold)
	return kv
}

func (kv *KVManager) bitBlockBase() int  { return kv.sb.bitOffsetBlocks() }
func (kv *KVManager) pitBlockBase() int  { return kv.sb.pitOffsetBlocks() }
func (kv *KVManager) kvBlockBase() int   { return kv.sb.kvOffsetBlocks() }
func (kv *KVManager) mainBlockBase() int { return kv.sb.mainOffsetBlocks() }

// mkfs initializes a fresh device: writes the super-stat, a blank BIT/PIT
// pair, and leaves the KV region ready for the LSM tree's build() scan.
func mkfs(dev Device, opts ...Option) (*KVManager, error) {
	sb, err := NewSuperblock(opts...)
	if err != nil {
		return nil, err
	}
	writePage(dev, 0, sb.encode())

	kv := newKVManager(sb, dev)
	kv.bit = newBitTable()
	for b := 0; b < sb.mainSizeBlocks(); b++ {
		kv.bit.initSegment(b, bitSegment{})
	}
	kv.pit = newPitTable(sb.mainSizeBlocks() * sb.pagesPerBlock)
	pingPongSync(kv.cache, kv.bitBlockBase(), kv.bit.encode(sb.mainSizeBlocks()))
	pingPongSync(kv.cache, kv.pitBlockBase(), kv.pit.encode())
	kv.maxIno = 0
	return kv, nil
}

// mount loads the super-stat, recovers BIT/PIT via the ping-pong
// discipline, rebuilds the GC block table from the recovered BIT, and
// lets the LSM tree's SSTableManager scan the KV region for files — the
// order spec.md §4.7 requires.
func mount(dev Device) (*KVManager, error) {
	sbPage := readPage(dev, 0)
	sb, err := decodeSuperblock(sbPage)
	if err != nil {
		return nil, err
	}
	kv := newKVManager(sb, dev)

	bitImage := pingPongMount(kv.cache, kv.bitBlockBase())
	kv.bit = decodeBIT(bitImage, sb.mainSizeBlocks())

	pitImage := pingPongMount(kv.cache, kv.pitBlockBase())
	kv.pit = decodePIT(pitImage, sb.mainSizeBlocks()*sb.pagesPerBlock)

	for blockNo := 0; blockNo < sb.mainSizeBlocks(); blockNo++ {
		seg := kv.bit.segment(blockNo)
		kv.gc.blockInfo(blockNo).eraseCount = seg.eraseCount
		kv.gc.blockInfo(blockNo).lastEraseTime = seg.lastEraseTime
		kv.gc.blockInfo(blockNo).averageAge = seg.averageAge
		for offset := 0; offset < sb.pagesPerBlock; offset++ {
			addr := blockNo*sb.pagesPerBlock + offset
			if seg.getPage(offset) {
				kv.gc.setPage(addr, pageState{status: PageDirty})
			}
		}
	}
	for addr, ino := range kv.pit.table {
		kv.gc.setPage(addr, pageState{status: PageBusy, ino: ino})
	}

	var maxIno uint32
	for _, key := range kv.lsm.sstables.keysOfPrefix("m:") {
		var ino uint32
		fmt.Sscanf(key, "m:%d", &ino)
		if ino > maxIno {
			maxIno = ino
		}
	}
	kv.maxIno = maxIno
	log.Printf("wondfs: mounted: %d SSTable files, max_ino %d", len(kv.lsm.sstables.files), kv.maxIno)
	return kv, nil
}

// Sync forces the LSM memtable to flush to a new SSTable file regardless
// of how far it is from its size threshold, so every m:/d:/e: write made
// so far is readable by a subsequent mount's SSTableManager.build() scan.
// This is LSM persistence (§4.4), not the write-ahead journaling spec.md's
// Non-goals exclude.
func (kv *KVManager) Sync() {
	kv.lsm.flush()
}

func (kv *KVManager) beginOp() {
	kv.bit.beginOp()
	kv.pit.beginOp()
}

func (kv *KVManager) endOp() {
	kv.bit.endOp()
	kv.pit.endOp()
	kv.syncBIT()
	kv.syncPIT()
}

func (kv *KVManager) syncBIT() {
	if kv.bit.needSync() {
		pingPongSync(kv.cache, kv.bitBlockBase(), kv.bit.encode(kv.sb.mainSizeBlocks()))
		kv.bit.markSynced()
	}
}

func (kv *KVManager) syncPIT() {
	if kv.pit.needSync() {
		pingPongSync(kv.cache, kv.pitBlockBase(), kv.pit.encode())
		kv.pit.markSynced()
	}
}

// markPageUsed marks a main-area page as owned by ino in both BIT and PIT
// and persists the change (unless inside a begin/end-op bracket).
func (kv *KVManager) markPageUsed(addr int, ino uint32) {
	kv.bit.setPage(addr, true)
	kv.pit.setPage(addr, ino)
	kv.gc.setPage(addr, pageState{status: PageBusy, ino: ino})
	kv.syncBIT()
	kv.syncPIT()
}

// markPageDirty marks a main-area page as logically freed (not yet
// erased) in both BIT and PIT.
func (kv *KVManager) markPageDirty(addr int) {
	kv.bit.setPage(addr, true)
	kv.pit.deletePage(addr)
	kv.gc.setPage(addr, pageState{status: PageDirty})
	kv.syncBIT()
	kv.syncPIT()
}

// findWritePos retries garbage collection until a run of `size` clean
// pages is available, then returns its page address. Exhausting the
// entire main area without making progress is reported as NoDeviceSpace
// rather than looping forever (the original's forward_gc was an empty
// stub; spec.md §4.5 explicitly asks for a working retry here).
func (kv *KVManager) findWritePos(size int) int {
	for attempt := 0; attempt < kv.gc.blockTable.size()+1; attempt++ {
		if addr := kv.gc.findWritePos(size); addr >= 0 {
			return addr
		}
		kv.runGC()
	}
	panic(ErrNoDeviceSpace)
}

func (kv *KVManager) findWritePosExcept(size, exclude int) int {
	return kv.gc.findWritePosExcept(size, exclude)
}

// runGC plans one compaction event and applies it: move events are
// executed (copying live data forward and repointing PIT) before the
// terminal erase, so a crash mid-compaction always leaves PIT pointing
// at either the old or the new location, never neither.
func (kv *KVManager) runGC() {
	plan := kv.gc.newGCEvent(kv.sb.gcStrategy)
	for _, ev := range plan {
		if ev.IsErase {
			kv.applyErase(ev.BlockNo)
			continue
		}
		kv.applyMove(ev)
	}
}

func (kv *KVManager) applyMove(ev GCEvent) {
	kv.beginOp()
	for i := 0; i < ev.Size; i++ {
		o, d := ev.OAddress+i, ev.DAddress+i
		data := kv.cache.read(o)
		kv.cache.write(d, data)
		kv.markPageUsed(d, ev.Ino)
	}
	kv.endOp()
}

func (kv *KVManager) applyErase(blockNo int) {
	kv.cache.erase(blockNo)
	kv.gc.eraseBlock(blockNo)
	seg := kv.bit.segment(blockNo)
	*seg = bitSegment{
		eraseCount:    kv.gc.blockInfo(blockNo).eraseCount,
		lastEraseTime: kv.gc.blockInfo(blockNo).lastEraseTime,
	}
	for offset := 0; offset < kv.sb.pagesPerBlock; offset++ {
		addr := blockNo*kv.sb.pagesPerBlock + offset
		kv.pit.cleanPage(addr)
	}
	kv.bit.dirty = true
	kv.pit.dirty = true
	kv.syncBIT()
	kv.syncPIT()
}

// --- m:/d:/e: façade ---

func keyKind(key string) byte {
	if len(key) < 2 || key[1] != ':' {
		panic("wondfs: KV: malformed key " + key)
	}
	return key[0]
}

// get dispatches to the inline m:/e: semantics or the d: data-object read
// path of spec.md §4.5.
func (kv *KVManager) get(key string, off, length int) ([]byte, bool) {
	if keyKind(key) == 'd' {
		raw, ok := kv.lsm.get([]byte(key))
		if !ok {
			return nil, false
		}
		obj, err := decodeDataObjectValue(raw)
		if err != nil {
			panic(err)
		}
		return kv.readDataObject(&obj, off, length), true
	}
	return kv.getInline(key, off, length)
}

// set dispatches to the inline m:/e: overlay semantics or the d:
// data-object set algorithm. Returns the new total size, meaningful only
// for "d:" keys (set_inode_data uses it to refresh stored metadata).
func (kv *KVManager) set(key string, off, length int, value []byte, ino uint32) int {
	if keyKind(key) == 'd' {
		return kv.setDataObject(key, off, length, value, ino)
	}
	return kv.setInline(key, off, length, value)
}

// delete dispatches to the inline m:/e: splice semantics or the d:
// data-object delete algorithm. Returns the new total size (see set).
func (kv *KVManager) delete(key string, off, length int, ino uint32) int {
	if keyKind(key) == 'd' {
		return kv.deleteDataObject(key, off, length, ino)
	}
	return kv.deleteInline(key, off, length)
}

// getInline/setInline/deleteInline implement the Meta ("m:") and Extra
// ("e:") families of spec.md §4.5: inline byte vectors with whole-value
// or range semantics depending on len.
func (kv *KVManager) getInline(key string, off, length int) ([]byte, bool) {
	value, ok := kv.lsm.get([]byte(key))
	if !ok {
		return nil, false
	}
	if length == 0 {
		return value, true
	}
	return value[off : off+length], true
}

func (kv *KVManager) setInline(key string, off, length int, value []byte) int {
	prev, ok := kv.lsm.get([]byte(key))
	if !ok || length == 0 {
		kv.lsm.put([]byte(key), value)
		return len(value)
	}
	next := append([]byte(nil), prev...)
	if len(next) >= off+length {
		copy(next[off:off+length], value)
	} else {
		next = next[:off]
		next = append(next, value...)
	}
	kv.lsm.put([]byte(key), next)
	return len(next)
}

func (kv *KVManager) deleteInline(key string, off, length int) int {
	prev, ok := kv.lsm.get([]byte(key))
	if !ok {
		return 0
	}
	if length == 0 {
		kv.lsm.delete([]byte(key))
		return 0
	}
	next := append([]byte(nil), prev[:off]...)
	if off+length < len(prev) {
		next = append(next, prev[off+length:]...)
	}
	kv.lsm.put([]byte(key), next)
	return len(next)
}

// --- inode helpers (spec.md §4.5 "Inode helpers") ---

// InodeMetadata is the persistent record stored inline under "m:{ino}".
// Grounds kv/kv.rs's InodeMetadata.
type InodeMetadata struct {
	FileType            FileType `json:"file_type"`
	Ino                 uint32   `json:"ino"`
	Size                uint32   `json:"size"`
	NLink               uint8    `json:"n_link"`
	LastAccessed        uint32   `json:"last_accessed"`
	LastModified        uint32   `json:"last_modified"`
	LastMetadataChanged uint32   `json:"last_metadata_changed"`
}

func metaKey(ino uint32) string { return fmt.Sprintf("m:%d", ino) }
func dataKey(ino uint32) string { return fmt.Sprintf("d:%d", ino) }
func extraKey(key string) string { return "e:" + key }

// allocateInode assigns the next inode number and stores meta's encoded
// form under "m:{ino}".
func (kv *KVManager) allocateInode(meta *InodeMetadata) uint32 {
	kv.maxIno++
	meta.Ino = kv.maxIno
	kv.set(metaKey(kv.maxIno), 0, 0, encodeJSON(meta), 0)
	return kv.maxIno
}

// deleteInode removes both the metadata and data-object keys for ino.
func (kv *KVManager) deleteInode(ino uint32) {
	kv.delete(metaKey(ino), 0, 0, 0)
	if _, ok := kv.lsm.get([]byte(dataKey(ino))); ok {
		kv.lsm.delete([]byte(dataKey(ino)))
	}
}

func (kv *KVManager) getInodeMetadata(ino uint32) (InodeMetadata, bool) {
	raw, ok := kv.get(metaKey(ino), 0, 0)
	if !ok {
		return InodeMetadata{}, false
	}
	var meta InodeMetadata
	if err := decodeJSON(raw, &meta); err != nil {
		panic(err)
	}
	return meta, true
}

func (kv *KVManager) setInodeMetadata(ino uint32, meta *InodeMetadata) {
	kv.set(metaKey(ino), 0, 0, encodeJSON(meta), 0)
}

func (kv *KVManager) getInodeData(ino uint32, off, length int) ([]byte, bool) {
	return kv.get(dataKey(ino), off, length)
}

// setInodeData writes the inode's data object and refreshes its stored
// size from the returned new total.
func (kv *KVManager) setInodeData(ino uint32, off, length int, value []byte) int {
	meta, ok := kv.getInodeMetadata(ino)
	if !ok {
		panic(ErrEntryNotFound)
	}
	size := kv.set(dataKey(ino), off, length, value, meta.Ino)
	meta.Size = uint32(size)
	kv.setInodeMetadata(ino, &meta)
	return size
}

func (kv *KVManager) deleteInodeData(ino uint32, off, length int) int {
	meta, ok := kv.getInodeMetadata(ino)
	if !ok {
		panic(ErrEntryNotFound)
	}
	size := kv.delete(dataKey(ino), off, length, meta.Ino)
	meta.Size = uint32(size)
	kv.setInodeMetadata(ino, &meta)
	return size
}

func (kv *KVManager) getExtraValue(key string) ([]byte, bool) {
	return kv.get(extraKey(key), 0, 0)
}

func (kv *KVManager) setExtraValue(key string, value []byte) {
	kv.set(extraKey(key), 0, 0, value, 0)
}

// keysOfPrefix is a small helper the mount path uses to recompute max_ino
// by scanning every SSTable file for "m:" keys.
func (m *sstableManager) keysOfPrefix(prefix string) []string {
	seen := make(map[string]bool)
	ids := make([]int, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var keys []string
	for _, id := range ids {
		for k := range m.decodeFile(id) {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
