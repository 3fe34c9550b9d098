package wondfs

import "encoding/binary"

var pitMapMagic = [4]byte{0x77, 0x77, 0xdd, 0xdd}
var pitSerialMagic = [4]byte{0x77, 0x77, 0xee, 0xee}

// pitTable is the in-memory mirror of the on-device PIT: page address ->
// owning inode number, 0 meaning unowned. Grounds kv/component/pit.rs.
type pitTable struct {
	pageNum int
	table   map[int]uint32
	dirty   bool
	isOp    bool
}

func newPitTable(pageNum int) *pitTable {
	return &pitTable{pageNum: pageNum, table: make(map[int]uint32)}
}

func (t *pitTable) initPage(addr int, ino uint32) {
	if _, ok := t.table[addr]; ok {
		panic("wondfs: PIT: init page already exists")
	}
	t.table[addr] = ino
}

func (t *pitTable) getPage(addr int) uint32 {
	ino, ok := t.table[addr]
	if !ok {
		panic("wondfs: PIT: no such page")
	}
	return ino
}

func (t *pitTable) setPage(addr int, ino uint32) {
	t.table[addr] = ino
	t.dirty = true
}

func (t *pitTable) deletePage(addr int) {
	if _, ok := t.table[addr]; !ok {
		panic("wondfs: PIT: delete: no such page")
	}
	delete(t.table, addr)
	t.dirty = true
}

func (t *pitTable) cleanPage(addr int) {
	if _, ok := t.table[addr]; ok {
		delete(t.table, addr)
		t.dirty = true
	}
}

func (t *pitTable) needSync() bool {
	if t.isOp {
		return false
	}
	return t.dirty
}

func (t *pitTable) markSynced() { t.dirty = false }
func (t *pitTable) beginOp()    { t.isOp = true }
func (t *pitTable) endOp()      { t.isOp = false }

// encode picks Map encoding when the table is sparse (density < 0.5 of the
// device's page count), else Serial, and prefixes the matching magic so a
// reader can auto-detect which one it's looking at.
func (t *pitTable) encode() []byte {
	density := float64(len(t.table)) / float64(t.pageNum)
	if density < 0.5 {
		return t.encodeMap()
	}
	return t.encodeSerial()
}

func (t *pitTable) encodeMap() []byte {
	buf := make([]byte, pagesPerBlk*pageSize4K)
	copy(buf[0:4], pitMapMagic[:])
	// Deterministic order: iterate by ascending page address rather than
	// Go's randomized map order, so re-encoding the same table is stable.
	addrs := sortedKeys(t.table)
	off := 8
	for _, addr := range addrs {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(addr))
		binary.BigEndian.PutUint32(buf[off+4:off+8], t.table[addr])
		off += 8
	}
	return buf
}

func (t *pitTable) encodeSerial() []byte {
	buf := make([]byte, pagesPerBlk*pageSize4K)
	copy(buf[0:4], pitSerialMagic[:])
	for addr, ino := range t.table {
		off := 8 + addr*4
		binary.BigEndian.PutUint32(buf[off:off+4], ino)
	}
	return buf
}

func sortedKeys(m map[int]uint32) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// decodePIT auto-detects Map vs Serial by magic and reconstructs the
// table. The Serial path skips unowned (ino == 0) slots; the Map path
// loads every pair up to the first all-zero (addr, ino) pair.
func decodePIT(image []byte, pageNum int) *pitTable {
	t := newPitTable(pageNum)
	switch {
	case image[0] == 0x77 && image[1] == 0x77 && image[2] == 0xdd && image[3] == 0xdd:
		off := 8
		for off+8 <= len(image) {
			addr := binary.BigEndian.Uint32(image[off : off+4])
			ino := binary.BigEndian.Uint32(image[off+4 : off+8])
			if addr == 0 && ino == 0 {
				break
			}
			t.initPage(int(addr), ino)
			off += 8
		}
	default: // serial, including an all-zero fresh image (magic absent)
		off := 8
		for addr := 0; off+4 <= len(image) && addr < pageNum; addr++ {
			ino := binary.BigEndian.Uint32(image[off : off+4])
			if ino != 0 {
				t.initPage(addr, ino)
			}
			off += 4
		}
	}
	return t
}
