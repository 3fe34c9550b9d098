package wondfs

import "encoding/binary"

const superMagic uint32 = 0x3bf7444d

// GCStrategy selects which of the three (intentionally indistinguishable,
// see gc.go) victim-selection policies new_gc_event uses.
type GCStrategy int

const (
	GCForward GCStrategy = iota
	GCBackward
	GCGreedy
)

// Superblock is the process-wide, read-only-after-mount descriptor of the
// device layout. Grounds kv/component/super_block.rs field-for-field; all
// *_block_num fields there become the *Blocks fields here, in blocks, with
// derived region offsets (also in blocks) exposed by the accessor methods.
type Superblock struct {
	blockNum       int
	superBlocks    int
	bitBlocks      int
	pitBlocks      int
	journalBlocks  int
	kvBlocks       int
	mainBlocks     int
	reservedBlocks int
	pageSize       int
	pagesPerBlock  int

	memtableThreshold int
	inodeTableCap     int
	cacheCap          int
	gcStrategy        GCStrategy
}

// defaultSuperblock is the 32-block/1-2-2-1-4-18-4 shape spec.md §3 names.
func defaultSuperblock() *Superblock {
	return &Superblock{
		blockNum:          32,
		superBlocks:       1,
		bitBlocks:         2,
		pitBlocks:         2,
		journalBlocks:     1,
		kvBlocks:          4,
		mainBlocks:        18,
		reservedBlocks:    4,
		pageSize:          pageSize4K,
		pagesPerBlock:     pagesPerBlk,
		memtableThreshold: pagesPerBlk * pageSize4K,
		inodeTableCap:     30,
		cacheCap:          1024,
		gcStrategy:        GCForward,
	}
}

// NewSuperblock applies Options over the default layout, then validates
// that the region sizes sum to the block count, as spec.md §3 requires.
func NewSuperblock(opts ...Option) (*Superblock, error) {
	sb := defaultSuperblock()
	for _, opt := range opts {
		if err := opt(sb); err != nil {
			return nil, err
		}
	}
	if sum := sb.superBlocks + sb.bitBlocks + sb.pitBlocks + sb.journalBlocks +
		sb.kvBlocks + sb.mainBlocks + sb.reservedBlocks; sum != sb.blockNum {
		return nil, ErrInvalidParam
	}
	return sb, nil
}

// encode produces the super-stat page: magic then ten big-endian u32
// fields (eleven u32 words in all) in the exact order spec.md §6 pins down.
func (sb *Superblock) encode() []byte {
	buf := make([]byte, pageSize4K)
	fields := []uint32{
		superMagic,
		uint32(sb.blockNum),
		uint32(sb.superBlocks),
		uint32(sb.bitBlocks),
		uint32(sb.pitBlocks),
		uint32(sb.journalBlocks),
		uint32(sb.kvBlocks),
		uint32(sb.mainBlocks),
		uint32(sb.reservedBlocks),
		uint32(sb.pageSize),
		uint32(sb.pagesPerBlock),
	}
	for i, v := range fields {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	return buf
}

// decodeSuperblock reads block 0's page 0 and reconstructs the layout. A
// magic mismatch is a fatal precondition failure: the image is not a
// WondFS device, there is nothing sensible to do but abort the mount.
func decodeSuperblock(page []byte) (*Superblock, error) {
	if len(page) < 44 {
		return nil, ErrInvalidParam
	}
	get := func(i int) uint32 { return binary.BigEndian.Uint32(page[i*4 : i*4+4]) }
	if get(0) != superMagic {
		return nil, ErrBadMagic
	}
	sb := &Superblock{
		blockNum:          int(get(1)),
		superBlocks:       int(get(2)),
		bitBlocks:         int(get(3)),
		pitBlocks:         int(get(4)),
		journalBlocks:     int(get(5)),
		kvBlocks:          int(get(6)),
		mainBlocks:        int(get(7)),
		reservedBlocks:    int(get(8)),
		pageSize:          int(get(9)),
		pagesPerBlock:     int(get(10)),
		memtableThreshold: pagesPerBlk * pageSize4K,
		inodeTableCap:     30,
		cacheCap:          1024,
		gcStrategy:        GCForward,
	}
	return sb, nil
}

func (sb *Superblock) bitOffsetBlocks() int      { return sb.superBlocks }
func (sb *Superblock) bitSizeBlocks() int        { return sb.bitBlocks }
func (sb *Superblock) pitOffsetBlocks() int      { return sb.superBlocks + sb.bitBlocks }
func (sb *Superblock) pitSizeBlocks() int        { return sb.pitBlocks }
func (sb *Superblock) journalOffsetBlocks() int {
	return sb.superBlocks + sb.bitBlocks + sb.pitBlocks
}
func (sb *Superblock) journalSizeBlocks() int { return sb.journalBlocks }
func (sb *Superblock) kvOffsetBlocks() int {
	return sb.superBlocks + sb.bitBlocks + sb.pitBlocks + sb.journalBlocks
}
func (sb *Superblock) kvSizeBlocks() int { return sb.kvBlocks }
func (sb *Superblock) mainOffsetBlocks() int {
	return sb.superBlocks + sb.bitBlocks + sb.pitBlocks + sb.journalBlocks + sb.kvBlocks
}
func (sb *Superblock) mainSizeBlocks() int { return sb.mainBlocks }
func (sb *Superblock) reservedOffsetBlocks() int {
	return sb.superBlocks + sb.bitBlocks + sb.pitBlocks + sb.journalBlocks + sb.kvBlocks + sb.mainBlocks
}
func (sb *Superblock) reservedSizeBlocks() int { return sb.reservedBlocks }
