package wondfs

import "log"

const (
	hotAgeKey  = 60 * 60 * 24
	coldAgeKey = 60 * 60 * 24 * 14
)

// GCEvent is a single step of a GC plan: either a page-range move (applied
// before the block is reclaimed) or the terminal block erase.
type GCEvent struct {
	Index     int
	IsErase   bool
	BlockNo   int // valid when IsErase
	Ino       uint32
	Size      int
	OAddress  int
	DAddress  int
}

// GCManager owns the BlockTable and plans compaction events. Grounds
// kv/gc/gc_manager.rs, including its age-bucket computation that — per
// spec.md's open design note — is deliberately never consulted by victim
// selection; all three GCStrategy values resolve to the same scan.
type GCManager struct {
	blockTable  *BlockTable
	needSync    bool
	hotBlocks   []int
	normalBlocks []int
	coldBlocks  []int
}

func newGCManager(blockCount int) *GCManager {
	return &GCManager{
		blockTable: newBlockTable(blockCount),
		needSync:   true,
	}
}

// findWritePos scans blocks in order and returns the page address of the
// first block with enough reserved room, or -1 if none qualifies.
func (m *GCManager) findWritePos(size int) int {
	for _, b := range m.blockTable.table {
		if b.reservedSize >= size {
			return b.blockNo*pagesPerBlk + b.reservedOffset
		}
	}
	return -1
}

// findWritePosExcept is findWritePos but skips one block, used during
// compaction so a move destination never lands back in the victim block.
func (m *GCManager) findWritePosExcept(size int, exclude int) int {
	for _, b := range m.blockTable.table {
		if b.blockNo == exclude {
			continue
		}
		if b.reservedSize >= size {
			return b.blockNo*pagesPerBlk + b.reservedOffset
		}
	}
	return -1
}

func (m *GCManager) getPage(addr int) pageState        { return m.blockTable.getPage(addr) }
func (m *GCManager) setPage(addr int, s pageState)      { m.blockTable.setPage(addr, s) }
func (m *GCManager) blockInfo(blockNo int) *BlockInfo    { return m.blockTable.blockInfo(blockNo) }
func (m *GCManager) eraseBlock(blockNo int)              { m.blockTable.eraseBlock(blockNo) }

// newGCEvent selects a victim block and returns its Move events followed
// by one terminal Erase event.
func (m *GCManager) newGCEvent(strategy GCStrategy) []GCEvent {
	m.sync()
	blockNo := m.chooseGCBlock(strategy)
	log.Printf("wondfs: gc: reclaiming block %d (strategy %v)", blockNo, strategy)
	return m.generateGCGroup(blockNo)
}

// sync buckets blocks by average_age on first use. The buckets are
// computed once (later calls return immediately) and never read by
// chooseGCBlock below — see the open design note in DESIGN.md.
func (m *GCManager) sync() {
	if !m.needSync {
		return
	}
	for i, b := range m.blockTable.table {
		switch {
		case b.averageAge > coldAgeKey:
			m.coldBlocks = append(m.coldBlocks, i)
		case b.averageAge < hotAgeKey:
			m.hotBlocks = append(m.hotBlocks, i)
		default:
			m.normalBlocks = append(m.normalBlocks, i)
		}
	}
	m.needSync = false
}

// chooseGCBlock picks the block minimizing utilize_ratio. All three
// strategies run the identical scan: this is not an oversight to quietly
// fix, spec.md documents it as a preserved degeneracy. When every block's
// ratio is +Inf (no dirty pages anywhere yet), the loop's strict "<"
// comparison never fires and block 0 is returned by default.
func (m *GCManager) chooseGCBlock(strategy GCStrategy) int {
	switch strategy {
	case GCForward, GCBackward, GCGreedy:
		victim := m.blockTable.blockInfo(0)
		for _, b := range m.blockTable.table {
			if b.utilizeRatio() < victim.utilizeRatio() {
				victim = b
			}
		}
		return victim.blockNo
	default:
		return 0
	}
}

// generateGCGroup coalesces consecutive same-ino Busy runs within the
// victim block into single moves, each routed to a destination obtained
// via findWritePosExcept, then appends the terminal Erase event.
func (m *GCManager) generateGCGroup(blockNo int) []GCEvent {
	type run struct {
		ino     uint32
		size    int
		oAddr   int
	}
	var runs []run
	var current *run

	start := blockNo * pagesPerBlk
	end := start + pagesPerBlk
	for addr := start; addr < end; addr++ {
		st := m.blockTable.getPage(addr)
		if st.status == PageBusy {
			if current != nil && current.ino == st.ino {
				current.size++
				continue
			}
			if current != nil {
				runs = append(runs, *current)
			}
			current = &run{ino: st.ino, size: 1, oAddr: addr}
			continue
		}
		if current != nil {
			runs = append(runs, *current)
			current = nil
		}
	}
	if current != nil {
		runs = append(runs, *current)
	}

	events := make([]GCEvent, 0, len(runs)+1)
	for i, r := range runs {
		dAddr := m.findWritePosExcept(r.size, blockNo)
		events = append(events, GCEvent{
			Index:    i,
			Ino:      r.ino,
			Size:     r.size,
			OAddress: r.oAddr,
			DAddress: dAddr,
		})
	}
	events = append(events, GCEvent{
		Index:   len(runs),
		IsErase: true,
		BlockNo: blockNo,
	})
	return events
}
