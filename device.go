package wondfs

import (
	"fmt"
	"io"
)

const (
	pageSize4K  = 4096
	pagesPerBlk = 128
)

// Device is the host contract: a byte-addressable block device. The core
// only ever issues whole-page reads/writes and whole-block erases through
// the helpers below; a Device implementation just has to honor ReaderAt/
// WriterAt's "full transfer or error" contract.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

// readPage fetches the 4096-byte page at the given page address.
func readPage(dev Device, addr int) []byte {
	buf := make([]byte, pageSize4K)
	n, err := dev.ReadAt(buf, int64(addr)*pageSize4K)
	if err != nil || n != pageSize4K {
		panic(fmt.Sprintf("wondfs: cannot read page %d from device: %v", addr, err))
	}
	return buf
}

// writePage programs a page. The device contract requires the destination
// to be clean (erased, reads as all zero); violating that is a programmer
// error and panics, it is never a recoverable condition.
func writePage(dev Device, addr int, data []byte) {
	if len(data) != pageSize4K {
		panic(fmt.Sprintf("wondfs: writePage: wrong page size %d", len(data)))
	}
	if !isClean(readPage(dev, addr)) {
		panic(fmt.Sprintf("wondfs: write at not clean page %d", addr))
	}
	n, err := dev.WriteAt(data, int64(addr)*pageSize4K)
	if err != nil || n != pageSize4K {
		panic(fmt.Sprintf("wondfs: cannot write page %d to device: %v", addr, err))
	}
}

// eraseBlock resets all 128 pages of a block to all-zero (clean).
func eraseBlock(dev Device, blockNo int) {
	zero := make([]byte, pageSize4K)
	start := blockNo * pagesPerBlk
	for addr := start; addr < start+pagesPerBlk; addr++ {
		n, err := dev.WriteAt(zero, int64(addr)*pageSize4K)
		if err != nil || n != pageSize4K {
			panic(fmt.Sprintf("wondfs: cannot erase block %d: %v", blockNo, err))
		}
	}
}

func isClean(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// FakeDevice is an in-memory Device, grounds driver/fake_disk.rs: a flat
// slice of pages, panics on out-of-range access.
type FakeDevice struct {
	pages [][]byte
}

// NewFakeDevice allocates an all-zero device of blockNum blocks.
func NewFakeDevice(blockNum int) *FakeDevice {
	pages := make([][]byte, blockNum*pagesPerBlk)
	for i := range pages {
		pages[i] = make([]byte, pageSize4K)
	}
	return &FakeDevice{pages: pages}
}

func (d *FakeDevice) ReadAt(p []byte, off int64) (int, error) {
	addr, rem := d.locate(off, len(p))
	copy(p, d.pages[addr][rem:rem+len(p)])
	return len(p), nil
}

func (d *FakeDevice) WriteAt(p []byte, off int64) (int, error) {
	addr, rem := d.locate(off, len(p))
	copy(d.pages[addr][rem:rem+len(p)], p)
	return len(p), nil
}

// WriteTo streams the device's full page contents out in address order,
// for wfsutil mkfs to dump a freshly formatted in-memory image to disk.
func (d *FakeDevice) WriteTo(w io.Writer) error {
	for _, page := range d.pages {
		if _, err := w.Write(page); err != nil {
			return err
		}
	}
	return nil
}

// locate only supports the whole-page-aligned access pattern the core
// issues; anything else is a programmer error.
func (d *FakeDevice) locate(off int64, n int) (addr int, rem int) {
	if off < 0 || n != pageSize4K || off%pageSize4K != 0 {
		panic("wondfs: FakeDevice: unsupported access pattern")
	}
	addr = int(off / pageSize4K)
	if addr < 0 || addr >= len(d.pages) {
		panic("wondfs: FakeDevice: address out of range")
	}
	return addr, 0
}
