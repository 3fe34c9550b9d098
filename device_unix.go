package wondfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a regular file standing in for a raw
// flash block device. WondFS is single-owner per spec.md §5, so Open takes
// an exclusive advisory lock for the lifetime of the mount; a second mount
// attempt against the same image fails loudly instead of silently
// corrupting it.
type FileDevice struct {
	f *os.File
}

// OpenFileDevice opens (without creating) an existing image file.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f}, nil
}

// CreateFileDevice creates a new, zero-filled image file of blockNum
// blocks and opens it under the same exclusive lock as OpenFileDevice.
func CreateFileDevice(path string, blockNum int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	size := int64(blockNum) * pagesPerBlk * pageSize4K
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

// Sync flushes data (not metadata) to the backing file; pingPongSync calls
// it after a BIT/PIT ping-pong sync completes so a crash right after doesn't
// lose the just-written copy.
func (d *FileDevice) Sync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

// Close releases the exclusive lock and closes the backing file.
func (d *FileDevice) Close() error {
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}
