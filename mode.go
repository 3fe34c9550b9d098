package wondfs

import "io/fs"

// FileType identifies what an inode represents. WondFS only distinguishes
// plain files from directories; there is no symlink, device or socket type.
type FileType uint8

const (
	TypeFile FileType = iota
	TypeDirectory
)

func (t FileType) String() string {
	if t == TypeDirectory {
		return "directory"
	}
	return "file"
}

// Mode reports the fs.FileMode a FileType corresponds to, for callers that
// want to present an inode through the standard io/fs interfaces.
func (t FileType) Mode() fs.FileMode {
	if t == TypeDirectory {
		return fs.ModeDir | 0755
	}
	return 0644
}
