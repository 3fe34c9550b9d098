package wondfs

import "sync"

// Metadata mirrors the VFS-facing stat structure spec.md §6 names.
type Metadata struct {
	Ino                 uint32
	Size                uint32
	BlockSize           uint32
	NLinks              uint8
	Type                FileType
	LastAccessed        uint32
	LastModified        uint32
	LastMetadataChanged uint32
}

// Info reports the filesystem-wide summary spec.md §6's fs.info names.
type Info struct {
	BlockSize   int
	NameMax     int
	TotalBlocks int
	FreeBlocks  int
	AvailBlocks int
}

// WondFS is the top-level filesystem handle, wiring the KV façade and
// inode table behind a single global lock. Grounds fs/filesystem.rs's
// WondFS, collapsing its Arc<RwLock<_>>-per-subsystem design into one
// mutex per spec.md §5's single-owner-thread concurrency model: lock
// acquisition inside an operation is strictly façade → KV → LSM → cache,
// never re-entrant, so one mutex over the whole façade is sufficient and
// matches the model exactly rather than under- or over-serializing it.
type WondFS struct {
	mu     sync.Mutex
	dev    Device
	kv     *KVManager
	inodes *InodeTable
}

// Mkfs formats a fresh device and returns a mounted filesystem handle
// with the root directory (ino 2, per fs/consts.rs's ROOT_INO) already
// created. There is no original mkfs routine to ground literally — the
// source's i_alloc path is only ever exercised from an already-running
// filesystem — so max_ino is primed to 1 before allocating root,
// landing it on ino 2 as the invariant requires.
func Mkfs(dev Device, opts ...Option) (*WondFS, error) {
	kv, err := mkfs(dev, opts...)
	if err != nil {
		return nil, err
	}
	fs := &WondFS{dev: dev, kv: kv}
	fs.inodes = newInodeTable(fs)

	kv.maxIno = 1
	root := fs.inodes.iAlloc()
	root.FileType = TypeDirectory
	root.persistMetadata()
	dirLink(root, root.Ino, ".")
	dirLink(root, root.Ino, "..")
	root.NLink = 2
	root.persistMetadata()
	fs.inodes.iPut(root)
	fs.kv.Sync()
	return fs, nil
}

// Mount opens an existing device image.
func Mount(dev Device) (*WondFS, error) {
	kv, err := mount(dev)
	if err != nil {
		return nil, err
	}
	fs := &WondFS{dev: dev, kv: kv}
	fs.inodes = newInodeTable(fs)
	return fs, nil
}

// Sync flushes the LSM memtable to an on-device SSTable, so every write
// made through this handle so far survives a later Mount.
func (fs *WondFS) Sync() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.kv.Sync()
}

// Close flushes pending writes before the caller discards the handle.
// The underlying Device is left open; callers that opened it (e.g. via
// OpenFileDevice) are responsible for closing it themselves.
func (fs *WondFS) Close() error {
	fs.Sync()
	return nil
}

// RootInode returns the filesystem root (ino 2).
func (fs *WondFS) RootInode() *Inode {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.inodes.iGet(rootIno)
}

func (fs *WondFS) Info() Info {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	total := fs.kv.sb.blockNum * fs.kv.sb.pagesPerBlock
	return Info{
		BlockSize:   pageSize4K,
		NameMax:     maxNameLen,
		TotalBlocks: total,
		FreeBlocks:  total,
		AvailBlocks: total,
	}
}

func metadataOf(ip *Inode) Metadata {
	return Metadata{
		Ino:                 ip.Ino,
		Size:                ip.Size,
		BlockSize:           pageSize4K,
		NLinks:              ip.NLink,
		Type:                ip.FileType,
		LastAccessed:        ip.LastAccessed,
		LastModified:        ip.LastModified,
		LastMetadataChanged: ip.LastMetadataChanged,
	}
}

// ReadAt reads from a file inode; directories are not readable this way.
func (fs *WondFS) ReadAt(ip *Inode, off int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if ip.FileType != TypeFile {
		return 0, ErrNotFile
	}
	data := ip.read(off, len(buf))
	n := copy(buf, data)
	return n, nil
}

func (fs *WondFS) WriteAt(ip *Inode, off int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if ip.FileType != TypeFile {
		return 0, ErrNotFile
	}
	ip.write(off, len(buf), buf)
	return len(buf), nil
}

func (fs *WondFS) Resize(ip *Inode, length int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if ip.FileType != TypeFile {
		return ErrNotFile
	}
	ip.truncate(int(ip.Size)-length, length)
	return nil
}

func (fs *WondFS) Metadata(ip *Inode) Metadata { return metadataOf(ip) }

func (fs *WondFS) SetMetadata(ip *Inode, m Metadata) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip.LastAccessed = m.LastAccessed
	ip.LastModified = m.LastModified
	ip.LastMetadataChanged = m.LastMetadataChanged
	ip.persistMetadata()
}

// Create makes a new entry named name of the given type inside dir.
func (fs *WondFS) Create(dir *Inode, name string, fileType FileType) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return nil, ErrNotDir
	}
	if dir.NLink == 0 {
		return nil, ErrDirRemoved
	}
	if _, _, found := dirLookup(dir, name); found {
		return nil, ErrEntryExist
	}

	var child *Inode
	switch fileType {
	case TypeFile:
		child = fs.inodes.iAlloc()
	case TypeDirectory:
		child = fs.inodes.iAlloc()
		child.FileType = TypeDirectory
		child.persistMetadata()
		dirLink(child, child.Ino, ".")
		dirLink(child, dir.Ino, "..")
	default:
		return nil, ErrInvalidParam
	}

	dirLink(dir, child.Ino, name)
	dir.nlinksInc()
	if fileType == TypeDirectory {
		child.nlinksInc()
		dir.nlinksInc()
	}
	return child, nil
}

// Link adds a new name for an existing file inode inside dir. Directories
// cannot be hard-linked (IsDir), and only inodes from the same
// filesystem may be linked (NotSameFs).
func (fs *WondFS) Link(dir *Inode, name string, other *Inode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return ErrNotDir
	}
	if dir.NLink == 0 {
		return ErrDirRemoved
	}
	if _, _, found := dirLookup(dir, name); found {
		return ErrEntryExist
	}
	if other.fs != fs {
		return ErrNotSameFs
	}
	if other.FileType == TypeDirectory {
		return ErrIsDir
	}
	dirLink(dir, other.Ino, name)
	other.nlinksInc()
	return nil
}

// Unlink removes name from dir. "." and ".." can never be unlinked, and
// a non-empty directory (size > 28, i.e. more than just "." and "..")
// cannot be removed.
func (fs *WondFS) Unlink(dir *Inode, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return ErrNotDir
	}
	if dir.NLink == 0 {
		return ErrDirRemoved
	}
	if name == "." || name == ".." {
		return ErrIsDir
	}
	ino, _, found := dirLookup(dir, name)
	if !found {
		return ErrEntryNotFound
	}
	child := fs.inodes.iGet(ino)
	if child == nil {
		return ErrEntryNotFound
	}
	if child.FileType == TypeDirectory && child.Size > 28 {
		fs.inodes.iPut(child)
		return ErrDirNotEmpty
	}
	child.nlinksDec()
	if child.FileType == TypeDirectory {
		child.nlinksDec()
		dir.nlinksDec()
	}
	dirUnlink(dir, ino, name)
	fs.inodes.iPut(child)
	return nil
}

// Move renames oldName in dir to newName in target, overwriting any
// existing entry at the destination name (unlinking it first).
func (fs *WondFS) Move(dir *Inode, oldName string, target *Inode, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return ErrNotDir
	}
	if dir.NLink == 0 {
		return ErrDirRemoved
	}
	if oldName == "." || oldName == ".." {
		return ErrIsDir
	}
	if target.fs != fs {
		return ErrNotSameFs
	}
	if target.FileType != TypeDirectory {
		return ErrNotDir
	}
	if target.NLink == 0 {
		return ErrDirRemoved
	}

	if ino, _, found := dirLookup(target, newName); found {
		dirUnlink(target, ino, newName)
		existing := fs.inodes.iGet(ino)
		if existing != nil {
			existing.nlinksDec()
			fs.inodes.iPut(existing)
		}
	}

	ino, _, found := dirLookup(dir, oldName)
	if !found {
		return ErrEntryNotFound
	}
	if dir.Ino == target.Ino {
		dirUnlink(dir, ino, oldName)
		dirLink(dir, ino, newName)
		return nil
	}
	dirUnlink(dir, ino, oldName)
	dirLink(target, ino, newName)
	moved := fs.inodes.iGet(ino)
	if moved != nil && moved.FileType == TypeDirectory {
		dir.nlinksDec()
		target.nlinksInc()
	}
	if moved != nil {
		fs.inodes.iPut(moved)
	}
	return nil
}

// GetInode looks up an inode directly by number, for tools that address
// inodes outside of a directory traversal (e.g. wfsutil ls <ino>).
func (fs *WondFS) GetInode(ino uint32) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip := fs.inodes.iGet(ino)
	if ip == nil {
		return nil, ErrEntryNotFound
	}
	return ip, nil
}

// Find looks up name inside dir.
func (fs *WondFS) Find(dir *Inode, name string) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return nil, ErrNotDir
	}
	ino, _, found := dirLookup(dir, name)
	if !found {
		return nil, ErrEntryNotFound
	}
	child := fs.inodes.iGet(ino)
	if child == nil {
		return nil, ErrEntryNotFound
	}
	return child, nil
}

// GetEntry returns the i-th directory entry's name.
func (fs *WondFS) GetEntry(dir *Inode, i int) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return "", ErrNotDir
	}
	if i >= int(dir.Size)/dirRecordSize {
		return "", ErrEntryNotFound
	}
	entries := decodeDirStream(dir.readAll())
	return entries[i].name, nil
}

// GetEntryWithMetadata returns the i-th directory entry's name and the
// metadata of the inode it refers to.
func (fs *WondFS) GetEntryWithMetadata(dir *Inode, i int) (Metadata, string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if dir.FileType != TypeDirectory {
		return Metadata{}, "", ErrNotDir
	}
	if i >= int(dir.Size)/dirRecordSize {
		return Metadata{}, "", ErrEntryNotFound
	}
	entries := decodeDirStream(dir.readAll())
	e := entries[i]
	child := fs.inodes.iGet(e.ino)
	if child == nil {
		return Metadata{}, "", ErrEntryNotFound
	}
	m := metadataOf(child)
	fs.inodes.iPut(child)
	return m, e.name, nil
}

// IOControl and Mmap are explicitly out of scope.
func (fs *WondFS) IOControl(uint32, uintptr) error { return ErrIOCTLError }
func (fs *WondFS) Mmap() error                     { return ErrNotSupported }
