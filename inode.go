package wondfs

const rootIno = 2
const inodeTableCapacity = 30

// RootIno reports the fixed root directory inode number (fs/consts.rs's
// ROOT_INO), for callers outside the package that need to recognize it.
func RootIno() uint32 { return rootIno }

// Inode is the runtime, in-memory handle for one on-disk inode. Grounds
// inode/inode.rs's Inode/InodeStat, flattened into one struct since Go
// has no need for the Rust source's separate RwLock-guarded stat record.
type Inode struct {
	fs    *WondFS
	valid bool

	FileType            FileType
	Ino                 uint32
	Size                uint32
	RefCnt              uint8
	NLink               uint8
	LastAccessed        uint32
	LastModified        uint32
	LastMetadataChanged uint32
}

// readAll reads the whole file content.
func (ip *Inode) readAll() []byte {
	return ip.read(0, int(ip.Size))
}

func (ip *Inode) read(off, length int) []byte {
	if !ip.valid {
		panic("wondfs: Inode: read on invalid inode")
	}
	data, _ := ip.fs.kv.getInodeData(ip.Ino, off, length)
	return data
}

func (ip *Inode) write(off, length int, buf []byte) {
	if !ip.valid {
		panic("wondfs: Inode: write on invalid inode")
	}
	size := ip.fs.kv.setInodeData(ip.Ino, off, length, buf)
	ip.Size = uint32(size)
}

func (ip *Inode) truncate(off, length int) {
	if !ip.valid {
		panic("wondfs: Inode: truncate on invalid inode")
	}
	size := ip.fs.kv.deleteInodeData(ip.Ino, off, length)
	ip.Size = uint32(size)
}

// delete removes the inode's metadata and data entirely; the slot itself
// is reclaimed by the inode table once ref_cnt also reaches zero.
func (ip *Inode) delete() {
	if !ip.valid {
		panic("wondfs: Inode: delete on invalid inode")
	}
	ip.fs.kv.deleteInode(ip.Ino)
	ip.valid = false
}

func (ip *Inode) metadata() InodeMetadata {
	if !ip.valid {
		panic("wondfs: Inode: metadata on invalid inode")
	}
	return InodeMetadata{
		FileType:            ip.FileType,
		Ino:                 ip.Ino,
		Size:                ip.Size,
		NLink:               ip.NLink,
		LastAccessed:        ip.LastAccessed,
		LastModified:        ip.LastModified,
		LastMetadataChanged: ip.LastMetadataChanged,
	}
}

// modifyStat replaces the runtime stat fields wholesale and persists the
// corresponding metadata record.
func (ip *Inode) modifyStat(m InodeMetadata) {
	if !ip.valid {
		panic("wondfs: Inode: modify_stat on invalid inode")
	}
	ip.FileType = m.FileType
	ip.Size = m.Size
	ip.NLink = m.NLink
	ip.LastAccessed = m.LastAccessed
	ip.LastModified = m.LastModified
	ip.LastMetadataChanged = m.LastMetadataChanged
	meta := ip.metadata()
	ip.fs.kv.setInodeMetadata(ip.Ino, &meta)
}

func (ip *Inode) persistMetadata() {
	meta := ip.metadata()
	ip.fs.kv.setInodeMetadata(ip.Ino, &meta)
}

func (ip *Inode) nlinksInc() {
	if !ip.valid {
		panic("wondfs: Inode: nlinks_inc on invalid inode")
	}
	ip.NLink++
	ip.persistMetadata()
}

func (ip *Inode) nlinksDec() {
	if !ip.valid {
		panic("wondfs: Inode: nlinks_dec on invalid inode")
	}
	if ip.NLink == 0 {
		panic("wondfs: Inode: nlinks_dec below zero")
	}
	ip.NLink--
	if ip.NLink == 0 {
		ip.delete()
		return
	}
	ip.persistMetadata()
}

// InodeTable is the fixed-capacity, ref-counted inode cache. Grounds
// inode/inode_manager.rs's InodeManager.
type InodeTable struct {
	fs     *WondFS
	buffer []*Inode
}

func newInodeTable(fs *WondFS) *InodeTable {
	cap := fs.kv.sb.inodeTableCap
	if cap <= 0 {
		cap = inodeTableCapacity
	}
	t := &InodeTable{fs: fs, buffer: make([]*Inode, cap)}
	for i := range t.buffer {
		t.buffer[i] = &Inode{fs: fs}
	}
	return t
}

// iAlloc reuses a ref_cnt==0 slot, bootstraps a fresh inode via the KV
// façade (file_type=File, n_link=1) and returns it with ref_cnt=1.
func (t *InodeTable) iAlloc() *Inode {
	slotIdx := -1
	for i, ip := range t.buffer {
		if ip.RefCnt == 0 {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		panic("wondfs: InodeTable: alloc: no spare slot")
	}
	meta := InodeMetadata{FileType: TypeFile, NLink: 1}
	ino := t.fs.kv.allocateInode(&meta)
	inode := &Inode{
		fs:       t.fs,
		valid:    true,
		FileType: TypeFile,
		Ino:      ino,
		NLink:    1,
		RefCnt:   1,
	}
	t.buffer[slotIdx] = inode
	return inode
}

// iGet returns a cached live inode (bumping ref_cnt) or loads ino's
// metadata into a free slot. Returns nil if ino has no stored metadata.
func (t *InodeTable) iGet(ino uint32) *Inode {
	spareIdx := -1
	for i, ip := range t.buffer {
		if ip.RefCnt > 0 && ip.Ino == ino {
			ip.RefCnt++
			return ip
		}
		if spareIdx == -1 && ip.RefCnt == 0 {
			spareIdx = i
		}
	}
	if spareIdx == -1 {
		panic("wondfs: InodeTable: get: no spare slot")
	}
	meta, ok := t.fs.kv.getInodeMetadata(ino)
	if !ok {
		return nil
	}
	inode := &Inode{
		fs:                  t.fs,
		valid:               true,
		FileType:            meta.FileType,
		Ino:                 ino,
		Size:                meta.Size,
		RefCnt:              1,
		NLink:               meta.NLink,
		LastAccessed:        meta.LastAccessed,
		LastModified:        meta.LastModified,
		LastMetadataChanged: meta.LastMetadataChanged,
	}
	t.buffer[spareIdx] = inode
	return inode
}

// iPut decrements ref_cnt; at zero the slot becomes invalid, but the
// inode itself is not deleted (deletion is driven by n_link reaching
// zero in nlinksDec).
func (t *InodeTable) iPut(ip *Inode) {
	if ip.RefCnt > 0 {
		ip.RefCnt--
	}
	if ip.RefCnt == 0 {
		ip.valid = false
	}
}
