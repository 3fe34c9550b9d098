package wondfs

import "testing"

// newTestFS formats a small fresh in-memory image and returns the mounted
// handle, for tests that need a real root inode and working KV façade.
func newTestFS(t *testing.T) *WondFS {
	t.Helper()
	dev := NewFakeDevice(32)
	fs, err := Mkfs(dev)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return fs
}

func TestMkfsRootDirectory(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()
	if root.Ino != RootIno() {
		t.Fatalf("root.Ino = %d, want %d", root.Ino, RootIno())
	}
	if root.FileType != TypeDirectory {
		t.Fatalf("root.FileType = %v, want directory", root.FileType)
	}
	if root.NLink != 2 {
		t.Errorf("root.NLink = %d, want 2 (self + \"..\")", root.NLink)
	}
	if ino, _, found := dirLookup(root, "."); !found || ino != root.Ino {
		t.Errorf("root should contain \".\" pointing at itself")
	}
	if ino, _, found := dirLookup(root, ".."); !found || ino != root.Ino {
		t.Errorf("root's \"..\" should point at itself")
	}
}

func TestCreateFileWriteReadRoundtrip(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()

	f, err := fs.Create(root, "hello.txt", TypeFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []byte("hello, wondfs")
	n, err := fs.WriteAt(f, 0, want)
	if err != nil || n != len(want) {
		t.Fatalf("WriteAt = (%d, %v), want (%d, nil)", n, err, len(want))
	}

	got := make([]byte, len(want))
	n, err = fs.ReadAt(f, 0, got)
	if err != nil || n != len(want) {
		t.Fatalf("ReadAt = (%d, %v), want (%d, nil)", n, err, len(want))
	}
	if string(got) != string(want) {
		t.Errorf("ReadAt returned %q, want %q", got, want)
	}

	found, err := fs.Find(root, "hello.txt")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Ino != f.Ino {
		t.Errorf("Find returned ino %d, want %d", found.Ino, f.Ino)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()
	if _, err := fs.Create(root, "dup", TypeFile); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := fs.Create(root, "dup", TypeFile); err != ErrEntryExist {
		t.Errorf("second Create = %v, want ErrEntryExist", err)
	}
}

func TestMkdirAndNestedLookup(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()

	sub, err := fs.Create(root, "sub", TypeDirectory)
	if err != nil {
		t.Fatalf("Create dir: %v", err)
	}
	if sub.NLink != 2 {
		t.Errorf("fresh subdirectory NLink = %d, want 2", sub.NLink)
	}
	// Create always bumps the parent's NLink once for the new name, plus
	// once more specifically for a directory child (accounting for the
	// child's ".." entry pointing back at it).
	if root.NLink != 4 {
		t.Errorf("parent NLink after mkdir = %d, want 4 (2 initial + 2 from mkdir)", root.NLink)
	}

	if ino, _, found := dirLookup(sub, ".."); !found || ino != root.Ino {
		t.Errorf("sub's \"..\" should point at root")
	}
}

func TestUnlinkRemovesEntryAndDeletesOnZeroNlink(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()
	f, _ := fs.Create(root, "gone.txt", TypeFile)
	ino := f.Ino

	if err := fs.Unlink(root, "gone.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fs.Find(root, "gone.txt"); err != ErrEntryNotFound {
		t.Errorf("Find after unlink = %v, want ErrEntryNotFound", err)
	}
	if _, ok := fs.kv.getInodeMetadata(ino); ok {
		t.Errorf("inode %d metadata should be gone once n_link reaches zero", ino)
	}
}

func TestUnlinkNonEmptyDirectoryFails(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()
	sub, _ := fs.Create(root, "sub", TypeDirectory)
	fs.Create(sub, "child.txt", TypeFile)

	if err := fs.Unlink(root, "sub"); err != ErrDirNotEmpty {
		t.Errorf("Unlink non-empty dir = %v, want ErrDirNotEmpty", err)
	}
}

func TestLinkHardLinksFileNotDirectory(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootInode()
	f, _ := fs.Create(root, "a.txt", TypeFile)

	if err := fs.Link(root, "b.txt", f); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if f.NLink != 2 {
		t.Errorf("NLink after hard link = %d, want 2", f.NLink)
	}

	sub, _ := fs.Create(root, "sub", TypeDirectory)
	if err := fs.Link(root, "c", sub); err != ErrIsDir {
		t.Errorf("Link on a directory = %v, want ErrIsDir", err)
	}
}

func TestWithInodeTableCapacityIsHonored(t *testing.T) {
	dev := NewFakeDevice(32)
	fs, err := Mkfs(dev, WithInodeTableCapacity(3))
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	root := fs.RootInode() // occupies slot 1 of 3
	defer func() {
		if recover() == nil {
			t.Fatalf("allocating past the configured capacity should panic")
		}
	}()
	fs.Create(root, "a", TypeFile) // slot 2
	fs.Create(root, "b", TypeFile) // slot 3
	fs.Create(root, "c", TypeFile) // no spare slot left: must panic
}

func TestMountRecoversState(t *testing.T) {
	dev := NewFakeDevice(32)
	fs1, err := Mkfs(dev)
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	root := fs1.RootInode()
	f, err := fs1.Create(root, "kept.txt", TypeFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs1.WriteAt(f, 0, []byte("durable")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := fs1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fs2, err := Mount(dev)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	root2 := fs2.RootInode()
	found, err := fs2.Find(root2, "kept.txt")
	if err != nil {
		t.Fatalf("Find after remount: %v", err)
	}
	buf := make([]byte, len("durable"))
	if _, err := fs2.ReadAt(found, 0, buf); err != nil {
		t.Fatalf("ReadAt after remount: %v", err)
	}
	if string(buf) != "durable" {
		t.Errorf("ReadAt after remount = %q, want %q", buf, "durable")
	}
}
