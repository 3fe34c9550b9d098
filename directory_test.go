package wondfs

import "testing"

func TestDirEntryEncodeDecodeRoundtrip(t *testing.T) {
	e := dirEntry{ino: 7, name: "foo"}
	buf := encodeDirEntry(e)
	if len(buf) != dirRecordSize {
		t.Fatalf("encoded record is %d bytes, want %d", len(buf), dirRecordSize)
	}
	got := decodeDirEntry(buf)
	if got != e {
		t.Errorf("decodeDirEntry(encodeDirEntry(e)) = %+v, want %+v", got, e)
	}
}

func TestDecodeDirEntryPanicsOnEmptyName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("decoding an all-zero name should panic")
		}
	}()
	decodeDirEntry(make([]byte, dirRecordSize))
}

func TestDecodeDirStreamPanicsOnMisalignedSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("a stream whose length isn't a multiple of the record size should panic")
		}
	}()
	decodeDirStream(make([]byte, dirRecordSize+1))
}

// TestDirLinkAppendsPastLiveEntriesEvenWithAnEarlierZeroInoRecord pins down
// the spec.md §9 fix: the append offset comes from dir.Size, not from
// scanning for the first ino==0 record — a record that encodes ino==0
// mid-stream (here "z", linked before the live entries) must never be
// mistaken for the end of the stream.
func TestDirLinkAppendsPastLiveEntriesEvenWithAnEarlierZeroInoRecord(t *testing.T) {
	fs := newTestFS(t)
	dir := fs.RootInode()

	dirLink(dir, 0, "z")
	dirLink(dir, 11, "a")
	dirLink(dir, 12, "b")
	dirLink(dir, 13, "c")

	if ino, _, found := dirLookup(dir, "a"); !found || ino != 11 {
		t.Fatalf("lookup a = (%d, %v), want (11, true)", ino, found)
	}
	if ino, _, found := dirLookup(dir, "c"); !found || ino != 13 {
		t.Fatalf("lookup c = (%d, %v), want (13, true)", ino, found)
	}
	wantSize := uint32(6 * dirRecordSize) // ".", "..", "z", "a", "b", "c"
	if dir.Size != wantSize {
		t.Errorf("dir.Size = %d, want %d", dir.Size, wantSize)
	}
}

func TestDirLinkIsIdempotentOnDuplicateName(t *testing.T) {
	fs := newTestFS(t)
	dir := fs.RootInode()
	sizeBefore := dir.Size
	dirLink(dir, 99, ".")
	if dir.Size != sizeBefore {
		t.Errorf("re-linking an existing name must not append a new record")
	}
}

func TestDirUnlinkRemovesEntry(t *testing.T) {
	fs := newTestFS(t)
	dir := fs.RootInode()
	dirLink(dir, 11, "a")
	dirUnlink(dir, 11, "a")
	if _, _, found := dirLookup(dir, "a"); found {
		t.Errorf("a should be gone after unlink")
	}
}
