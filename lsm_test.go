package wondfs

import "testing"

func newTestLSM(t *testing.T, threshold int) *LSMTree {
	t.Helper()
	dev := NewFakeDevice(8)
	cache := newPageCache(dev, 64)
	lsm := newLSMTree(cache, 0, 8, threshold)
	return lsm
}

func TestLSMPutGetDelete(t *testing.T) {
	lsm := newTestLSM(t, pagesPerBlk*pageSize4K)

	lsm.put([]byte("m:1"), []byte("hello"))
	v, ok := lsm.get([]byte("m:1"))
	if !ok || string(v) != "hello" {
		t.Fatalf("get after put = (%q, %v), want (hello, true)", v, ok)
	}

	lsm.delete([]byte("m:1"))
	if _, ok := lsm.get([]byte("m:1")); ok {
		t.Fatalf("get after delete should report not found")
	}
}

func TestLSMMemtableFlushesAcrossMultipleFiles(t *testing.T) {
	// A small threshold forces the memtable to flush repeatedly.
	lsm := newTestLSM(t, 256)

	for i := 0; i < 20; i++ {
		key := []byte{byte('a' + i)}
		lsm.put(key, []byte("0123456789"))
	}
	for i := 0; i < 20; i++ {
		key := []byte{byte('a' + i)}
		if _, ok := lsm.get(key); !ok {
			t.Fatalf("key %q missing after forced flushes", key)
		}
	}
	if len(lsm.sstables.files) < 2 {
		t.Errorf("expected multiple SSTable files from repeated flushing, got %d", len(lsm.sstables.files))
	}
}

// TestLSMPutRetriesUntilMemtableAccepts exercises the spec.md §9 fix: a put
// larger than one flush's worth of headroom must keep flushing until the
// memtable can actually accept it, rather than flushing once and writing
// into a memtable that still can't hold the entry.
func TestLSMPutRetriesUntilMemtableAccepts(t *testing.T) {
	lsm := newTestLSM(t, 200)

	lsm.put([]byte("k1"), make([]byte, 100))
	lsm.put([]byte("k2"), make([]byte, 100))
	// at this point the memtable is near its threshold; this put needs at
	// least one flush, maybe two, before canPut succeeds.
	lsm.put([]byte("k3"), make([]byte, 100))

	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := lsm.get([]byte(k)); !ok {
			t.Errorf("key %q lost across the forced flush(es)", k)
		}
	}
}

func TestMemtableCanPutReservesHeaderRoom(t *testing.T) {
	m := newMemtable(100)
	if !m.canPut(49) {
		t.Errorf("canPut(49) should fit under threshold-50")
	}
	if m.canPut(51) {
		t.Errorf("canPut(51) should not fit: threshold-50 reservation violated")
	}
}
