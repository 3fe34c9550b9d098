package wondfs

import "testing"

func newTestKV(t *testing.T) *KVManager {
	t.Helper()
	dev := NewFakeDevice(32)
	kv, err := mkfs(dev)
	if err != nil {
		t.Fatalf("mkfs: %v", err)
	}
	return kv
}

func TestDataObjectSetGetRoundtrip(t *testing.T) {
	kv := newTestKV(t)
	key := dataKey(1)

	value := []byte("the quick brown fox")
	size := kv.setDataObject(key, 0, len(value), value, 1)
	if size != len(value) {
		t.Fatalf("setDataObject returned size %d, want %d", size, len(value))
	}

	raw, ok := kv.lsm.get([]byte(key))
	if !ok {
		t.Fatalf("data object key not found after set")
	}
	obj, err := decodeDataObjectValue(raw)
	if err != nil {
		t.Fatalf("decodeDataObjectValue: %v", err)
	}
	got := kv.readDataObject(&obj, 0, 0)
	if string(got) != string(value) {
		t.Errorf("readDataObject = %q, want %q", got, value)
	}
}

func TestDataObjectOverwriteMiddleKeepsPrefixAndSuffix(t *testing.T) {
	kv := newTestKV(t)
	key := dataKey(1)

	kv.setDataObject(key, 0, 11, []byte("hello world"), 1)
	kv.setDataObject(key, 6, 3, []byte("XXX"), 1)

	raw, _ := kv.lsm.get([]byte(key))
	obj, _ := decodeDataObjectValue(raw)
	got := kv.readDataObject(&obj, 0, 0)
	if string(got) != "hello XXXld" {
		t.Errorf("readDataObject after middle overwrite = %q, want %q", got, "hello XXXld")
	}
}

func TestDataObjectAppendPastCurrentSizeGrowsObject(t *testing.T) {
	// spec.md §9's Open Question resolution: the off > object.size guard
	// from the original is not carried forward, so an append past EOF must
	// succeed and grow the object rather than being silently dropped.
	kv := newTestKV(t)
	key := dataKey(1)

	kv.setDataObject(key, 0, 5, []byte("hello"), 1)
	size := kv.setDataObject(key, 5, 6, []byte(" world"), 1)
	if size != 11 {
		t.Fatalf("size after append = %d, want 11", size)
	}

	raw, _ := kv.lsm.get([]byte(key))
	obj, _ := decodeDataObjectValue(raw)
	got := kv.readDataObject(&obj, 0, 0)
	if string(got) != "hello world" {
		t.Errorf("readDataObject after append = %q, want %q", got, "hello world")
	}
}

func TestDataObjectDeleteMiddleCompactsSuffix(t *testing.T) {
	kv := newTestKV(t)
	key := dataKey(1)

	kv.setDataObject(key, 0, 11, []byte("hello world"), 1)
	size := kv.deleteDataObject(key, 5, 1, 1) // remove the space
	if size != 10 {
		t.Fatalf("size after delete = %d, want 10", size)
	}

	raw, _ := kv.lsm.get([]byte(key))
	obj, _ := decodeDataObjectValue(raw)
	got := kv.readDataObject(&obj, 0, 0)
	if string(got) != "helloworld" {
		t.Errorf("readDataObject after delete = %q, want %q", got, "helloworld")
	}
}

func TestDataObjectGetPartialRange(t *testing.T) {
	kv := newTestKV(t)
	key := dataKey(1)
	kv.setDataObject(key, 0, 11, []byte("hello world"), 1)

	raw, _ := kv.lsm.get([]byte(key))
	obj, _ := decodeDataObjectValue(raw)
	got := kv.readDataObject(&obj, 6, 5)
	if string(got) != "world" {
		t.Errorf("readDataObject(off=6,len=5) = %q, want %q", got, "world")
	}
}

func TestReadDataObjectEntryUsesCorrectedCeilingFormula(t *testing.T) {
	// spec.md §9 fix: page count must be ceil(len/4096), not the original's
	// collapsed-by-integer-division entry.len+1.
	kv := newTestKV(t)
	entry := dataObjectEntry{Len: pageSize4K + 1, Offset: 0, PagePointer: kv.findWritePos(2)}
	kv.markPageUsed(entry.PagePointer, 1)
	kv.markPageUsed(entry.PagePointer+1, 1)
	kv.programDataPages(entry.PagePointer, 2, make([]byte, pageSize4K+1))

	got := kv.readDataObjectEntry(entry)
	if len(got) != entry.Len {
		t.Fatalf("readDataObjectEntry returned %d bytes, want %d", len(got), entry.Len)
	}
}
