package wondfs

import "testing"

func TestPitTableEncodeChoosesMapBelowDensityHalf(t *testing.T) {
	const pageNum = 1000
	pt := newPitTable(pageNum)
	pt.setPage(1, 7)
	pt.setPage(2, 7)

	image := pt.encode()
	if image[0] != pitMapMagic[0] || image[1] != pitMapMagic[1] {
		t.Fatalf("sparse table should encode as Map, got magic %v", image[:4])
	}
}

func TestPitTableEncodeChoosesSerialAtOrAboveDensityHalf(t *testing.T) {
	const pageNum = 4
	pt := newPitTable(pageNum)
	pt.setPage(0, 1)
	pt.setPage(1, 2)

	image := pt.encode()
	if image[0] != pitSerialMagic[0] || image[1] != pitSerialMagic[1] {
		t.Fatalf("dense table should encode as Serial, got magic %v", image[:4])
	}
}

func TestPitTableMapRoundtrip(t *testing.T) {
	const pageNum = 1000
	pt := newPitTable(pageNum)
	pt.setPage(5, 42)
	pt.setPage(900, 7)

	image := pt.encode()
	decoded := decodePIT(image, pageNum)
	if decoded.getPage(5) != 42 {
		t.Errorf("page 5 ino = %d, want 42", decoded.getPage(5))
	}
	if decoded.getPage(900) != 7 {
		t.Errorf("page 900 ino = %d, want 7", decoded.getPage(900))
	}
}

func TestPitTableSerialRoundtrip(t *testing.T) {
	const pageNum = 4
	pt := newPitTable(pageNum)
	pt.setPage(0, 1)
	pt.setPage(3, 9)

	image := pt.encode()
	decoded := decodePIT(image, pageNum)
	if decoded.getPage(0) != 1 {
		t.Errorf("page 0 ino = %d, want 1", decoded.getPage(0))
	}
	if decoded.getPage(3) != 9 {
		t.Errorf("page 3 ino = %d, want 9", decoded.getPage(3))
	}
	if _, ok := decoded.table[1]; ok {
		t.Errorf("page 1 should have no entry (ino 0 is unowned)")
	}
}

func TestPitTableDeleteAndClean(t *testing.T) {
	pt := newPitTable(16)
	pt.setPage(0, 1)
	pt.deletePage(0)
	if _, ok := pt.table[0]; ok {
		t.Errorf("deletePage should remove the entry")
	}
	pt.cleanPage(99) // no-op when absent, must not panic
}
