package wondfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeEntryRoundtrip(t *testing.T) {
	want := []lsmEntry{
		{key: []byte("m:1"), value: []byte("alpha")},
		{key: []byte("m:2"), value: []byte("beta")},
	}
	var buf []byte
	for _, e := range want {
		buf = append(buf, encodeEntry(e.key, e.value)...)
	}
	buf = append(buf, encodeEntry([]byte(eofMarker), []byte(eofMarker))...)

	got, hitEOF := decodeBlockEntries(buf)
	if !hitEOF {
		t.Fatalf("decodeBlockEntries should have hit the EOF sentinel")
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(lsmEntry{})); diff != "" {
		t.Errorf("decoded entries mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBlockEntriesRejectsCorruptChecksum(t *testing.T) {
	buf := encodeEntry([]byte("m:1"), []byte("alpha"))
	buf[0] ^= 0xFF // corrupt the stored crc32
	buf = append(buf, encodeEntry([]byte(eofMarker), []byte(eofMarker))...)

	got, hitEOF := decodeBlockEntries(buf)
	if len(got) != 0 {
		t.Errorf("corrupt entry should be skipped, got %v", got)
	}
	if !hitEOF {
		t.Errorf("decode should still reach the EOF sentinel after skipping a bad entry")
	}
}
