package plistutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"howett.net/plist"
)

type partition struct {
	Number int32    `plist:"PartitionNumber"`
	Chain  []string `plist:"Chain"`
	Start  uint64   `plist:"Start"`
}

func TestEncode(t *testing.T) {
	in := partition{Number: 2, Chain: []string{"a-00-00.mrimg", "a-00-01.mrimg"}, Start: 1048576}

	for _, format := range []Format{FormatXML, FormatBinary} {
		var buf bytes.Buffer
		if err := Encode(&buf, in, format); err != nil {
			t.Fatalf("Encode(%d): %v", format, err)
		}
		var out partition
		decoded, err := plist.Unmarshal(buf.Bytes(), &out)
		if err != nil {
			t.Fatalf("Unmarshal(%d): %v", format, err)
		}
		if decoded != format.encoding() {
			t.Errorf("encoded as %d; want %d", decoded, format.encoding())
		}
		if out.Number != in.Number || out.Start != in.Start || len(out.Chain) != 2 || out.Chain[1] != in.Chain[1] {
			t.Errorf("round trip = %+v; want %+v", out, in)
		}
	}
}

func TestWritePlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "layout.plist")
	if err := WritePlist(path, partition{Number: 1}, FormatXML); err != nil {
		t.Fatalf("WritePlist: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		t.Errorf("unexpected header %q", data[:10])
	}
}
