package jsonutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Inner  struct {
		Count int `json:"count"`
	} `json:"inner"`
}

func TestEncodeFormats(t *testing.T) {
	v := sample{Name: "disk", Offset: 1 << 40}
	v.Inner.Count = 3

	var indented, minified bytes.Buffer
	if err := Encode(&indented, v); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&minified, v, JSONOptions{Format: FormatMinified}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(indented.Bytes(), []byte("\n  \"name\"")) {
		t.Errorf("expected two-space indentation, got %s", indented.String())
	}
	if minified.String() != `{"name":"disk","offset":1099511627776,"inner":{"count":3}}`+"\n" {
		t.Errorf("minified = %s", minified.String())
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "layout.json")
	if err := WriteJSON(path, sample{Name: "x"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back sample
	if err := json.Unmarshal(data, &back); err != nil || back.Name != "x" {
		t.Errorf("round trip failed: %v %+v", err, back)
	}
}
