package inspect

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"howett.net/plist"

	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg/mrimgtest"
)

func sampleLayout(t *testing.T) *mrimg.FileLayout {
	t.Helper()
	b := mrimgtest.NewBuilder()
	part := mrimgtest.Partition{
		Number:    1,
		Start:     1048576,
		BlockSize: 4096,
		History:   []mrimg.FileHistory{{FileName: `C:\Backups\disk-00-00.mrimg`, FileNumber: 0}},
		Blocks:    []mrimg.DataBlockIndexElement{b.AddData([]byte("block")), {}},
	}
	layout := mrimgtest.SimpleLayout(0, false, make([]byte, 512), part)
	layout.Disks[0].Partitions[0].FileSystem.DriveLetter = "67"

	path := filepath.Join(t.TempDir(), "disk-00-00.mrimg")
	if err := b.WriteFile(path, layout); err != nil {
		t.Fatal(err)
	}
	decoded, err := mrimg.ReadFileLayout(path, mrimg.Options{})
	if err != nil {
		t.Fatalf("ReadFileLayout: %v", err)
	}
	return decoded
}

func TestNewReport(t *testing.T) {
	layout := sampleLayout(t)
	r := NewReport(layout, backupset.NewResolver(layout, mrimg.Options{}))

	if len(r.Disks) != 1 || len(r.Disks[0].Partitions) != 1 {
		t.Fatalf("unexpected shape: %+v", r)
	}
	p := r.Disks[0].Partitions[0]
	if p.DriveLetter != "C" || p.FileSystem != "NTFS" || p.IndexEntries != 2 {
		t.Errorf("partition report = %+v", p)
	}
	if len(p.Chain) != 1 || p.Chain[0] != layout.Path || p.ChainError != "" {
		t.Errorf("chain = %v (%s)", p.Chain, p.ChainError)
	}
	if r.Disks[0].Track0Bytes != 512 {
		t.Errorf("track 0 bytes = %d", r.Disks[0].Track0Bytes)
	}
}

func TestNewReportChainError(t *testing.T) {
	layout := mrimgtest.SimpleLayout(1, true, nil, mrimgtest.Partition{
		Number:  1,
		History: []mrimg.FileHistory{{FileName: "gone-00-00.mrimg", FileNumber: 0}},
	})
	layout.Path = filepath.Join(t.TempDir(), "inc-00-01.mrimg")

	r := NewReport(layout, backupset.NewResolver(layout, mrimg.Options{}))
	if p := r.Disks[0].Partitions[0]; p.ChainError == "" || len(p.Chain) != 0 {
		t.Errorf("expected chain error, got %+v", p)
	}
}

func TestRender(t *testing.T) {
	layout := sampleLayout(t)
	r := NewReport(layout, nil)

	var summary bytes.Buffer
	if err := Render(&summary, r, FormatSummary); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(summary.String(), "Disk 0: MBR") || !strings.Contains(summary.String(), "NTFS") {
		t.Errorf("summary missing fields:\n%s", summary.String())
	}

	var js bytes.Buffer
	if err := Render(&js, r, FormatJSON); err != nil {
		t.Fatal(err)
	}
	var back Report
	if err := json.Unmarshal(js.Bytes(), &back); err != nil {
		t.Fatalf("json output does not parse: %v", err)
	}
	if back.Path != r.Path || back.ChainsLoaded {
		t.Errorf("json round trip = %+v", back)
	}

	var pl bytes.Buffer
	if err := Render(&pl, r, FormatPlist); err != nil {
		t.Fatal(err)
	}
	var fromPlist Report
	if _, err := plist.Unmarshal(pl.Bytes(), &fromPlist); err != nil {
		t.Fatal(err)
	}
	if len(fromPlist.Disks) != 1 || fromPlist.Disks[0].Partitions[0].Number != 1 {
		t.Errorf("plist round trip = %+v", fromPlist)
	}

	if err := Render(&bytes.Buffer{}, r, "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteFile(t *testing.T) {
	r := NewReport(sampleLayout(t), nil)
	dir := filepath.Join(t.TempDir(), "reports")

	tests := []struct {
		format string
		prefix string
	}{
		{FormatJSON, "{"},
		{FormatPlist, "<?xml"},
		{FormatSummary, r.Path},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path := filepath.Join(dir, "layout."+tt.format)
			if err := WriteFile(path, r, tt.format); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), tt.prefix) {
				t.Errorf("%s output starts with %q", tt.format, string(data[:min(len(data), 20)]))
			}
		})
	}

	if err := WriteFile(filepath.Join(dir, "layout.yaml"), r, "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
