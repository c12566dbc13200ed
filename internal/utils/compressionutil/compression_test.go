package compression

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

func TestCompressExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "disk0.img")
	content := append(bytes.Repeat([]byte{0}, 64<<10), []byte("NTFS    boot sector")...)
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	for _, format := range []string{FormatGZIP, FormatBZIP2, FormatXZ} {
		t.Run(format, func(t *testing.T) {
			archive := src + Extension(format)
			n, err := CompressFile(src, archive, format)
			if err != nil {
				t.Fatalf("CompressFile: %v", err)
			}
			if n != int64(len(content)) {
				t.Errorf("compressed %d bytes; want %d", n, len(content))
			}

			detected, err := DetectArchiveFormat(archive)
			if err != nil || detected != format {
				t.Errorf("DetectArchiveFormat = %q, %v; want %q", detected, err, format)
			}

			out := filepath.Join(dir, "restored-"+format)
			if err := ExtractFile(archive, out, "auto"); err != nil {
				t.Fatalf("ExtractFile: %v", err)
			}
			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, content) {
				t.Error("extracted content differs")
			}
		})
	}
}

func TestCompressUnsupported(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "disk0.img")
	if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := CompressFile(src, src+".zst", "zstd")
	if !errors.Is(err, imgerrors.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if Extension(FormatNone) != "" {
		t.Error("none should have no extension")
	}
}

func TestCompressMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CompressFile(filepath.Join(dir, "absent.img"), filepath.Join(dir, "out.gz"), FormatGZIP)
	if !imgerrors.IsIOError(err) {
		t.Fatalf("expected I/O error, got %v", err)
	}
}

func TestTrimExtension(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/out/disk0.img.gz", "/out/disk0.img", true},
		{"disk1.img.bz2", "disk1.img", true},
		{"disk2.img.xz", "disk2.img", true},
		{"disk3.img", "disk3.img", false},
	}
	for _, tt := range tests {
		got, ok := TrimExtension(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TrimExtension(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
