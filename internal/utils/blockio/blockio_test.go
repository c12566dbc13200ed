package blockio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

func TestFileSequentialAndAbsoluteReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.bin")
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Size() != 64 {
		t.Fatalf("Size() = %d; want 64", f.Size())
	}

	buf := make([]byte, 4)
	if err := f.ReadFull(buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if buf[3] != 3 || f.Position() != 4 {
		t.Errorf("unexpected read %v at pos %d", buf, f.Position())
	}

	if err := f.Skip(10); err != nil {
		t.Fatal(err)
	}
	if err := f.ReadFull(buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 14 {
		t.Errorf("after skip got %d; want 14", buf[0])
	}

	if _, err := f.Seek(-20, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	if f.Position() != 44 || f.Remaining() != 20 {
		t.Errorf("SeekEnd landed at %d (remaining %d)", f.Position(), f.Remaining())
	}

	if err := f.ReadAt(buf, 60); err != nil {
		t.Fatalf("ReadAt at tail failed: %v", err)
	}
	if f.Position() != 44 {
		t.Error("ReadAt must not move the cursor")
	}
}

func TestShortReadIsIOError(t *testing.T) {
	f := NewReader("mem", []byte{1, 2, 3})
	err := f.ReadFull(make([]byte, 8))
	if err == nil {
		t.Fatal("expected error on short read")
	}
	if !imgerrors.IsIOError(err) {
		t.Errorf("expected I/O error, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF cause, got %v", err)
	}
	var ie *imgerrors.ImageError
	if !errors.As(err, &ie) || ie.Object != "mem" || ie.Offset != 0 {
		t.Errorf("error lacks context: %#v", err)
	}
}

func TestNegativeSeekRejected(t *testing.T) {
	f := NewReader("mem", make([]byte, 8))
	if _, err := f.Seek(-1, io.SeekStart); !imgerrors.IsIOError(err) {
		t.Errorf("expected I/O error for negative seek, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mrimg"))
	if !imgerrors.IsIOError(err) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist I/O error, got %v", err)
	}
}

func TestFileMediumBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 1024), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := OpenMedium(path)
	if err != nil {
		t.Fatalf("OpenMedium failed: %v", err)
	}
	if m.Size() != 1024 {
		t.Errorf("Size() = %d; want 1024", m.Size())
	}
	if err := m.WriteAt([]byte{0xAA, 0xBB}, 1000); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := m.WriteAt(make([]byte, 32), 1000); !imgerrors.IsIOError(err) {
		t.Errorf("expected out-of-range write to fail, got %v", err)
	}
	if err := m.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(path)
	if got[1000] != 0xAA || got[1001] != 0xBB {
		t.Errorf("bytes not written: %x %x", got[1000], got[1001])
	}
}

func TestMemoryMediumRecordsWrites(t *testing.T) {
	m := NewMemoryMedium(16)
	if err := m.WriteAt([]byte{1, 2}, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteAt([]byte{1}, 16); err == nil {
		t.Error("expected out-of-range write to fail")
	}
	if len(m.Writes) != 1 || m.Writes[0] != (Write{Offset: 4, Length: 2}) {
		t.Errorf("unexpected writes %v", m.Writes)
	}
	m.Close()
	if !m.Closed() {
		t.Error("Closed() should report true")
	}
}
