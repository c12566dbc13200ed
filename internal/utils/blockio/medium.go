package blockio

import (
	"fmt"
	"io"
	"os"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Medium is a writable, seekable restore target: a raw image file, a loop
// device or a virtual disk. It must already be at least the disk size.
type Medium interface {
	WriteAt(p []byte, off int64) error
	Size() int64
	Sync() error
	Close() error
}

// FileMedium implements Medium using a regular file or block device
type FileMedium struct {
	f    *os.File
	name string
	size int64
}

var _ Medium = (*FileMedium)(nil)

// OpenMedium opens an existing target for writing without truncating it
func OpenMedium(path string) (*FileMedium, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "OpenMedium", path, -1, "")
	}

	// Block devices report size 0 from Stat; seeking to the end works for both
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "OpenMedium", path, -1, "cannot determine size")
	}

	return &FileMedium{f: f, name: path, size: size}, nil
}

// WriteAt writes p at an absolute offset
func (m *FileMedium) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > m.size {
		return imgerrors.NewImageError(imgerrors.ErrIO, "WriteAt", m.name, off,
			fmt.Sprintf("write of %d bytes exceeds medium size %d", len(p), m.size))
	}
	if _, err := m.f.WriteAt(p, off); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteAt", m.name, off, "")
	}
	return nil
}

// Size returns the medium size in bytes
func (m *FileMedium) Size() int64 {
	return m.size
}

// Sync flushes the medium
func (m *FileMedium) Sync() error {
	if err := m.f.Sync(); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Sync", m.name, -1, "")
	}
	return nil
}

// Close closes the medium
func (m *FileMedium) Close() error {
	if err := m.f.Close(); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Close", m.name, -1, "")
	}
	return nil
}

// MemoryMedium implements Medium using an in-memory byte slice.
// It records every write so callers can assert on offsets.
type MemoryMedium struct {
	Data   []byte
	Writes []Write
	closed bool
}

// Write records one WriteAt call
type Write struct {
	Offset int64
	Length int
}

var _ Medium = (*MemoryMedium)(nil)

// NewMemoryMedium returns a zero-filled medium of the given size
func NewMemoryMedium(size int64) *MemoryMedium {
	return &MemoryMedium{Data: make([]byte, size)}
}

func (m *MemoryMedium) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(m.Data)) {
		return imgerrors.NewImageError(imgerrors.ErrIO, "WriteAt", "memory", off,
			fmt.Sprintf("write of %d bytes exceeds medium size %d", len(p), len(m.Data)))
	}
	copy(m.Data[off:], p)
	m.Writes = append(m.Writes, Write{Offset: off, Length: len(p)})
	return nil
}

func (m *MemoryMedium) Size() int64 {
	return int64(len(m.Data))
}

func (m *MemoryMedium) Sync() error {
	return nil
}

func (m *MemoryMedium) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MemoryMedium) Closed() bool {
	return m.closed
}
