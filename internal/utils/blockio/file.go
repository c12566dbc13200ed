// Package blockio provides the typed random-access primitives used to read
// backup files and write target media. Every failure is returned as an
// ImageError wrapping ErrIO and names the file, offset and operation.
package blockio

import (
	"bytes"
	"io"
	"os"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// File is a positioned reader over a random-access byte store. It keeps its
// own cursor so sequential reads and explicit seeks compose without sharing
// the descriptor offset.
type File struct {
	r    io.ReaderAt
	c    io.Closer
	name string
	size int64
	pos  int64
}

// Open opens a backup file read-only
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Open", path, -1, "")
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Stat", path, -1, "")
	}

	return &File{r: f, c: f, name: path, size: stat.Size()}, nil
}

// New wraps an already opened store of the given size. c may be nil.
func New(name string, r io.ReaderAt, size int64, c io.Closer) *File {
	return &File{r: r, c: c, name: name, size: size}
}

// NewReader wraps an in-memory or otherwise opened store
func NewReader(name string, data []byte) *File {
	return &File{r: bytes.NewReader(data), name: name, size: int64(len(data))}
}

// Name returns the path or label the file was opened with
func (f *File) Name() string {
	return f.name
}

// Size returns the total size in bytes
func (f *File) Size() int64 {
	return f.size
}

// Position returns the current cursor offset
func (f *File) Position() int64 {
	return f.pos
}

// Remaining returns the number of bytes between the cursor and the end of the file
func (f *File) Remaining() int64 {
	if f.pos >= f.size {
		return 0
	}
	return f.size - f.pos
}

// Seek moves the cursor. Offsets past the end are accepted; the next read fails.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return f.pos, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "Seek", f.name, offset, "bad whence")
	}
	if abs < 0 {
		return f.pos, imgerrors.NewImageError(imgerrors.ErrIO, "Seek", f.name, abs, "negative position")
	}
	f.pos = abs
	return abs, nil
}

// Skip advances the cursor by n bytes
func (f *File) Skip(n int64) error {
	_, err := f.Seek(n, io.SeekCurrent)
	return err
}

// ReadFull fills p from the cursor and advances it. A short read is an I/O error.
func (f *File) ReadFull(p []byte) error {
	if err := f.ReadAt(p, f.pos); err != nil {
		return err
	}
	f.pos += int64(len(p))
	return nil
}

// ReadAt fills p from an absolute offset without moving the cursor
func (f *File) ReadAt(p []byte, off int64) error {
	if off < 0 {
		return imgerrors.NewImageError(imgerrors.ErrIO, "ReadAt", f.name, off, "negative offset")
	}
	n, err := f.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "ReadAt", f.name, off, "")
}

// Close releases the underlying descriptor, if any
func (f *File) Close() error {
	if f.c == nil {
		return nil
	}
	err := f.c.Close()
	f.c = nil
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Close", f.name, -1, "")
	}
	return nil
}
