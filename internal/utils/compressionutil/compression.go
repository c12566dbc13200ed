package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Supported archive formats for restored images
const (
	FormatNone  = "none"
	FormatGZIP  = "gzip"
	FormatBZIP2 = "bzip2"
	FormatXZ    = "xz"
)

var magicNumbers = map[string][]byte{
	FormatGZIP:  {0x1F, 0x8B},
	FormatBZIP2: {0x42, 0x5A, 0x68},
	FormatXZ:    {0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
}

var extensions = map[string]string{
	FormatGZIP:  ".gz",
	FormatBZIP2: ".bz2",
	FormatXZ:    ".xz",
}

// Extension returns the file suffix for format, empty for none
func Extension(format string) string {
	return extensions[format]
}

// TrimExtension strips a known archive suffix from name. ok is false when
// name carries none.
func TrimExtension(name string) (base string, ok bool) {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return name, false
}

// DetectArchiveFormat determines the archive format using magic numbers and file extension
func DetectArchiveFormat(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 6)
	_, err = io.ReadFull(file, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}

	// Check magic numbers first
	for format, magic := range magicNumbers {
		if bytes.HasPrefix(header, magic) {
			return format, nil
		}
	}

	// Fallback to extension-based detection
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gz":
		return FormatGZIP, nil
	case ".bz2":
		return FormatBZIP2, nil
	case ".xz":
		return FormatXZ, nil
	default:
		return "", errors.New("unsupported archive format")
	}
}

// CompressFile writes src to dst compressed with format and returns the
// number of uncompressed bytes read.
func CompressFile(src, dst, format string) (int64, error) {
	inputFile, err := os.Open(src)
	if err != nil {
		return 0, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Compress", src, -1, "")
	}
	defer inputFile.Close()

	outputFile, err := os.Create(dst)
	if err != nil {
		return 0, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Compress", dst, -1, "")
	}
	defer outputFile.Close()

	w, err := newWriter(outputFile, format)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, inputFile)
	if err != nil {
		w.Close()
		return n, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Compress", src, n, "failed to compress file")
	}
	if err := w.Close(); err != nil {
		return n, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Compress", dst, -1, "failed to finish archive")
	}
	if err := outputFile.Close(); err != nil {
		return n, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Compress", dst, -1, "")
	}

	logger.LogInfo("Compressed disk image", map[string]interface{}{
		"source":      src,
		"destination": dst,
		"format":      format,
		"bytes":       n,
	})
	return n, nil
}

// ExtractFile decompresses src into dst. format "auto" detects it.
func ExtractFile(src, dst, format string) error {
	if format == "auto" {
		detected, err := DetectArchiveFormat(src)
		if err != nil {
			return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrUnsupported, err), "Extract", src, -1, "")
		}
		format = detected
	}

	inputFile, err := os.Open(src)
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Extract", src, -1, "")
	}
	defer inputFile.Close()

	r, err := newReader(inputFile, format)
	if err != nil {
		return err
	}
	defer r.Close()

	outputFile, err := os.Create(dst)
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Extract", dst, -1, "")
	}
	defer outputFile.Close()

	if _, err := io.Copy(outputFile, r); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "Extract", src, -1, "failed to decompress file")
	}
	return outputFile.Close()
}

func newWriter(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case FormatGZIP:
		return newGZIPWriter(w)
	case FormatBZIP2:
		return newBZIP2Writer(w)
	case FormatXZ:
		return newXZWriter(w)
	default:
		return nil, imgerrors.NewImageError(imgerrors.ErrUnsupported, "Compress", "", -1,
			fmt.Sprintf("unsupported compression format: %s", format))
	}
}

func newReader(r io.Reader, format string) (io.ReadCloser, error) {
	switch format {
	case FormatGZIP:
		return newGZIPReader(r)
	case FormatBZIP2:
		return newBZIP2Reader(r)
	case FormatXZ:
		return newXZReader(r)
	default:
		return nil, imgerrors.NewImageError(imgerrors.ErrUnsupported, "Extract", "", -1,
			fmt.Sprintf("unsupported compression format: %s", format))
	}
}
