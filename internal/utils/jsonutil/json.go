package jsonutil

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
)

// JSONFormat represents the formatting style for JSON output
type JSONFormat int

const (
	// FormatIndented uses indented JSON
	FormatIndented JSONFormat = iota
	// FormatMinified removes all whitespace
	FormatMinified
)

// JSONOptions provides configuration for JSON operations
type JSONOptions struct {
	Format       JSONFormat
	IndentPrefix string
	IndentSize   int
}

// DefaultJSONOptions provides default settings for JSON formatting
var DefaultJSONOptions = JSONOptions{
	Format:       FormatIndented,
	IndentPrefix: "",
	IndentSize:   2,
}

// Marshal encodes v with the given options
func Marshal(v interface{}, options ...JSONOptions) ([]byte, error) {
	opts := DefaultJSONOptions
	if len(options) > 0 {
		opts = options[0]
	}

	var data []byte
	var err error
	switch opts.Format {
	case FormatMinified:
		data, err = json.Marshal(v)
	default:
		data, err = json.MarshalIndent(v, opts.IndentPrefix, strings.Repeat(" ", opts.IndentSize))
	}
	if err != nil {
		return nil, imgerrors.Wrap(imgerrors.ErrInvalidArgument, err)
	}
	return data, nil
}

// Encode writes v to w followed by a newline
func Encode(w io.Writer, v interface{}, options ...JSONOptions) error {
	data, err := Marshal(v, options...)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return imgerrors.Wrap(imgerrors.ErrIO, err)
	}
	return nil
}

// WriteJSON writes v to a JSON file, creating the directory when needed
func WriteJSON(path string, v interface{}, options ...JSONOptions) error {
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteJSON", path, -1, "")
	}
	data, err := Marshal(v, options...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteJSON", path, -1, "")
	}
	return nil
}
