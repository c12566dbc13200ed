// Package plistutil provides utilities for working with property list files
package plistutil

import (
	"io"
	"os"
	"path/filepath"

	"howett.net/plist"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
)

// Format represents the plist format
type Format int

const (
	// FormatXML is the XML plist format
	FormatXML Format = iota
	// FormatBinary is the binary plist format
	FormatBinary
	// FormatOpenStep is the OpenStep plist format
	FormatOpenStep
)

func (f Format) encoding() int {
	switch f {
	case FormatBinary:
		return plist.BinaryFormat
	case FormatOpenStep:
		return plist.OpenStepFormat
	default:
		return plist.XMLFormat
	}
}

// Encode writes v to w as a property list
func Encode(w io.Writer, v interface{}, format Format) error {
	encoder := plist.NewEncoderForFormat(w, format.encoding())
	if format == FormatXML {
		encoder.Indent("\t")
	}
	if err := encoder.Encode(v); err != nil {
		return imgerrors.Wrap(imgerrors.ErrInvalidArgument, err)
	}
	return nil
}

// WritePlist writes v to a property list file in the specified format
func WritePlist(path string, v interface{}, format Format) error {
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WritePlist", path, -1, "failed to create directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WritePlist", path, -1, "")
	}
	defer file.Close()

	if err := Encode(file, v, format); err != nil {
		return err
	}
	return file.Close()
}
