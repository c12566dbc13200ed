package mrimg

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Footer is the fixed trailer at the end of every backup file
type Footer struct {
	HeaderOffset uint64
	Magic        [len(MagicBytes)]byte
}

// ReadFooter reads and validates the trailer
func ReadFooter(f *blockio.File) (Footer, error) {
	var footer Footer

	if f.Size() < int64(FooterSize) {
		return footer, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadFooter", f.Name(), -1,
			fmt.Sprintf("file of %d bytes is smaller than the footer", f.Size()))
	}

	buf := make([]byte, FooterSize)
	offset := f.Size() - int64(FooterSize)
	if err := f.ReadAt(buf, offset); err != nil {
		return footer, err
	}

	footer.HeaderOffset = binary.LittleEndian.Uint64(buf[:8])
	copy(footer.Magic[:], buf[8:])

	if string(footer.Magic[:]) != MagicBytes {
		return footer, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadFooter", f.Name(), offset+8,
			fmt.Sprintf("invalid magic %q", footer.Magic[:]))
	}
	if footer.HeaderOffset >= uint64(offset) {
		return footer, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadFooter", f.Name(), offset,
			fmt.Sprintf("header offset %d beyond footer", footer.HeaderOffset))
	}

	return footer, nil
}

// LocateHeader reads the footer and positions the cursor at the metadata header region
func LocateHeader(f *blockio.File) (Footer, error) {
	footer, err := ReadFooter(f)
	if err != nil {
		return footer, err
	}
	if _, err := f.Seek(int64(footer.HeaderOffset), io.SeekStart); err != nil {
		return footer, err
	}
	return footer, nil
}
