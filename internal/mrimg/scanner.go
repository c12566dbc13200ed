package mrimg

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Region selects how a Scanner positions itself after each header
type Region int

const (
	// RegionHeader is the metadata region at the footer's header offset.
	// $JSON payloads are captured, $BITMAP payloads skipped, and any other
	// block advances by its payload length plus one header size.
	RegionHeader Region = iota

	// RegionIndex is the per-partition region preceding a data block index.
	// Payloads are skipped except for the terminating block, whose payload
	// is the index itself and is left unread at the cursor.
	RegionIndex
)

// Scanner iterates metadata blocks until a header with LastBlock set has been
// consumed. It reads from the file's cursor and is not restartable.
//
//	s := NewScanner(f, RegionHeader, maxPayload)
//	for s.Scan() {
//		h := s.Header()
//		...
//	}
//	if err := s.Err(); err != nil { ... }
type Scanner struct {
	f          *blockio.File
	region     Region
	maxPayload int64

	header  BlockHeader
	payload []byte
	err     error
	done    bool
	count   int
}

// NewScanner returns a scanner positioned at the file's current cursor.
// maxPayload bounds every length field; zero means only the remaining file
// size bounds it.
func NewScanner(f *blockio.File, region Region, maxPayload int64) *Scanner {
	return &Scanner{f: f, region: region, maxPayload: maxPayload}
}

// Scan advances to the next block. It returns false after the last block or on error.
func (s *Scanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}
	s.payload = nil

	offset := s.f.Position()
	buf := make([]byte, BlockHeaderSize)
	if err := s.f.ReadFull(buf); err != nil {
		s.err = err
		return false
	}

	h, err := parseBlockHeader(buf, offset)
	if err != nil {
		s.err = imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrFormat, err), "ParseBlockHeader", s.f.Name(), offset, "")
		return false
	}
	s.header = h
	s.count++

	if err := s.checkLength(h); err != nil {
		s.err = err
		return false
	}
	if h.Flags.Compressed() || h.Flags.Encrypted() {
		logger.LogDebug("Metadata block flags ignored", map[string]interface{}{
			"tag":        h.Name(),
			"offset":     h.Offset,
			"compressed": h.Flags.Compressed(),
			"encrypted":  h.Flags.Encrypted(),
		})
	}

	switch s.region {
	case RegionHeader:
		s.err = s.advanceHeaderRegion(h)
	case RegionIndex:
		s.err = s.advanceIndexRegion(h)
	}
	if s.err != nil {
		return false
	}

	if h.Flags.LastBlock() {
		s.done = true
	}
	return true
}

func (s *Scanner) advanceHeaderRegion(h BlockHeader) error {
	switch {
	case h.Is(TagJSON):
		s.payload = make([]byte, h.Length)
		return s.f.ReadFull(s.payload)
	case h.Is(TagBitmap):
		return s.f.Skip(int64(h.Length))
	default:
		logger.LogDebug("Skipping metadata block", map[string]interface{}{
			"tag":    h.Name(),
			"offset": h.Offset,
			"length": h.Length,
		})
		return s.f.Skip(int64(h.Length) + BlockHeaderSize)
	}
}

func (s *Scanner) advanceIndexRegion(h BlockHeader) error {
	if h.Flags.LastBlock() {
		// The index proper follows this header
		return nil
	}
	return s.f.Skip(int64(h.Length))
}

// checkLength rejects captured payloads larger than the configured maximum,
// and any payload larger than what is left in the file.
func (s *Scanner) checkLength(h BlockHeader) error {
	length := int64(h.Length)
	if s.maxPayload > 0 && length > s.maxPayload && (h.Is(TagJSON) || h.Is(TagTrack0)) {
		return imgerrors.NewImageError(imgerrors.ErrFormat, "ScanBlock", s.f.Name(), h.Offset,
			fmt.Sprintf("%s payload of %d bytes exceeds limit %d", h.Name(), length, s.maxPayload))
	}
	if length > s.f.Remaining() {
		return imgerrors.NewImageError(imgerrors.ErrFormat, "ScanBlock", s.f.Name(), h.Offset,
			fmt.Sprintf("%s payload of %d bytes exceeds remaining %d bytes", h.Name(), length, s.f.Remaining()))
	}
	return nil
}

// Header returns the most recently scanned header
func (s *Scanner) Header() BlockHeader {
	return s.header
}

// Payload returns the captured payload of the current block, or nil if it was skipped
func (s *Scanner) Payload() []byte {
	return s.payload
}

// Count returns the number of headers consumed so far
func (s *Scanner) Count() int {
	return s.count
}

// Err returns the first error encountered
func (s *Scanner) Err() error {
	return s.err
}

// ReadJSON scans the header region and returns the last $JSON payload as text
func ReadJSON(f *blockio.File, maxPayload int64) (string, error) {
	s := NewScanner(f, RegionHeader, maxPayload)
	var text string
	found := false
	for s.Scan() {
		if s.Header().Is(TagJSON) {
			text = string(s.Payload())
			found = true
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	if !found {
		return "", imgerrors.NewImageError(imgerrors.ErrMissingBlock, "ReadJSON", f.Name(), f.Position(), "no $JSON block before last block")
	}
	return text, nil
}

// ReadBlock reads one header and its full payload, requiring the given tag
func ReadBlock(f *blockio.File, tag string, maxPayload int64) (BlockHeader, []byte, error) {
	offset := f.Position()
	buf := make([]byte, BlockHeaderSize)
	if err := f.ReadFull(buf); err != nil {
		return BlockHeader{}, nil, err
	}
	h, err := parseBlockHeader(buf, offset)
	if err != nil {
		return BlockHeader{}, nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrFormat, err), "ReadBlock", f.Name(), offset, "")
	}
	if !h.Is(tag) {
		return h, nil, imgerrors.NewImageError(imgerrors.ErrMissingBlock, "ReadBlock", f.Name(), offset,
			fmt.Sprintf("expected %s block, found %q", tag, h.Name()))
	}
	if (maxPayload > 0 && int64(h.Length) > maxPayload) || int64(h.Length) > f.Remaining() {
		return h, nil, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadBlock", f.Name(), offset,
			fmt.Sprintf("%s payload of %d bytes is implausible", h.Name(), h.Length))
	}
	payload := make([]byte, h.Length)
	if err := f.ReadFull(payload); err != nil {
		return h, nil, err
	}
	return h, payload, nil
}
