package mrimg

import (
	"bytes"
	"encoding/binary"
	"strings"
)

const (
	// Magic marker ending every backup file
	MagicBytes = "MACRIUM_FILE"

	// FooterSize is the header offset followed by the magic marker
	FooterSize = 8 + len(MagicBytes)

	// BlockHeaderSize is the fixed on-disk size of a metadata block header
	BlockHeaderSize = 32

	tagLength = 8
)

// Metadata block tags, space padded to eight bytes
const (
	TagJSON   = "$JSON   " // File header JSON data
	TagBitmap = "$BITMAP " // Partition allocation bitmap
	TagFAT    = "$FAT    " // FAT32 FAT data
	TagCBT    = "$CBT    " // Changed block tracking data
	TagMFT    = "$MFT    " // Master file table data
	TagTrack0 = "$TRACK0 " // First track of the disk
	TagIndex  = "$INDEX  " // Reserved sectors and data block index
	TagEPT    = "$EPT    " // Extended partition table
)

// BlockFlags is the flag byte of a metadata block header
type BlockFlags uint8

const (
	FlagLastBlock   BlockFlags = 1 << 0
	FlagCompression BlockFlags = 1 << 1
	FlagEncryption  BlockFlags = 1 << 2
)

// LastBlock reports whether this block terminates the current metadata region
func (f BlockFlags) LastBlock() bool { return f&FlagLastBlock != 0 }

// Compressed reports whether the payload is flagged as compressed
func (f BlockFlags) Compressed() bool { return f&FlagCompression != 0 }

// Encrypted reports whether the payload is flagged as encrypted
func (f BlockFlags) Encrypted() bool { return f&FlagEncryption != 0 }

// rawBlockHeader mirrors the 32-byte on-disk layout
type rawBlockHeader struct {
	Tag     [tagLength]byte
	Length  uint32
	Hash    [16]byte
	Flags   uint8
	Padding [3]byte
}

// BlockHeader is a decoded metadata block header
type BlockHeader struct {
	Tag    [tagLength]byte
	Length uint32
	Hash   [16]byte
	Flags  BlockFlags
	Offset int64 // file offset of the header itself
}

// Is reports whether the header carries the given eight-byte tag
func (h BlockHeader) Is(tag string) bool {
	return string(h.Tag[:]) == tag
}

// Name returns the tag with its padding removed
func (h BlockHeader) Name() string {
	return strings.TrimRight(string(h.Tag[:]), " \x00")
}

// PayloadOffset is where the block payload begins
func (h BlockHeader) PayloadOffset() int64 {
	return h.Offset + BlockHeaderSize
}

func parseBlockHeader(buf []byte, offset int64) (BlockHeader, error) {
	var raw rawBlockHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return BlockHeader{}, err
	}
	return BlockHeader{
		Tag:    raw.Tag,
		Length: raw.Length,
		Hash:   raw.Hash,
		Flags:  BlockFlags(raw.Flags),
		Offset: offset,
	}, nil
}
