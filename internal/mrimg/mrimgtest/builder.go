// Package mrimgtest builds synthetic backup files for tests.
package mrimgtest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
)

// Block is an extra metadata block emitted into the header region
type Block struct {
	Tag     string
	Payload []byte
}

// Builder lays out a backup file as: data blocks, index region, header
// region, footer. Data is appended first so index records can point at it.
type Builder struct {
	data bytes.Buffer

	// HeaderBlocks are emitted before the $JSON block
	HeaderBlocks []Block

	// IndexBlocks are emitted before each partition's $BITMAP block
	IndexBlocks []Block

	// BitmapLength is the size of the $BITMAP payload preceding each index
	BitmapLength int

	// Magic overrides the footer marker when non-empty
	Magic string
}

// NewBuilder returns a builder whose data region starts after a small preamble
func NewBuilder() *Builder {
	b := &Builder{BitmapLength: 16}
	b.data.Write(make([]byte, 64))
	return b
}

// AddData appends a data block and returns its index element
func (b *Builder) AddData(p []byte) mrimg.DataBlockIndexElement {
	pos := int64(b.data.Len())
	b.data.Write(p)
	return mrimg.DataBlockIndexElement{FilePosition: pos, BlockLength: uint32(len(p))}
}

// Bytes renders the complete file for layout. The layout's
// index_file_position is overwritten with the real offset.
func (b *Builder) Bytes(layout *mrimg.FileLayout) []byte {
	var out bytes.Buffer
	out.Write(b.data.Bytes())

	indexPos := uint64(out.Len())
	for _, disk := range layout.Disks {
		writeBlock(&out, mrimg.TagTrack0, disk.Track0, false)
		for _, part := range disk.Partitions {
			for _, blk := range b.IndexBlocks {
				writeBlock(&out, blk.Tag, blk.Payload, false)
			}
			writeBlock(&out, mrimg.TagBitmap, make([]byte, b.BitmapLength), false)

			var index bytes.Buffer
			binary.Write(&index, binary.LittleEndian, int32(len(part.ReservedSectors)))
			binary.Write(&index, binary.LittleEndian, part.ReservedSectors)
			if layout.Header.DeltaIndex {
				binary.Write(&index, binary.LittleEndian, int32(len(part.DeltaDataBlockIndex)))
				binary.Write(&index, binary.LittleEndian, part.DeltaDataBlockIndex)
			} else {
				binary.Write(&index, binary.LittleEndian, int32(len(part.DataBlockIndex)))
				binary.Write(&index, binary.LittleEndian, part.DataBlockIndex)
			}
			writeHeader(&out, mrimg.TagIndex, uint32(index.Len()), mrimg.FlagLastBlock)
			out.Write(index.Bytes())
		}
	}

	withIndex := *layout
	withIndex.Header.IndexFilePosition = indexPos
	text, err := json.Marshal(&withIndex)
	if err != nil {
		panic(err)
	}

	headerPos := uint64(out.Len())
	for _, blk := range b.HeaderBlocks {
		writeBlock(&out, blk.Tag, blk.Payload, false)
		if blk.Tag != mrimg.TagBitmap {
			// Non-bitmap blocks in the header region are followed by one header's worth of bytes
			out.Write(make([]byte, mrimg.BlockHeaderSize))
		}
	}
	writeBlock(&out, mrimg.TagJSON, text, true)

	binary.Write(&out, binary.LittleEndian, headerPos)
	magic := mrimg.MagicBytes
	if b.Magic != "" {
		magic = b.Magic
	}
	out.WriteString(magic)

	layout.Header.IndexFilePosition = indexPos
	return out.Bytes()
}

// WriteFile renders the file for layout to path
func (b *Builder) WriteFile(path string, layout *mrimg.FileLayout) error {
	return os.WriteFile(path, b.Bytes(layout), 0644)
}

// BlockBytes returns the bytes of a single metadata block
func BlockBytes(tag string, payload []byte, last bool) []byte {
	var out bytes.Buffer
	writeBlock(&out, tag, payload, last)
	return out.Bytes()
}

func writeBlock(out *bytes.Buffer, tag string, payload []byte, last bool) {
	var flags mrimg.BlockFlags
	if last {
		flags = mrimg.FlagLastBlock
	}
	writeHeader(out, tag, uint32(len(payload)), flags)
	out.Write(payload)
}

func writeHeader(out *bytes.Buffer, tag string, length uint32, flags mrimg.BlockFlags) {
	var name [8]byte
	copy(name[:], "        ")
	copy(name[:], tag)
	out.Write(name[:])
	binary.Write(out, binary.LittleEndian, length)
	out.Write(make([]byte, 16)) // hash
	out.WriteByte(byte(flags))
	out.Write(make([]byte, 3))
}
