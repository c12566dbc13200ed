package mrimg

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Options tune the decoder
type Options struct {
	// MaxPayloadBytes bounds captured metadata payloads ($JSON, $TRACK0).
	// Zero leaves only the file size as a bound.
	MaxPayloadBytes int64
}

// ReadFileLayout opens a backup file and decodes its full layout: footer,
// JSON metadata, track 0 and every partition's data block index.
func ReadFileLayout(path string, opts Options) (*FileLayout, error) {
	f, err := blockio.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	layout, err := DecodeLayout(f, opts)
	if err != nil {
		return nil, err
	}
	layout.Path = path
	return layout, nil
}

// DecodeLayout decodes a layout from an open backup file
func DecodeLayout(f *blockio.File, opts Options) (*FileLayout, error) {
	footer, err := LocateHeader(f)
	if err != nil {
		return nil, err
	}

	text, err := ReadJSON(f, opts.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}

	layout, err := DecodeJSON([]byte(text))
	if err != nil {
		return nil, imgerrors.NewImageError(err, "DecodeJSON", f.Name(), int64(footer.HeaderOffset), "")
	}
	layout.Path = f.Name()

	if err := readDataBlockIndex(f, layout, opts); err != nil {
		return nil, err
	}

	logger.LogDebug("Decoded backup file layout", map[string]interface{}{
		"file":        f.Name(),
		"file_number": layout.Header.FileNumber,
		"delta_index": layout.Header.DeltaIndex,
		"disks":       len(layout.Disks),
	})
	return layout, nil
}

// DecodeJSON converts the $JSON payload into a layout. Absent fields keep
// their zero values; malformed JSON is a decode error.
func DecodeJSON(data []byte) (*FileLayout, error) {
	var layout FileLayout
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&layout); err != nil {
		return nil, imgerrors.Wrap(imgerrors.ErrDecode, err)
	}

	if int(layout.Header.ImagedDisksCount) != len(layout.Disks) && layout.Header.ImagedDisksCount != 0 {
		logger.LogWarn("Imaged disk count does not match disk list", map[string]interface{}{
			"imaged_disks_count": layout.Header.ImagedDisksCount,
			"disks":              len(layout.Disks),
		})
	}

	if m := layout.Compression.CompressionMethod; m != "" && m != "none" && m != "None" {
		logger.LogWarn("Backup payload compression is not supported, blocks are written as stored", map[string]interface{}{
			"compression_method": m,
		})
	}
	if layout.Encryption.Enable {
		logger.LogWarn("Backup payload encryption is not supported, restored blocks will be ciphertext", nil)
	}

	for d := range layout.Disks {
		for p := range layout.Disks[d].Partitions {
			layout.Disks[d].Partitions[p].Header.DeltaIndex = layout.Header.DeltaIndex
		}
	}
	return &layout, nil
}

// readDataBlockIndex reads, per disk, the $TRACK0 block and, per partition,
// the reserved sector table and the (delta) data block index.
func readDataBlockIndex(f *blockio.File, layout *FileLayout, opts Options) error {
	if _, err := f.Seek(int64(layout.Header.IndexFilePosition), io.SeekStart); err != nil {
		return err
	}

	for d := range layout.Disks {
		disk := &layout.Disks[d]

		_, track0, err := ReadBlock(f, TagTrack0, opts.MaxPayloadBytes)
		if err != nil {
			return err
		}
		disk.Track0 = track0

		for p := range disk.Partitions {
			partition := &disk.Partitions[p]

			s := NewScanner(f, RegionIndex, opts.MaxPayloadBytes)
			for s.Scan() {
				// bitmap and index headers carry nothing we keep
			}
			if err := s.Err(); err != nil {
				return err
			}

			reserved, err := readIndexCount(f, DataBlockIndexElementSize, "reserved sector count")
			if err != nil {
				return err
			}
			if reserved != 0 {
				partition.ReservedSectors = make([]DataBlockIndexElement, reserved)
				if err := readRecords(f, partition.ReservedSectors, reserved*DataBlockIndexElementSize); err != nil {
					return err
				}
				for _, e := range partition.ReservedSectors {
					if err := CheckElement(f.Name(), f.Size(), e); err != nil {
						return err
					}
				}
			}

			if layout.Header.DeltaIndex {
				count, err := readIndexCount(f, DeltaDataBlockIndexElementSize, "delta block count")
				if err != nil {
					return err
				}
				partition.DeltaDataBlockIndex = make([]DeltaDataBlockIndexElement, count)
				if err := readRecords(f, partition.DeltaDataBlockIndex, count*DeltaDataBlockIndexElementSize); err != nil {
					return err
				}
				for _, e := range partition.DeltaDataBlockIndex {
					if err := CheckElement(f.Name(), f.Size(), e.DataBlock); err != nil {
						return err
					}
				}
			} else {
				count, err := readIndexCount(f, DataBlockIndexElementSize, "block count")
				if err != nil {
					return err
				}
				partition.DataBlockIndex = make([]DataBlockIndexElement, count)
				if err := readRecords(f, partition.DataBlockIndex, count*DataBlockIndexElementSize); err != nil {
					return err
				}
				for _, e := range partition.DataBlockIndex {
					if err := CheckElement(f.Name(), f.Size(), e); err != nil {
						return err
					}
				}
			}

			logger.LogDebug("Read partition block index", map[string]interface{}{
				"file":             f.Name(),
				"disk":             d,
				"partition_number": partition.Header.PartitionNumber,
				"reserved_blocks":  len(partition.ReservedSectors),
				"blocks":           partition.BlockCount(),
			})
		}
	}
	return nil
}

// CheckElement rejects an index element whose data does not lie inside a
// source file of size bytes. Sparse elements always pass.
func CheckElement(name string, size int64, e DataBlockIndexElement) error {
	if e.Sparse() {
		return nil
	}
	if e.FilePosition < 0 || e.FilePosition > size || int64(e.BlockLength) > size-e.FilePosition {
		return imgerrors.NewImageError(imgerrors.ErrFormat, "CheckBlock", name, e.FilePosition,
			fmt.Sprintf("block of %d bytes lies outside file of %d bytes", e.BlockLength, size))
	}
	return nil
}

// readIndexCount reads an int32 record count and checks that that many
// records of recordSize bytes fit in the rest of the file.
func readIndexCount(f *blockio.File, recordSize int, what string) (int, error) {
	offset := f.Position()
	buf := make([]byte, 4)
	if err := f.ReadFull(buf); err != nil {
		return 0, err
	}
	count := int32(binary.LittleEndian.Uint32(buf))
	if count < 0 {
		return 0, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadIndex", f.Name(), offset,
			fmt.Sprintf("negative %s %d", what, count))
	}
	if int64(count)*int64(recordSize) > f.Remaining() {
		return 0, imgerrors.NewImageError(imgerrors.ErrFormat, "ReadIndex", f.Name(), offset,
			fmt.Sprintf("%s %d exceeds remaining %d bytes", what, count, f.Remaining()))
	}
	return int(count), nil
}

func readRecords(f *blockio.File, dst interface{}, size int) error {
	offset := f.Position()
	buf := make([]byte, size)
	if err := f.ReadFull(buf); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, dst); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrFormat, err), "ReadIndex", f.Name(), offset, "")
	}
	return nil
}
