// Package restore replays a backup set onto a target medium.
package restore

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Progress describes how far the restore of one partition has come
type Progress struct {
	Disk            int
	Partition       int // position in the disk's partition list
	Partitions      int
	PartitionNumber int32
	BlocksDone      int
	BlocksTotal     int
	BytesWritten    int64
}

// ProgressFunc receives progress updates. It is called after the reserved
// sectors, after every progressInterval blocks and when a partition completes.
type ProgressFunc func(Progress)

const progressInterval = 256

// Options configure a disk restore
type Options struct {
	// Parser options used to decode history files
	Parser mrimg.Options

	// MaxOpenFiles bounds each partition's source file handles
	MaxOpenFiles int

	// Resolver overrides chain resolution, mainly for tests
	Resolver *backupset.Resolver

	// Opener overrides how source files are opened
	Opener backupset.Opener

	Progress ProgressFunc
}

// Result summarizes a restored disk
type Result struct {
	Disk          int
	Partitions    int
	BlocksWritten int
	SparseBlocks  int
	BytesWritten  int64
}

// RestoreDisk writes disk diskIndex of layout onto medium: track 0 first,
// then every partition in layout order.
func RestoreDisk(medium blockio.Medium, layout *mrimg.FileLayout, diskIndex int, opts Options) (*Result, error) {
	if diskIndex < 0 || diskIndex >= len(layout.Disks) {
		return nil, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "RestoreDisk", layout.Path, -1,
			fmt.Sprintf("disk %d of %d", diskIndex, len(layout.Disks)))
	}
	disk := &layout.Disks[diskIndex]

	resolver := opts.Resolver
	if resolver == nil {
		resolver = backupset.NewResolver(layout, opts.Parser)
	}

	result := &Result{Disk: diskIndex}

	if err := medium.WriteAt(disk.Track0, 0); err != nil {
		return result, err
	}
	result.BytesWritten += int64(len(disk.Track0))

	logger.LogInfo("Restoring disk", map[string]interface{}{
		"disk":       diskIndex,
		"partitions": len(disk.Partitions),
		"track0":     len(disk.Track0),
	})

	for p := range disk.Partitions {
		w := &partitionWriter{
			medium:    medium,
			layout:    layout,
			disk:      diskIndex,
			index:     p,
			count:     len(disk.Partitions),
			partition: &disk.Partitions[p],
			opts:      opts,
			result:    result,
		}
		if err := w.restore(resolver); err != nil {
			return result, err
		}
		result.Partitions++
	}

	return result, nil
}

type partitionWriter struct {
	medium    blockio.Medium
	layout    *mrimg.FileLayout
	disk      int
	index     int
	count     int
	partition *mrimg.PartitionLayout
	opts      Options
	result    *Result

	set   *backupset.BackupSet
	bytes int64
}

func (w *partitionWriter) restore(resolver *backupset.Resolver) (err error) {
	set, err := backupset.Open(resolver, w.layout, w.disk, w.partition, backupset.Options{
		MaxOpenFiles: w.opts.MaxOpenFiles,
		Opener:       w.opts.Opener,
	})
	if err != nil {
		return err
	}
	w.set = set
	defer func() {
		if cerr := set.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	logger.LogInfo("Restoring partition", map[string]interface{}{
		"disk":             w.disk,
		"partition_number": w.partition.Header.PartitionNumber,
		"chain":            set.Chain.Paths(),
		"blocks":           len(set.Map),
	})

	if err := w.writeReservedSectors(); err != nil {
		return err
	}
	w.report(0)

	if err := w.writeBlocks(); err != nil {
		return err
	}

	logger.LogInfo("Partition restored", map[string]interface{}{
		"disk":             w.disk,
		"partition_number": w.partition.Header.PartitionNumber,
		"bytes_written":    w.bytes,
		"open_count":       set.Handles().Opens(),
	})
	return nil
}

// writeReservedSectors copies the reserved sector table of the newest chain
// file to the partition's boot sector, clipped to the declared byte length.
func (w *partitionWriter) writeReservedSectors() error {
	fs := w.partition.FileSystem
	geometry := w.partition.Geometry
	total := int64(fs.ReservedSectorsByteLength)
	if total == 0 {
		return nil
	}

	newest := w.set.Chain.Depth() - 1
	reserved := w.set.Chain.Newest().Partition.ReservedSectors
	position := int64(geometry.Start + geometry.BootSectorOffset)

	var written int64
	for _, element := range reserved {
		if written >= total {
			break
		}
		if element.Sparse() {
			continue
		}

		if err := w.set.CheckBlock(newest, element); err != nil {
			return err
		}
		buf := make([]byte, element.BlockLength)
		if err := w.set.ReadBlock(newest, element, buf); err != nil {
			return err
		}

		n := int64(len(buf))
		if remaining := total - written; n > remaining {
			n = remaining
		}
		if err := w.medium.WriteAt(buf[:n], position+written); err != nil {
			return err
		}
		written += n
	}

	if written < total {
		logger.LogWarn("Reserved sector table shorter than declared length", map[string]interface{}{
			"partition_number": w.partition.Header.PartitionNumber,
			"declared":         total,
			"written":          written,
		})
	}
	w.bytes += written
	w.result.BytesWritten += written
	return nil
}

// lcn0Start returns the medium offset of logical cluster zero
func lcn0Start(p *mrimg.PartitionLayout) int64 {
	return int64(p.Geometry.Start) + (int64(p.FileSystem.LCN0Offset) - int64(p.FileSystem.Start))
}

// BlockOffset returns the medium offset of logical block i of partition p
func BlockOffset(p *mrimg.PartitionLayout, i int) int64 {
	return lcn0Start(p) + int64(p.Header.BlockSize)*int64(i)
}

func (w *partitionWriter) writeBlocks() error {
	blockSize := w.partition.Header.BlockSize
	var buf []byte
	for i, ref := range w.set.Map {
		if ref.Block.Sparse() {
			w.result.SparseBlocks++
			continue
		}
		if blockSize > 0 && ref.Block.BlockLength > blockSize {
			return imgerrors.NewImageError(imgerrors.ErrFormat, "WriteBlock", w.set.Chain.Members[ref.File].Path, ref.Block.FilePosition,
				fmt.Sprintf("block %d of %d bytes exceeds block size %d", i, ref.Block.BlockLength, blockSize))
		}
		if err := w.set.CheckBlock(ref.File, ref.Block); err != nil {
			return err
		}

		if cap(buf) < int(ref.Block.BlockLength) {
			buf = make([]byte, ref.Block.BlockLength)
		}
		buf = buf[:ref.Block.BlockLength]

		if err := w.set.ReadBlock(ref.File, ref.Block, buf); err != nil {
			return err
		}
		if err := w.medium.WriteAt(buf, BlockOffset(w.partition, i)); err != nil {
			return err
		}

		w.bytes += int64(len(buf))
		w.result.BytesWritten += int64(len(buf))
		w.result.BlocksWritten++

		if (i+1)%progressInterval == 0 {
			w.report(i + 1)
		}
	}
	w.report(len(w.set.Map))
	return nil
}

func (w *partitionWriter) report(done int) {
	if w.opts.Progress == nil {
		return
	}
	w.opts.Progress(Progress{
		Disk:            w.disk,
		Partition:       w.index,
		Partitions:      w.count,
		PartitionNumber: w.partition.Header.PartitionNumber,
		BlocksDone:      done,
		BlocksTotal:     len(w.set.Map),
		BytesWritten:    w.bytes,
	})
}
