// Package backupset resolves the chain of backup files behind one partition,
// merges their block indexes and serves block reads from them.
package backupset

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// BackupSet is everything needed to restore one partition: the resolved
// chain, the merged block map and the source file handles. It is owned by a
// single partition restore and must be closed when that restore ends.
type BackupSet struct {
	Chain *Chain
	Map   BlockMap

	handles *HandleTable
}

// Options configure a BackupSet
type Options struct {
	// MaxOpenFiles bounds the handle table, zero for unbounded
	MaxOpenFiles int

	// Opener overrides how source files are opened
	Opener Opener
}

// New builds the block map for chain and prepares lazy file handles
func New(chain *Chain, opts Options) (*BackupSet, error) {
	blockMap, err := BuildBlockMap(chain)
	if err != nil {
		return nil, err
	}

	logger.LogDebug("Built partition block map", map[string]interface{}{
		"partition_number": chain.PartitionNumber,
		"chain_depth":      chain.Depth(),
		"blocks":           len(blockMap),
		"populated":        blockMap.Populated(),
	})

	return &BackupSet{
		Chain:   chain,
		Map:     blockMap,
		handles: NewHandleTable(opts.MaxOpenFiles, opts.Opener),
	}, nil
}

// Open resolves the chain of partition and builds its BackupSet
func Open(r *Resolver, current *mrimg.FileLayout, diskIndex int, partition *mrimg.PartitionLayout, opts Options) (*BackupSet, error) {
	chain, err := r.Resolve(current, diskIndex, partition)
	if err != nil {
		return nil, err
	}
	return New(chain, opts)
}

// CheckBlock verifies that element lies inside chain member file as it is
// on disk now. Callers run it before sizing a buffer for the block.
func (s *BackupSet) CheckBlock(file int, element mrimg.DataBlockIndexElement) error {
	_, err := s.source(file, element)
	return err
}

func (s *BackupSet) source(file int, element mrimg.DataBlockIndexElement) (*blockio.File, error) {
	if file < 0 || file >= s.Chain.Depth() {
		return nil, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "ReadBlock", "", element.FilePosition,
			fmt.Sprintf("chain member %d of %d", file, s.Chain.Depth()))
	}
	f, err := s.handles.Get(s.Chain.Members[file].Path)
	if err != nil {
		return nil, err
	}
	if err := mrimg.CheckElement(f.Name(), f.Size(), element); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadBlock reads element from chain member file into buf, which must be
// element.BlockLength bytes long.
func (s *BackupSet) ReadBlock(file int, element mrimg.DataBlockIndexElement, buf []byte) error {
	f, err := s.source(file, element)
	if err != nil {
		return err
	}
	if len(buf) != int(element.BlockLength) {
		return imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "ReadBlock", f.Name(), element.FilePosition,
			fmt.Sprintf("buffer of %d bytes for block of %d", len(buf), element.BlockLength))
	}
	return f.ReadAt(buf, element.FilePosition)
}

// Read reads the current version of logical block i into buf
func (s *BackupSet) Read(i int, buf []byte) error {
	if i < 0 || i >= len(s.Map) {
		return imgerrors.NewImageError(imgerrors.ErrIndexOutOfRange, "ReadBlock", "", -1,
			fmt.Sprintf("block %d of %d", i, len(s.Map)))
	}
	ref := s.Map[i]
	return s.ReadBlock(ref.File, ref.Block, buf)
}

// Handles exposes the handle table
func (s *BackupSet) Handles() *HandleTable {
	return s.handles
}

// Close releases every source file handle
func (s *BackupSet) Close() error {
	return s.handles.Close()
}
