package backupset

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// BlockRef locates the current version of one logical block: the chain
// member holding it and its position in that file.
type BlockRef struct {
	File  int
	Block mrimg.DataBlockIndexElement
}

// BlockMap has one entry per logical block of the full backup
type BlockMap []BlockRef

// BuildBlockMap seeds the map from the full backup's index and overlays the
// delta index of every later member in chain order.
func BuildBlockMap(chain *Chain) (BlockMap, error) {
	if chain == nil || chain.Depth() == 0 {
		return nil, imgerrors.NewImageError(imgerrors.ErrChainResolution, "BuildBlockMap", "", -1, "empty chain")
	}

	full := chain.Full()
	if full.Partition.Header.DeltaIndex {
		return nil, imgerrors.NewImageError(imgerrors.ErrChainResolution, "BuildBlockMap", full.Path, -1,
			"oldest chain member is not a full backup")
	}

	blockMap := make(BlockMap, len(full.Partition.DataBlockIndex))
	for i, element := range full.Partition.DataBlockIndex {
		blockMap[i] = BlockRef{File: 0, Block: element}
	}

	for f := 1; f < chain.Depth(); f++ {
		member := chain.Members[f]
		for _, delta := range member.Partition.DeltaDataBlockIndex {
			if int64(delta.BlockIndex) >= int64(len(blockMap)) {
				return nil, imgerrors.NewImageError(imgerrors.ErrIndexOutOfRange, "BuildBlockMap", member.Path, -1,
					fmt.Sprintf("delta block index %d, full backup has %d blocks", delta.BlockIndex, len(blockMap)))
			}
			blockMap[delta.BlockIndex] = BlockRef{File: f, Block: delta.DataBlock}
		}
	}

	return blockMap, nil
}

// Populated returns the number of non-sparse entries
func (m BlockMap) Populated() int {
	n := 0
	for _, ref := range m {
		if !ref.Block.Sparse() {
			n++
		}
	}
	return n
}

// Bytes returns the total payload size of all non-sparse entries
func (m BlockMap) Bytes() int64 {
	var total int64
	for _, ref := range m {
		total += int64(ref.Block.BlockLength)
	}
	return total
}
