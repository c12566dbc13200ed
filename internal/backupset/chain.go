package backupset

import (
	"fmt"
	"sort"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Member is one backup file of a resolved chain
type Member struct {
	Path       string
	FileNumber int32
	Layout     *mrimg.FileLayout
	Partition  *mrimg.PartitionLayout
}

// Chain is the ordered set of files needed to reconstruct one partition.
// Members run from the full backup (index 0) to the newest incremental.
type Chain struct {
	DiskIndex       int
	PartitionNumber int32
	Members         []Member
}

// Depth returns the number of files in the chain
func (c *Chain) Depth() int {
	return len(c.Members)
}

// Full returns the base full backup
func (c *Chain) Full() Member {
	return c.Members[0]
}

// Newest returns the most recent file of the chain
func (c *Chain) Newest() Member {
	return c.Members[len(c.Members)-1]
}

// Paths returns member paths oldest first
func (c *Chain) Paths() []string {
	paths := make([]string, len(c.Members))
	for i, m := range c.Members {
		paths[i] = m.Path
	}
	return paths
}

// Resolver walks a partition's file history back to its full backup
type Resolver struct {
	Loader  Loader
	Locator *Locator
}

// NewResolver returns a resolver that decodes history files from disk,
// locating them relative to the current backup file.
func NewResolver(current *mrimg.FileLayout, opts mrimg.Options) *Resolver {
	loader := NewFileLoader(opts)
	loader.Add(current)
	return &Resolver{Loader: loader, Locator: NewLocator(current.Path)}
}

// Resolve builds the chain for partition, a partition of current on
// diskIndex. History is visited newest first and each file's matching
// partition is prepended, stopping at the first full backup.
func (r *Resolver) Resolve(current *mrimg.FileLayout, diskIndex int, partition *mrimg.PartitionLayout) (*Chain, error) {
	number := partition.Header.PartitionNumber
	chain := &Chain{DiskIndex: diskIndex, PartitionNumber: number}

	currentNumber := int32(current.Header.FileNumber)
	history := sortedHistory(withCurrent(partition.Header.FileHistory, current.Path, currentNumber))

	for _, entry := range history {
		if entry.FileNumber > currentNumber {
			logger.LogDebug("Ignoring history entry newer than the restored file", map[string]interface{}{
				"file_name":   entry.FileName,
				"file_number": entry.FileNumber,
			})
			continue
		}

		member, err := r.visit(current, entry, diskIndex, number)
		if err != nil {
			return nil, err
		}
		chain.Members = append([]Member{member}, chain.Members...)

		logger.LogDebug("Added backup file to chain", map[string]interface{}{
			"path":        member.Path,
			"file_number": member.FileNumber,
			"delta_index": member.Layout.Header.DeltaIndex,
		})

		if member.Layout.IsFull() {
			return chain, nil
		}
	}

	return nil, imgerrors.NewImageError(imgerrors.ErrChainResolution, "ResolveChain", current.Path, -1,
		fmt.Sprintf("no full backup in %d history entries of partition %d", len(history), number))
}

func (r *Resolver) visit(current *mrimg.FileLayout, entry mrimg.FileHistory, diskIndex int, number int32) (Member, error) {
	var layout *mrimg.FileLayout
	path := entry.FileName

	if entry.FileNumber == int32(current.Header.FileNumber) {
		layout = current
		path = current.Path
	} else {
		if r.Locator != nil {
			located, err := r.Locator.Locate(entry.FileName)
			if err != nil {
				return Member{}, err
			}
			path = located
		}
		loaded, err := r.Loader.Load(path)
		if err != nil {
			return Member{}, err
		}
		layout = loaded
	}

	partition, ok := layout.FindPartition(diskIndex, number)
	if !ok {
		return Member{}, imgerrors.NewImageError(imgerrors.ErrChainResolution, "ResolveChain", path, -1,
			fmt.Sprintf("no partition %d on disk %d", number, diskIndex))
	}
	return Member{Path: path, FileNumber: entry.FileNumber, Layout: layout, Partition: partition}, nil
}

// sortedHistory orders entries newest first and drops repeated file numbers
func sortedHistory(history []mrimg.FileHistory) []mrimg.FileHistory {
	sorted := make([]mrimg.FileHistory, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FileNumber > sorted[j].FileNumber
	})

	out := sorted[:0]
	for _, entry := range sorted {
		if len(out) > 0 && entry.FileNumber == out[len(out)-1].FileNumber {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// withCurrent adds the restored file to history when it does not list itself
func withCurrent(history []mrimg.FileHistory, path string, number int32) []mrimg.FileHistory {
	for _, entry := range history {
		if entry.FileNumber == number {
			return history
		}
	}
	out := make([]mrimg.FileHistory, 0, len(history)+1)
	out = append(out, history...)
	return append(out, mrimg.FileHistory{FileName: path, FileNumber: number})
}
