package pipeline

import (
	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/restore"
	"github.com/deploymenttheory/go-mrimg-restore/internal/virtdisk"
)

// Step is a single stage of restoring one disk
type Step struct {
	// Unique name for the step
	Name string

	// Type selects the handler
	Type string

	// Optional human-readable description of the step
	Description string

	// Condition reports whether the step runs for a job. Nil always runs.
	Condition func(job *DiskJob) bool
}

// Settings control a restore run
type Settings struct {
	OutputDir    string
	ImageName    string // fmt pattern receiving the disk index
	DiskIndex    int    // -1 restores every disk
	Compression  string
	Digest       string
	Mount        bool
	MaxOpenFiles int
	Parser       mrimg.Options

	Progress    restore.ProgressFunc
	Provisioner virtdisk.Provisioner
}

// DiskJob carries one disk through the pipeline. Steps fill in the outputs.
type DiskJob struct {
	Layout    *mrimg.FileLayout
	Disk      int
	ImagePath string
	Settings  *Settings

	resolver *backupset.Resolver

	Result  *restore.Result
	Digest  string
	Archive string
	Device  string
}
