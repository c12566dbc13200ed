// Package tooling exposes the restore and inspect operations as a library
// for programs that embed mrimg-restore instead of shelling out to the CLI.
package tooling

import (
	"fmt"
	"io"

	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/inspect"
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/pipeline"
	"github.com/deploymenttheory/go-mrimg-restore/internal/restore"
)

// InitOptions contains options for initializing the tooling API
type InitOptions struct {
	ConfigFile  string // Path to configuration file
	Debug       bool   // Enable debug logging
	LogFormat   string // Log format: "human" or "json"
	LogFile     string // Path to log file
	SuppressLog bool   // Suppress all logging
}

// RestoreOptions override the configured restore settings. Zero values keep
// the configuration, except DiskIndex where nil means "as configured".
type RestoreOptions struct {
	OutputDir    string
	ImageName    string
	DiskIndex    *int
	Compression  string
	Digest       string
	Mount        bool
	MaxOpenFiles int

	// Progress receives per-partition progress updates
	Progress func(disk, partition, blocksDone, blocksTotal int)
}

// DiskResult describes one restored disk
type DiskResult struct {
	Disk          int
	ImagePath     string
	BlocksWritten int
	SparseBlocks  int
	BytesWritten  int64
	Digest        string
	Archive       string
	Device        string
}

// RestoreResult contains the results of a restore
type RestoreResult struct {
	Success      bool
	ErrorMessage string
	Disks        []DiskResult
}

var initialized bool

// Initialize initializes the tooling API with the given options
func Initialize(options InitOptions) error {
	if initialized {
		return nil
	}

	configErr := config.Initialize(options.ConfigFile)

	if options.Debug {
		config.Instance.Debug = true
	}
	if options.LogFormat != "" {
		config.Instance.LogFormat = options.LogFormat
	}
	if options.LogFile != "" {
		config.Instance.LogFile = options.LogFile
	}

	if !options.SuppressLog {
		logConfig := logger.LoggerConfig{
			Debug:     config.Instance.Debug,
			LogFormat: config.Instance.LogFormat,
			LogFile:   config.Instance.LogFile,
		}
		if err := logger.InitLogger(logConfig); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.LogInfo("Tooling API initialized", map[string]interface{}{
			"config_file": options.ConfigFile,
			"debug":       options.Debug,
			"log_format":  options.LogFormat,
		})
		if configErr != nil {
			logger.LogWarn("Configuration initialization warning", map[string]interface{}{
				"error": configErr.Error(),
			})
		}
	}

	initialized = true
	return nil
}

// DefaultOptions returns the default initialization options
func DefaultOptions() InitOptions {
	return InitOptions{
		LogFormat:   "human",
		SuppressLog: true,
	}
}

func ensureInitialized() error {
	if initialized {
		return nil
	}
	if err := Initialize(DefaultOptions()); err != nil {
		return fmt.Errorf("failed to initialize tooling API: %w", err)
	}
	return nil
}

// settings merges options over the configured restore settings
func (o RestoreOptions) settings() pipeline.Settings {
	s := pipeline.SettingsFromConfig(&config.Instance)
	if o.OutputDir != "" {
		s.OutputDir = o.OutputDir
	}
	if o.ImageName != "" {
		s.ImageName = o.ImageName
	}
	if o.DiskIndex != nil {
		s.DiskIndex = *o.DiskIndex
	}
	if o.Compression != "" {
		s.Compression = o.Compression
	}
	if o.Digest != "" {
		s.Digest = o.Digest
	}
	if o.Mount {
		s.Mount = true
	}
	if o.MaxOpenFiles > 0 {
		s.MaxOpenFiles = o.MaxOpenFiles
	}
	if o.Progress != nil {
		progress := o.Progress
		s.Progress = func(p restore.Progress) {
			progress(p.Disk, p.Partition, p.BlocksDone, p.BlocksTotal)
		}
	}
	return s
}

// RestoreFile restores the disks of the backup file at path
func RestoreFile(path string, options RestoreOptions) (*RestoreResult, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	jobs, err := pipeline.Run(path, options.settings())

	result := &RestoreResult{Success: err == nil}
	if err != nil {
		result.ErrorMessage = err.Error()
	}
	for _, job := range jobs {
		d := DiskResult{
			Disk:      job.Disk,
			ImagePath: job.ImagePath,
			Digest:    job.Digest,
			Archive:   job.Archive,
			Device:    job.Device,
		}
		if job.Result != nil {
			d.BlocksWritten = job.Result.BlocksWritten
			d.SparseBlocks = job.Result.SparseBlocks
			d.BytesWritten = job.Result.BytesWritten
		}
		result.Disks = append(result.Disks, d)
	}
	return result, err
}

// InspectFile writes the decoded layout of the backup file at path to w in
// the given format (summary, json or plist). With chain set, each
// partition's backup chain is resolved and listed.
func InspectFile(w io.Writer, path, format string, chain bool) error {
	report, err := buildReport(path, chain)
	if err != nil {
		return err
	}
	return inspect.Render(w, report, format)
}

// WriteReport saves the decoded layout of the backup file at path to output
func WriteReport(output, path, format string, chain bool) error {
	report, err := buildReport(path, chain)
	if err != nil {
		return err
	}
	return inspect.WriteFile(output, report, format)
}

func buildReport(path string, chain bool) (*inspect.Report, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}

	opts := mrimg.Options{MaxPayloadBytes: config.Instance.Parser.MaxPayloadBytes}
	layout, err := mrimg.ReadFileLayout(path, opts)
	if err != nil {
		return nil, err
	}

	var resolver *backupset.Resolver
	if chain {
		resolver = backupset.NewResolver(layout, opts)
	}
	return inspect.NewReport(layout, resolver), nil
}

// VerifyImage checks a restored image against its checksum file. Empty
// digest and checksumFile select sha256 and the sidecar next to the image.
func VerifyImage(image, digest, checksumFile string) error {
	if err := ensureInitialized(); err != nil {
		return err
	}
	return pipeline.VerifyImage(image, digest, checksumFile)
}

// ExtractImage decompresses an image archive and returns the image path
func ExtractImage(archive, output string) (string, error) {
	if err := ensureInitialized(); err != nil {
		return "", err
	}
	return pipeline.ExtractImage(archive, output, "auto")
}

// GetVersion returns the current version of the tooling API
func GetVersion() string {
	return "0.1.0"
}

// Shutdown flushes logs before the embedding application exits
func Shutdown() error {
	if initialized {
		logger.LogInfo("Tooling API shutting down", nil)
		logger.Sync()
	}
	return nil
}
