// Package pipeline runs the per-disk restore workflow: provision the target
// image, replay the backup chain onto it, then optionally digest, compress
// and attach it.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/virtdisk"
)

// Step types
const (
	StepProvision = "provision"
	StepRestore   = "restore"
	StepDigest    = "digest"
	StepCompress  = "compress"
	StepMount     = "mount"
)

// SettingsFromConfig maps the application configuration onto run settings
func SettingsFromConfig(c *config.AppConfig) Settings {
	return Settings{
		OutputDir:    c.Restore.OutputDir,
		ImageName:    c.Restore.ImageName,
		DiskIndex:    c.Restore.DiskIndex,
		Compression:  c.Restore.Compression,
		Digest:       c.Restore.Digest,
		Mount:        c.Restore.Mount,
		MaxOpenFiles: c.Restore.MaxOpenFiles,
		Parser:       mrimg.Options{MaxPayloadBytes: c.Parser.MaxPayloadBytes},
	}
}

// Plan returns the ordered steps run for every disk
func Plan() []Step {
	return []Step{
		{Name: "Create image", Type: StepProvision, Description: "create a sparse image of the disk size"},
		{Name: "Restore disk", Type: StepRestore, Description: "write track 0 and every partition"},
		{
			Name:        "Digest image",
			Type:        StepDigest,
			Description: "write a checksum file next to the image",
			Condition:   func(j *DiskJob) bool { return enabled(j.Settings.Digest) },
		},
		{
			Name:        "Compress image",
			Type:        StepCompress,
			Description: "write a compressed copy of the image",
			Condition:   func(j *DiskJob) bool { return enabled(j.Settings.Compression) },
		},
		{
			Name:        "Attach image",
			Type:        StepMount,
			Description: "attach the image to a loop device",
			Condition:   func(j *DiskJob) bool { return j.Settings.Mount },
		},
	}
}

func enabled(setting string) bool {
	return setting != "" && setting != "none"
}

// ValidatePlan validates the step list and settings
func ValidatePlan(steps []Step, s *Settings) []error {
	var errs []error

	if len(steps) == 0 {
		errs = append(errs, fmt.Errorf("plan must contain at least one step"))
	}

	registry := createStepHandlerRegistry()
	for i, step := range steps {
		if step.Name == "" {
			errs = append(errs, fmt.Errorf("step %d: name is required", i+1))
		}
		if _, ok := registry[step.Type]; !ok {
			errs = append(errs, fmt.Errorf("step %d (%s): invalid type '%s'", i+1, step.Name, step.Type))
		}
	}

	if !strings.Contains(s.ImageName, "%d") {
		errs = append(errs, fmt.Errorf("image name %q must contain %%d", s.ImageName))
	}
	switch s.Compression {
	case "", "none", "gzip", "bzip2", "xz":
	default:
		errs = append(errs, fmt.Errorf("unsupported compression %q", s.Compression))
	}
	switch s.Digest {
	case "", "none", "sha256", "blake2b":
	default:
		errs = append(errs, fmt.Errorf("unsupported digest %q", s.Digest))
	}

	return errs
}

// ImagePath returns the output image path for a disk index
func (s *Settings) ImagePath(disk int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf(s.ImageName, disk))
}

// Disks returns the disk indexes selected by the settings
func (s *Settings) Disks(layout *mrimg.FileLayout) ([]int, error) {
	if s.DiskIndex >= 0 {
		if s.DiskIndex >= len(layout.Disks) {
			return nil, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "SelectDisk", layout.Path, -1,
				fmt.Sprintf("disk %d requested, backup holds %d", s.DiskIndex, len(layout.Disks)))
		}
		return []int{s.DiskIndex}, nil
	}
	disks := make([]int, len(layout.Disks))
	for i := range disks {
		disks[i] = i
	}
	return disks, nil
}

// Run decodes the backup file at path and restores the selected disks
func Run(path string, s Settings) ([]*DiskJob, error) {
	layout, err := mrimg.ReadFileLayout(path, s.Parser)
	if err != nil {
		return nil, err
	}
	return Execute(layout, s)
}

// Execute restores the selected disks of layout, one after another
func Execute(layout *mrimg.FileLayout, s Settings) ([]*DiskJob, error) {
	steps := Plan()
	if errs := ValidatePlan(steps, &s); len(errs) > 0 {
		for _, err := range errs {
			logger.LogError("Restore plan validation error", err, nil)
		}
		return nil, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "ValidatePlan", layout.Path, -1,
			fmt.Sprintf("%d validation errors, first: %v", len(errs), errs[0]))
	}

	if s.Provisioner == nil {
		s.Provisioner = virtdisk.NewRawImage()
	}

	disks, err := s.Disks(layout)
	if err != nil {
		return nil, err
	}

	// One resolver per run so history files shared between disks are decoded once
	resolver := backupset.NewResolver(layout, s.Parser)

	var jobs []*DiskJob
	for _, d := range disks {
		job := &DiskJob{
			Layout:    layout,
			Disk:      d,
			ImagePath: s.ImagePath(d),
			Settings:  &s,
			resolver:  resolver,
		}
		jobs = append(jobs, job)
		if err := executeSteps(job, steps); err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

// executeSteps runs the plan for one disk
func executeSteps(job *DiskJob, steps []Step) error {
	logger.LogInfo("Starting disk restore", map[string]interface{}{
		"backup": job.Layout.Path,
		"disk":   job.Disk,
		"image":  job.ImagePath,
		"steps":  len(steps),
	})

	registry := createStepHandlerRegistry()

	for i, step := range steps {
		if step.Condition != nil && !step.Condition(job) {
			logger.LogDebug(fmt.Sprintf("Skipping step %d/%d: %s (condition not met)", i+1, len(steps), step.Name), nil)
			continue
		}

		logger.LogInfo(fmt.Sprintf("Executing step %d/%d: %s", i+1, len(steps), step.Name),
			map[string]interface{}{
				"type":        step.Type,
				"description": step.Description,
				"disk":        job.Disk,
			})

		handler, found := registry[step.Type]
		if !found {
			return fmt.Errorf("no handler found for step type '%s'", step.Type)
		}
		if err := handler(job); err != nil {
			return fmt.Errorf("error executing step '%s' for disk %d: %w", step.Name, job.Disk, err)
		}
	}

	logger.LogInfo("Disk restore completed", map[string]interface{}{
		"disk":  job.Disk,
		"image": job.ImagePath,
	})
	return nil
}
