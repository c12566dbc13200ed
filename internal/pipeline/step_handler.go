package pipeline

import (
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/restore"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	compression "github.com/deploymenttheory/go-mrimg-restore/internal/utils/compressionutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/cryptoutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/virtdisk"
)

// StepHandler executes one step for a disk
type StepHandler func(job *DiskJob) error

func createStepHandlerRegistry() map[string]StepHandler {
	return map[string]StepHandler{
		StepProvision: handleProvisionStep,
		StepRestore:   handleRestoreStep,
		StepDigest:    handleDigestStep,
		StepCompress:  handleCompressStep,
		StepMount:     handleMountStep,
	}
}

func handleProvisionStep(job *DiskJob) error {
	geometry := job.Layout.Disks[job.Disk].Geometry
	sector := geometry.BytesPerSector
	if sector == 0 {
		sector = virtdisk.DefaultSectorSize
	}
	return job.Settings.Provisioner.Create(job.ImagePath, geometry.DiskSize, sector)
}

func handleRestoreStep(job *DiskJob) (err error) {
	medium, err := blockio.OpenMedium(job.ImagePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := medium.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err := restore.RestoreDisk(medium, job.Layout, job.Disk, restore.Options{
		Parser:       job.Settings.Parser,
		MaxOpenFiles: job.Settings.MaxOpenFiles,
		Resolver:     job.resolver,
		Progress:     job.Settings.Progress,
	})
	job.Result = result
	if err != nil {
		return err
	}
	return medium.Sync()
}

func handleDigestStep(job *DiskJob) error {
	sum, err := cryptoutil.WriteChecksumFile(job.ImagePath, cryptoutil.HashAlgorithm(job.Settings.Digest))
	if err != nil {
		return err
	}
	job.Digest = sum

	logger.LogInfo("Image digest written", map[string]interface{}{
		"image":     job.ImagePath,
		"algorithm": job.Settings.Digest,
		"digest":    sum,
	})
	return nil
}

func handleCompressStep(job *DiskJob) error {
	archive := job.ImagePath + compression.Extension(job.Settings.Compression)
	if _, err := compression.CompressFile(job.ImagePath, archive, job.Settings.Compression); err != nil {
		return err
	}
	job.Archive = archive
	return nil
}

func handleMountStep(job *DiskJob) error {
	device, err := job.Settings.Provisioner.Mount(job.ImagePath)
	if err != nil {
		return err
	}
	job.Device = device

	if err := job.Settings.Provisioner.Refresh(device); err != nil {
		logger.LogWarn("Partition table re-read failed", map[string]interface{}{
			"device": device,
			"error":  err.Error(),
		})
	}
	return nil
}
