// Package virtdisk provisions restore targets: sparse raw image files and,
// on Linux, loop devices over them.
package virtdisk

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/osutil"
)

// DefaultSectorSize is used when a layout does not record one
const DefaultSectorSize = 512

// Provisioner creates and attaches restore targets
type Provisioner interface {
	Create(path string, sizeBytes uint64, sectorSize uint32) error
	Mount(path string) (string, error)
	Unmount(device string) error
	Refresh(device string) error
}

// Runner executes an external command and returns its combined output
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// RawImage provisions plain disk image files
type RawImage struct {
	Run Runner
}

var _ Provisioner = (*RawImage)(nil)

// NewRawImage returns a provisioner that shells out to losetup and blockdev
func NewRawImage() *RawImage {
	return &RawImage{Run: execRunner}
}

// AlignedSize rounds sizeBytes up to a whole number of sectors
func AlignedSize(sizeBytes uint64, sectorSize uint32) uint64 {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	s := uint64(sectorSize)
	return (sizeBytes + s - 1) / s * s
}

// Create makes a zero-filled sparse image of at least sizeBytes, replacing
// any existing file at path.
func (r *RawImage) Create(path string, sizeBytes uint64, sectorSize uint32) error {
	if sizeBytes == 0 {
		return imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "CreateImage", path, -1, "disk size is zero")
	}
	size := AlignedSize(sizeBytes, sectorSize)

	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrProvisionFailed, err), "CreateImage", path, -1, "")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrProvisionFailed, err), "CreateImage", path, -1, "")
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrProvisionFailed, err), "CreateImage", path, -1,
			fmt.Sprintf("truncate to %d bytes", size))
	}
	if err := f.Close(); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrProvisionFailed, err), "CreateImage", path, -1, "")
	}

	logger.LogInfo("Created disk image", map[string]interface{}{
		"path":  path,
		"bytes": size,
	})
	return nil
}

// Mount attaches path to the first free loop device with partition scanning
// and returns the device path.
func (r *RawImage) Mount(path string) (string, error) {
	if err := requireLinux("MountImage", path); err != nil {
		return "", err
	}
	if !osutil.IsRoot() {
		logger.LogWarn("Attaching loop devices usually requires root", map[string]interface{}{"path": path})
	}
	output, err := r.run("MountImage", path, "losetup", "--find", "--show", "--partscan", path)
	if err != nil {
		return "", err
	}
	device := strings.TrimSpace(string(output))
	if device == "" {
		return "", imgerrors.NewImageError(imgerrors.ErrProvisionFailed, "MountImage", path, -1, "losetup reported no device")
	}

	logger.LogInfo("Attached disk image", map[string]interface{}{
		"path":   path,
		"device": device,
	})
	return device, nil
}

// Unmount detaches a loop device
func (r *RawImage) Unmount(device string) error {
	if err := requireLinux("UnmountImage", device); err != nil {
		return err
	}
	_, err := r.run("UnmountImage", device, "losetup", "--detach", device)
	return err
}

// Refresh asks the kernel to re-read the device's partition table
func (r *RawImage) Refresh(device string) error {
	if err := requireLinux("RefreshImage", device); err != nil {
		return err
	}
	_, err := r.run("RefreshImage", device, "blockdev", "--rereadpt", device)
	return err
}

func (r *RawImage) run(op, object, name string, args ...string) ([]byte, error) {
	run := r.Run
	if run == nil {
		run = execRunner
	}
	output, err := run(name, args...)
	if err != nil {
		logger.LogError("Provisioning command failed", err, map[string]interface{}{
			"command": name,
			"args":    args,
			"output":  strings.TrimSpace(string(output)),
		})
		return nil, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrProvisionFailed, err), op, object, -1,
			strings.TrimSpace(string(output)))
	}
	return output, nil
}

func requireLinux(op, object string) error {
	if !osutil.IsLinux() {
		return imgerrors.NewImageError(imgerrors.ErrUnsupported, op, object, -1,
			fmt.Sprintf("loop devices are not available on %s", osutil.GetOSType()))
	}
	return nil
}
