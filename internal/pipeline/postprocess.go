package pipeline

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	compression "github.com/deploymenttheory/go-mrimg-restore/internal/utils/compressionutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/cryptoutil"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// VerifyImage checks image against the checksum file written by the digest
// step. An empty digest means sha256; an empty checksumFile means the
// sidecar next to the image. A mismatch is a format error.
func VerifyImage(image, digest, checksumFile string) error {
	if !enabled(digest) {
		digest = string(cryptoutil.SHA256)
	}
	algorithm := cryptoutil.HashAlgorithm(digest)
	if checksumFile == "" {
		checksumFile = cryptoutil.ChecksumPath(image, algorithm)
	}

	ok, err := cryptoutil.VerifyChecksumFile(image, checksumFile, algorithm)
	if err != nil {
		return err
	}
	if !ok {
		return imgerrors.NewImageError(imgerrors.ErrFormat, "VerifyImage", image, -1,
			fmt.Sprintf("%s digest does not match %s", digest, checksumFile))
	}

	logger.LogInfo("Image verified", map[string]interface{}{
		"image":     image,
		"algorithm": digest,
		"checksum":  checksumFile,
	})
	return nil
}

// ExtractImage decompresses an archive written by the compress step and
// returns the image path. An empty output strips the archive suffix.
func ExtractImage(archive, output, format string) (string, error) {
	if output == "" {
		base, ok := compression.TrimExtension(archive)
		if !ok {
			base += ".img"
		}
		output = base
	}
	if format == "" {
		format = "auto"
	}

	if err := compression.ExtractFile(archive, output, format); err != nil {
		return "", err
	}

	logger.LogInfo("Image extracted", map[string]interface{}{
		"archive": archive,
		"image":   output,
	})
	return output, nil
}
