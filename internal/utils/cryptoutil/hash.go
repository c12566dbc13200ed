// Package cryptoutil computes and verifies digests of restored disk images
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// Bytes2Hex encodes a byte slice to hex string
func Bytes2Hex(d []byte) string {
	return hex.EncodeToString(d)
}

// HashAlgorithm represents supported hash algorithms
type HashAlgorithm string

const (
	// None disables digest computation
	None HashAlgorithm = "none"

	// SHA256 algorithm
	SHA256 HashAlgorithm = "sha256"

	// BLAKE2b256 is BLAKE2b with a 256-bit digest
	BLAKE2b256 HashAlgorithm = "blake2b"
)

// Hasher computes digests with one algorithm
type Hasher struct {
	algorithm HashAlgorithm
	newHash   func() hash.Hash
}

// NewHasher creates a new Hasher for the specified algorithm
func NewHasher(algorithm HashAlgorithm) (*Hasher, error) {
	var newHashFunc func() hash.Hash

	switch HashAlgorithm(strings.ToLower(string(algorithm))) {
	case SHA256:
		newHashFunc = sha256.New
	case BLAKE2b256:
		newHashFunc = func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes
			h, _ := blake2b.New256(nil)
			return h
		}
	default:
		return nil, imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "NewHasher", "", -1,
			fmt.Sprintf("unsupported hash algorithm '%s'", algorithm))
	}

	return &Hasher{algorithm: algorithm, newHash: newHashFunc}, nil
}

// Algorithm returns the algorithm name
func (h *Hasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

// Hash hashes the provided data
func (h *Hasher) Hash(data []byte) string {
	hasher := h.newHash()
	hasher.Write(data)
	return Bytes2Hex(hasher.Sum(nil))
}

// HashFile hashes the content of a file
func (h *Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "HashFile", path, -1, "")
	}
	defer file.Close()

	sum, err := h.HashReader(file)
	if err != nil {
		return "", imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "HashFile", path, -1, "")
	}
	return sum, nil
}

// HashReader hashes data from a reader
func (h *Hasher) HashReader(reader io.Reader) (string, error) {
	hasher := h.newHash()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("hash operation failed: %w", err)
	}
	return Bytes2Hex(hasher.Sum(nil)), nil
}

// NewHashWriter creates a writer for streaming hash calculation
func (h *Hasher) NewHashWriter() *HashWriter {
	return &HashWriter{hash: h.newHash()}
}

// VerifyFile checks if the provided hash matches the calculated hash for the file
func (h *Hasher) VerifyFile(path string, expectedHash string) (bool, error) {
	actualHash, err := h.HashFile(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actualHash, expectedHash), nil
}

// ChecksumPath returns the sidecar file name for an image digest
func ChecksumPath(imagePath string, algorithm HashAlgorithm) string {
	return imagePath + "." + string(algorithm)
}

// WriteChecksumFile hashes imagePath and writes "<hex> *<name>" next to it,
// the format read by sha256sum and b2sum. It returns the digest.
func WriteChecksumFile(imagePath string, algorithm HashAlgorithm) (string, error) {
	hasher, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}
	sum, err := hasher.HashFile(imagePath)
	if err != nil {
		return "", err
	}

	line := fmt.Sprintf("%s *%s\n", sum, filepath.Base(imagePath))
	checksumPath := ChecksumPath(imagePath, algorithm)
	if err := os.WriteFile(checksumPath, []byte(line), 0644); err != nil {
		return "", imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteChecksum", checksumPath, -1, "")
	}
	return sum, nil
}

// VerifyChecksumFile verifies a file against a checksum file
// The checksum file should contain the hash as the first field
func VerifyChecksumFile(filePath, checksumFilePath string, algorithm HashAlgorithm) (bool, error) {
	data, err := os.ReadFile(checksumFilePath)
	if err != nil {
		return false, imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "VerifyChecksum", checksumFilePath, -1, "")
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return false, imgerrors.NewImageError(imgerrors.ErrFormat, "VerifyChecksum", checksumFilePath, -1,
			"checksum file is empty or malformed")
	}

	hasher, err := NewHasher(algorithm)
	if err != nil {
		return false, err
	}
	return hasher.VerifyFile(filePath, fields[0])
}
