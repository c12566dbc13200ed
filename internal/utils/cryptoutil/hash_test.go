package cryptoutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

func TestHash(t *testing.T) {
	tests := []struct {
		algorithm HashAlgorithm
		want      string
	}{
		{SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{BLAKE2b256, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"},
	}
	for _, tt := range tests {
		h, err := NewHasher(tt.algorithm)
		if err != nil {
			t.Fatalf("NewHasher(%s): %v", tt.algorithm, err)
		}
		if got := h.Hash(nil); got != tt.want {
			t.Errorf("%s of empty input = %s; want %s", tt.algorithm, got, tt.want)
		}
	}

	if _, err := NewHasher("md5"); !errors.Is(err, imgerrors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for md5, got %v", err)
	}
}

func TestHashWriterMatchesHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0.img")
	content := strings.Repeat("sector", 1000)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	h, _ := NewHasher(BLAKE2b256)
	w := h.NewHashWriter()
	if _, err := io.Copy(w, strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	fromFile, err := h.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.SumHex() != fromFile {
		t.Errorf("streamed digest %s differs from file digest %s", w.SumHex(), fromFile)
	}
	if w.Written() != int64(len(content)) {
		t.Errorf("Written() = %d", w.Written())
	}
}

func TestChecksumFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0.img")
	if err := os.WriteFile(path, []byte("restored"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, algorithm := range []HashAlgorithm{SHA256, BLAKE2b256} {
		sum, err := WriteChecksumFile(path, algorithm)
		if err != nil {
			t.Fatalf("WriteChecksumFile(%s): %v", algorithm, err)
		}
		data, err := os.ReadFile(ChecksumPath(path, algorithm))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != sum+" *disk0.img\n" {
			t.Errorf("checksum file = %q", data)
		}

		ok, err := VerifyChecksumFile(path, ChecksumPath(path, algorithm), algorithm)
		if err != nil || !ok {
			t.Errorf("VerifyChecksumFile(%s) = %v, %v", algorithm, ok, err)
		}
	}

	if err := os.WriteFile(path, []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyChecksumFile(path, ChecksumPath(path, SHA256), SHA256)
	if err != nil || ok {
		t.Errorf("tampered image verified: %v, %v", ok, err)
	}
}
