package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForeignBase(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{`D:\Backups\4CB8A10D-00-00.mrimg`, "4CB8A10D-00-00.mrimg"},
		{`\\nas\share\img-01-01.mrimg`, "img-01-01.mrimg"},
		{"/srv/backups/img-00-00.mrimg", "img-00-00.mrimg"},
		{"img-00-00.mrimg", "img-00-00.mrimg"},
		{"C:img.mrimg", "img.mrimg"},
	}
	for _, tt := range tests {
		if got := ForeignBase(tt.path); got != tt.expected {
			t.Errorf("ForeignBase(%q) = %q; want %q", tt.path, got, tt.expected)
		}
	}
}

func TestIsWindowsPath(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{`C:\x`, true},
		{`\\server\share`, true},
		{"/usr/local", false},
		{"relative/file", false},
	}
	for _, tt := range tests {
		if got := IsWindowsPath(tt.path); got != tt.expected {
			t.Errorf("IsWindowsPath(%q) = %v; want %v", tt.path, got, tt.expected)
		}
	}
}

func TestSiblingPathAndExistence(t *testing.T) {
	dir := t.TempDir()
	anchor := filepath.Join(dir, "img-00-02.mrimg")
	got := SiblingPath(anchor, `E:\old\img-00-00.mrimg`)
	if got != filepath.Join(dir, "img-00-00.mrimg") {
		t.Fatalf("unexpected sibling path %q", got)
	}

	if FileExists(got) {
		t.Fatal("file should not exist yet")
	}
	if err := os.WriteFile(got, []byte{1}, 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(got) {
		t.Error("FileExists returned false for a regular file")
	}
	if FileExists(dir) || !DirExists(dir) {
		t.Error("directory misclassified")
	}

	nested := filepath.Join(dir, "a", "b")
	if err := CreateDirIfNotExists(nested); err != nil {
		t.Fatalf("CreateDirIfNotExists failed: %v", err)
	}
	if !DirExists(nested) {
		t.Error("nested directory was not created")
	}
}
