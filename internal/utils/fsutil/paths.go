// fsutil/paths.go
package fsutil

import (
	"path/filepath"
	"strings"
)

// IsWindowsPath checks if a path appears to be a Windows-style path
func IsWindowsPath(path string) bool {
	// Drive letter (e.g., C:)
	if len(path) >= 2 && path[1] == ':' {
		return true
	}

	// UNC path (e.g., \\server\share)
	if len(path) >= 2 && path[0] == '\\' && path[1] == '\\' {
		return true
	}

	return strings.Contains(path, "\\")
}

// ForeignBase returns the last element of a path that may have been recorded
// on another OS. Both separators are honored regardless of the host.
func ForeignBase(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		path = path[i+1:]
	}
	if len(path) >= 2 && path[1] == ':' {
		path = path[2:]
	}
	return path
}

// SiblingPath joins the foreign base name of recorded onto the directory of anchor
func SiblingPath(anchor, recorded string) string {
	return filepath.Join(filepath.Dir(anchor), ForeignBase(recorded))
}
