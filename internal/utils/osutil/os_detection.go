package osutil

import (
	"os"
	"runtime"
)

// OS type constants
const (
	Windows = "windows"
	MacOS   = "darwin"
	Linux   = "linux"
)

// GetOSType returns the current operating system type
func GetOSType() string {
	return runtime.GOOS
}

// IsWindows returns true if running on Windows
func IsWindows() bool {
	return GetOSType() == Windows
}

// IsLinux returns true if running on Linux
func IsLinux() bool {
	return GetOSType() == Linux
}

// IsDevEnvironment checks if the application is running in a development environment
// based on environment variables
func IsDevEnvironment() bool {
	return os.Getenv("MRIMG_RESTORE_ENV") == "development" ||
		os.Getenv("MRIMG_RESTORE_DEV") == "true"
}

// IsRoot reports whether the process runs with an effective uid of 0.
// Always false on Windows.
func IsRoot() bool {
	if IsWindows() {
		return false
	}
	return os.Geteuid() == 0
}
