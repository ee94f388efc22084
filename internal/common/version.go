package common

import (
	"fmt"
	"runtime"
)

// Version information, set via -ldflags "-X github.com/ternarybob/inkwell/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info and the Go runtime
func GetFullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s %s/%s)", Version, GitCommit, Build, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
