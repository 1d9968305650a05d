package preflight

import (
	"fmt"

	"reeldex/internal/config"
)

// minLibraryFreeBytes is the free-space floor for the library filesystem.
// A single transcoded episode can approach a gigabyte, so anything under
// this leaves no headroom for a run.
const minLibraryFreeBytes uint64 = 2 * 1024 * 1024 * 1024

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Binary checks live in CheckSystemDeps so callers that only need path
// validation can skip the PATH lookups.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
		results = append(results, CheckDiskSpace("Library free space", cfg.Paths.LibraryDir, minLibraryFreeBytes))
	}

	for _, series := range cfg.Series {
		results = append(results, CheckDirectoryReadable(fmt.Sprintf("Source (%s)", series.Name), series.SourceDir))
	}

	return results
}
