package preflight

import (
	"context"

	"soundloom/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Staging directory (always checked)
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))

	// Library directory (when configured)
	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}

	// Alignment cache
	if cfg.Alignment.Enabled && cfg.Paths.AlignmentCacheDir != "" {
		results = append(results, CheckDirectoryAccess("Alignment cache", cfg.Paths.AlignmentCacheDir))
	}

	// Generation provider
	if cfg.Generation.Enabled {
		results = append(results, CheckGeneration(ctx, cfg.Generation.BaseURL, cfg.Generation.APIToken))
	}

	return results
}
