package api

import (
	"context"
	"fmt"
	"strings"

	"soundloom/internal/staging"
)

// ActiveCombinedFileProvider surfaces combined speech files still referenced
// by runs, for cleanup workflows.
type ActiveCombinedFileProvider interface {
	ActiveCombinedFiles(ctx context.Context) (map[string]struct{}, error)
}

type CleanStagingRequest struct {
	StagingDir  string
	CleanAll    bool
	ActiveFiles ActiveCombinedFileProvider
}

type CleanStagingResult struct {
	Configured bool
	Scope      string
	Cleanup    staging.CleanStaleResult
}

// CleanStagingDirectories applies staging cleanup policy used by CLI commands.
func CleanStagingDirectories(ctx context.Context, req CleanStagingRequest) (CleanStagingResult, error) {
	stagingDir := strings.TrimSpace(req.StagingDir)
	if stagingDir == "" {
		return CleanStagingResult{Configured: false}, nil
	}

	if req.CleanAll {
		result := CleanStagingResult{
			Configured: true,
			Scope:      "staging",
			Cleanup:    staging.CleanStale(ctx, stagingDir, 0, nil),
		}
		files := staging.CleanOrphaned(ctx, stagingDir, nil, nil)
		result.Cleanup.Removed = append(result.Cleanup.Removed, files.Removed...)
		result.Cleanup.Errors = append(result.Cleanup.Errors, files.Errors...)
		return result, nil
	}

	if req.ActiveFiles == nil {
		return CleanStagingResult{}, fmt.Errorf("active combined file provider is required when clean_all is false")
	}
	active, err := req.ActiveFiles.ActiveCombinedFiles(ctx)
	if err != nil {
		return CleanStagingResult{}, err
	}
	return CleanStagingResult{
		Configured: true,
		Scope:      "orphaned staging",
		Cleanup:    staging.CleanOrphaned(ctx, stagingDir, active, nil),
	}, nil
}
