package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type activeFilesStub struct {
	files map[string]struct{}
	err   error
}

func (s *activeFilesStub) ActiveCombinedFiles(context.Context) (map[string]struct{}, error) {
	return s.files, s.err
}

func TestCleanStagingDirectoriesUnconfigured(t *testing.T) {
	result, err := CleanStagingDirectories(context.Background(), CleanStagingRequest{})
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Configured {
		t.Fatal("expected unconfigured result for empty staging dir")
	}
}

func TestCleanStagingDirectoriesRequiresProvider(t *testing.T) {
	_, err := CleanStagingDirectories(context.Background(), CleanStagingRequest{StagingDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error when provider missing and clean_all false")
	}
}

func TestCleanStagingDirectoriesOrphanedScope(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "combined_speech_1_100.mp3")
	orphan := filepath.Join(dir, "combined_speech_2_200.mp3")
	for _, path := range []string{keep, orphan} {
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	result, err := CleanStagingDirectories(context.Background(), CleanStagingRequest{
		StagingDir:  dir,
		ActiveFiles: &activeFilesStub{files: map[string]struct{}{"combined_speech_1_100.mp3": {}}},
	})
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Scope != "orphaned staging" {
		t.Fatalf("unexpected scope: %q", result.Scope)
	}
	if len(result.Cleanup.Removed) != 1 || result.Cleanup.Removed[0] != orphan {
		t.Fatalf("unexpected removals: %+v", result.Cleanup.Removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("expected active file to survive: %v", err)
	}
}

func TestCleanStagingDirectoriesCleanAll(t *testing.T) {
	dir := t.TempDir()
	scratch := filepath.Join(dir, "combine-3-555")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	combined := filepath.Join(dir, "combined_speech_3_300.mp3")
	if err := os.WriteFile(combined, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write combined: %v", err)
	}

	result, err := CleanStagingDirectories(context.Background(), CleanStagingRequest{
		StagingDir: dir,
		CleanAll:   true,
	})
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Scope != "staging" {
		t.Fatalf("unexpected scope: %q", result.Scope)
	}
	if len(result.Cleanup.Removed) != 2 {
		t.Fatalf("expected scratch dir and combined file removed, got %+v", result.Cleanup.Removed)
	}
	if len(result.Cleanup.Errors) != 0 {
		t.Fatalf("unexpected cleanup errors: %+v", result.Cleanup.Errors)
	}
}
