package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"soundloom/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGeneration_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Token good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckGeneration(context.Background(), srv.URL, "good-token")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckGeneration_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckGeneration(context.Background(), srv.URL, "bad-token")
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
}

func TestCheckGeneration_MissingURL(t *testing.T) {
	result := CheckGeneration(context.Background(), "", "token")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckGeneration_MissingToken(t *testing.T) {
	result := CheckGeneration(context.Background(), "http://localhost", "")
	if result.Passed {
		t.Fatal("expected failure for missing token")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.Alignment.Enabled = false
	cfg.Generation.Enabled = false

	results := RunAll(context.Background(), &cfg)
	// Should have staging + library directory checks
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesGenerationWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LibraryDir = ""
	cfg.Alignment.Enabled = false
	cfg.Generation.Enabled = true
	cfg.Generation.BaseURL = srv.URL
	cfg.Generation.APIToken = "test"

	results := RunAll(context.Background(), &cfg)
	found := false
	for _, r := range results {
		if r.Name == "Generation provider" {
			found = true
			if !r.Passed {
				t.Errorf("generation check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected generation check in results")
	}
}

func TestCheckGenerationFromConfigDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Enabled = false
	result := CheckGenerationFromConfig(&cfg)
	if result.Passed || result.Detail != "Disabled" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestProbeAlignment(t *testing.T) {
	cfg := config.Default()
	cfg.Alignment.Enabled = false
	if probe := ProbeAlignment(&cfg); probe.Enabled {
		t.Fatalf("expected disabled probe, got %#v", probe)
	}

	cfg.Alignment.Enabled = true
	probe := ProbeAlignment(&cfg)
	if !probe.Enabled {
		t.Fatal("expected enabled probe")
	}
	if probe.Model != cfg.Alignment.Model || probe.Device != cfg.Alignment.Device {
		t.Fatalf("probe should mirror config, got %#v", probe)
	}
	if probe.Language != "English" || !probe.HasAlignModel {
		t.Fatalf("expected English with align model support, got %#v", probe)
	}
	detail := probe.AlignmentDetail()
	if detail == "" || detail == "Alignment disabled" {
		t.Fatalf("unexpected detail: %q", detail)
	}

	cfg.Alignment.Language = "sv"
	probe = ProbeAlignment(&cfg)
	if probe.HasAlignModel {
		t.Fatal("Swedish has no default alignment model")
	}
}
