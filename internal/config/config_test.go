package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"soundloom/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "soundloom", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "soundloom", "library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7843" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Generation.Enabled {
		t.Fatal("expected generation disabled by default")
	}
	if !cfg.Alignment.Enabled {
		t.Fatal("expected alignment enabled by default")
	}
	if cfg.Alignment.Device != "cpu" {
		t.Fatalf("expected alignment device default cpu, got %q", cfg.Alignment.Device)
	}
	if cfg.Mix.TargetLUFS != -18.0 {
		t.Fatalf("unexpected target LUFS: %v", cfg.Mix.TargetLUFS)
	}
	if cfg.Mix.SpeechStartDelay != 3.0 {
		t.Fatalf("unexpected speech start delay: %v", cfg.Mix.SpeechStartDelay)
	}
	if cfg.Mix.SegmentSilenceGap != 0.5 {
		t.Fatalf("unexpected segment silence gap: %v", cfg.Mix.SegmentSilenceGap)
	}
	if cfg.Workflow.HeartbeatInterval != config.Default().Workflow.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != config.Default().Workflow.HeartbeatTimeout {
		t.Fatalf("unexpected heartbeat timeout: %d", cfg.Workflow.HeartbeatTimeout)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir, cfg.Paths.AlignmentCacheDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "soundloom.toml")

	type payload struct {
		Mix struct {
			TargetLUFS       float64 `toml:"target_lufs"`
			BackgroundVolume float64 `toml:"background_volume"`
		} `toml:"mix"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Mix.TargetLUFS = -16.0
	custom.Mix.BackgroundVolume = 0.25
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Mix.TargetLUFS != -16.0 {
		t.Fatalf("expected target LUFS override, got %v", cfg.Mix.TargetLUFS)
	}
	if cfg.Mix.BackgroundVolume != 0.25 {
		t.Fatalf("expected background volume override, got %v", cfg.Mix.BackgroundVolume)
	}
	if cfg.Mix.EffectsVolume != config.Default().Mix.EffectsVolume {
		t.Fatalf("expected effects volume default, got %v", cfg.Mix.EffectsVolume)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
}

func TestEnvVarSuppliesGenerationToken(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "soundloom.toml")

	type payload struct {
		Generation struct {
			Enabled        bool   `toml:"enabled"`
			WebhookBaseURL string `toml:"webhook_base_url"`
		} `toml:"generation"`
	}
	custom := payload{}
	custom.Generation.Enabled = true
	custom.Generation.WebhookBaseURL = "https://hooks.example.com"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	// Without the env token the enabled generation section must fail validation.
	t.Setenv("REPLICATE_API_TOKEN", "")
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error when generation enabled without token")
	}

	t.Setenv("REPLICATE_API_TOKEN", "env-token")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generation.APIToken != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Generation.APIToken)
	}
	if cfg.Generation.BaseURL != "https://api.replicate.com" {
		t.Fatalf("unexpected base url: %q", cfg.Generation.BaseURL)
	}
	if cfg.Generation.MusicVersion == "" || cfg.Generation.EffectsVersion == "" {
		t.Fatal("expected default model versions to be populated")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_replicate_api_token_here") {
		t.Fatalf("sample config missing placeholder token: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	// On Windows join uses backslashes; skip path expectation specifics when running there to avoid
	// differences in drive letters during CI.
	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.StagingDir, "soundloom") {
			t.Fatalf("expected staging dir to contain soundloom, got %q", cfg.Paths.StagingDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Mix.TargetLUFS = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for positive LUFS target")
	}

	cfg = config.Default()
	cfg.Mix.SpeechStartDelay = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative speech start delay")
	}

	cfg = config.Default()
	cfg.Workflow.HeartbeatInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat interval")
	}

	cfg = config.Default()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = config.Default()
	cfg.Alignment.Device = "tpu"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown alignment device")
	}

	cfg = config.Default()
	cfg.Alignment.Language = "klingon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized alignment language")
	}

	cfg = config.Default()
	cfg.Generation.Enabled = true
	cfg.Generation.APIToken = "token"
	cfg.Generation.WebhookBaseURL = "hooks.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for webhook base url without scheme")
	}
}

func TestLoadCanonicalizesLanguage(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "soundloom.toml")

	content := "[alignment]\nlanguage = \"english\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Alignment.Language != "en" {
		t.Fatalf("expected language canonicalized to en, got %q", cfg.Alignment.Language)
	}
}
