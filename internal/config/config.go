package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir        string `toml:"staging_dir"`
	LibraryDir        string `toml:"library_dir"`
	LogDir            string `toml:"log_dir"`
	AlignmentCacheDir string `toml:"alignment_cache_dir"`
	APIBind           string `toml:"api_bind"`
}

// Mix contains loudness and layering parameters for final mixdowns.
type Mix struct {
	// TargetLUFS is the integrated loudness target applied to every input
	// layer before mixing.
	TargetLUFS float64 `toml:"target_lufs"`
	// BackgroundVolume scales the music bed relative to normalized speech.
	BackgroundVolume float64 `toml:"background_volume"`
	// EffectsVolume scales each sound effect layer relative to normalized speech.
	EffectsVolume float64 `toml:"effects_volume"`
	// SpeechStartDelay is the lead-in, in seconds, before speech starts.
	// Sound effect cue offsets are shifted by the same amount.
	SpeechStartDelay  float64 `toml:"speech_start_delay"`
	MusicFadeout      float64 `toml:"music_fadeout"`
	SegmentSilenceGap float64 `toml:"segment_silence_gap"`
	SampleRate        int     `toml:"sample_rate"`
	ToolTimeout       int     `toml:"tool_timeout"`
}

// Alignment contains configuration for forced alignment of combined speech.
type Alignment struct {
	Enabled     bool   `toml:"enabled"`
	Model       string `toml:"model"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
	Language    string `toml:"language"`
}

// Generation contains configuration for Replicate-backed music and effect
// generation. Disabled by default so speech-only mixdowns work without
// credentials.
type Generation struct {
	Enabled            bool   `toml:"enabled"`
	APIToken           string `toml:"api_token"`
	BaseURL            string `toml:"base_url"`
	MusicVersion       string `toml:"music_version"`
	EffectsVersion     string `toml:"effects_version"`
	WebhookBaseURL     string `toml:"webhook_base_url"`
	MusicWaitTimeout   int    `toml:"music_wait_timeout"`
	EffectsWaitTimeout int    `toml:"effects_wait_timeout"`
	DownloadTimeout    int    `toml:"download_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Generation     bool   `toml:"generation"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output and retention.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Soundloom.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Mix: loudness targets, layer volumes, and timeline offsets
//   - Alignment: forced alignment model selection
//   - Generation: Replicate music/effect generation and webhooks
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and timeouts
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Mix           Mix           `toml:"mix"`
	Alignment     Alignment     `toml:"alignment"`
	Generation    Generation    `toml:"generation"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/soundloom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/soundloom/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("soundloom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.AlignmentCacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for all audio rendering.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// UvxBinary returns the uvx executable name used to invoke the alignment tool.
func (c *Config) UvxBinary() string {
	return "uvx"
}

// ToolTimeout returns the per-invocation timeout for external audio tools.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Mix.ToolTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
