package config

import (
	"fmt"
	"os"
	"strings"

	"soundloom/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMix()
	c.normalizeAlignment()
	c.normalizeGeneration()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AlignmentCacheDir) == "" {
		c.Paths.AlignmentCacheDir = defaultAlignmentCacheDir
	}
	if c.Paths.AlignmentCacheDir, err = expandPath(c.Paths.AlignmentCacheDir); err != nil {
		return fmt.Errorf("paths.alignment_cache_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeMix() {
	if c.Mix.TargetLUFS == 0 {
		c.Mix.TargetLUFS = defaultTargetLUFS
	}
	if c.Mix.BackgroundVolume <= 0 {
		c.Mix.BackgroundVolume = defaultBackgroundVolume
	}
	if c.Mix.EffectsVolume <= 0 {
		c.Mix.EffectsVolume = defaultEffectsVolume
	}
	if c.Mix.SampleRate <= 0 {
		c.Mix.SampleRate = defaultSampleRate
	}
	if c.Mix.ToolTimeout <= 0 {
		c.Mix.ToolTimeout = defaultToolTimeout
	}
}

func (c *Config) normalizeAlignment() {
	c.Alignment.Model = strings.TrimSpace(c.Alignment.Model)
	if c.Alignment.Model == "" {
		c.Alignment.Model = defaultAlignmentModel
	}
	c.Alignment.Device = strings.ToLower(strings.TrimSpace(c.Alignment.Device))
	if c.Alignment.Device == "" {
		c.Alignment.Device = defaultAlignmentDevice
	}
	c.Alignment.ComputeType = strings.ToLower(strings.TrimSpace(c.Alignment.ComputeType))
	if c.Alignment.ComputeType == "" {
		c.Alignment.ComputeType = defaultAlignmentComputeType
	}
	c.Alignment.Language = strings.ToLower(strings.TrimSpace(c.Alignment.Language))
	if c.Alignment.Language == "" {
		c.Alignment.Language = defaultAlignmentLanguage
	}
	if code := language.ToISO2(c.Alignment.Language); code != "" {
		c.Alignment.Language = code
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.APIToken = strings.TrimSpace(c.Generation.APIToken)
	if c.Generation.APIToken == "" {
		if value, ok := os.LookupEnv("REPLICATE_API_TOKEN"); ok {
			c.Generation.APIToken = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.MusicVersion = strings.TrimSpace(c.Generation.MusicVersion)
	if c.Generation.MusicVersion == "" {
		c.Generation.MusicVersion = defaultMusicVersion
	}
	c.Generation.EffectsVersion = strings.TrimSpace(c.Generation.EffectsVersion)
	if c.Generation.EffectsVersion == "" {
		c.Generation.EffectsVersion = defaultEffectsVersion
	}
	c.Generation.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.WebhookBaseURL), "/")
	if c.Generation.MusicWaitTimeout <= 0 {
		c.Generation.MusicWaitTimeout = defaultMusicWaitTimeout
	}
	if c.Generation.EffectsWaitTimeout <= 0 {
		c.Generation.EffectsWaitTimeout = defaultEffectsWaitTimeout
	}
	if c.Generation.DownloadTimeout <= 0 {
		c.Generation.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
