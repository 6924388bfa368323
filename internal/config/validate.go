package config

import (
	"errors"
	"fmt"
	"strings"

	"soundloom/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateMix(); err != nil {
		return err
	}
	if err := c.validateAlignment(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"mix.tool_timeout":              c.Mix.ToolTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateMix() error {
	// ffmpeg loudnorm accepts integrated targets between -70 and -5 LUFS.
	if c.Mix.TargetLUFS < -70 || c.Mix.TargetLUFS > -5 {
		return errors.New("mix.target_lufs must be between -70 and -5")
	}
	if c.Mix.BackgroundVolume <= 0 || c.Mix.BackgroundVolume > 2 {
		return errors.New("mix.background_volume must be between 0 and 2")
	}
	if c.Mix.EffectsVolume <= 0 || c.Mix.EffectsVolume > 2 {
		return errors.New("mix.effects_volume must be between 0 and 2")
	}
	if c.Mix.SpeechStartDelay < 0 {
		return errors.New("mix.speech_start_delay must be >= 0")
	}
	if c.Mix.MusicFadeout < 0 {
		return errors.New("mix.music_fadeout must be >= 0")
	}
	if c.Mix.SegmentSilenceGap < 0 {
		return errors.New("mix.segment_silence_gap must be >= 0")
	}
	if c.Mix.SampleRate <= 0 {
		return errors.New("mix.sample_rate must be positive")
	}
	return nil
}

func (c *Config) validateAlignment() error {
	if !c.Alignment.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Alignment.Model) == "" {
		return errors.New("alignment.model must be set when alignment.enabled is true")
	}
	switch c.Alignment.Device {
	case "cpu", "cuda":
	default:
		return fmt.Errorf("alignment.device must be cpu or cuda, got %q", c.Alignment.Device)
	}
	switch c.Alignment.ComputeType {
	case "int8", "float16", "float32":
	default:
		return fmt.Errorf("alignment.compute_type must be int8, float16, or float32, got %q", c.Alignment.ComputeType)
	}
	if language.ToISO2(c.Alignment.Language) == "" {
		return fmt.Errorf("alignment.language %q is not a recognized language code", c.Alignment.Language)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if !c.Generation.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Generation.APIToken) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/soundloom/config.toml"
		}
		return fmt.Errorf("generation.api_token is required when generation.enabled is true. Set REPLICATE_API_TOKEN env var or edit %s (create with 'soundloom config init')", defaultPath)
	}
	if strings.TrimSpace(c.Generation.WebhookBaseURL) == "" {
		return errors.New("generation.webhook_base_url must be set when generation.enabled is true")
	}
	if !strings.HasPrefix(c.Generation.WebhookBaseURL, "http://") && !strings.HasPrefix(c.Generation.WebhookBaseURL, "https://") {
		return errors.New("generation.webhook_base_url must start with http:// or https://")
	}
	if strings.TrimSpace(c.Generation.MusicVersion) == "" {
		return errors.New("generation.music_version must be set when generation.enabled is true")
	}
	if strings.TrimSpace(c.Generation.EffectsVersion) == "" {
		return errors.New("generation.effects_version must be set when generation.enabled is true")
	}
	if err := ensurePositiveMap(map[string]int{
		"generation.music_wait_timeout":   c.Generation.MusicWaitTimeout,
		"generation.effects_wait_timeout": c.Generation.EffectsWaitTimeout,
		"generation.download_timeout":     c.Generation.DownloadTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
