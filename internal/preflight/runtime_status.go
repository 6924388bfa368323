package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"soundloom/internal/config"
	"soundloom/internal/language"
)

// CheckGenerationFromConfig evaluates generation status from config and
// connectivity.
func CheckGenerationFromConfig(cfg *config.Config) Result {
	const name = "Generation"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Generation.Enabled {
		return Result{Name: name, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.Generation.APIToken) == "" {
		return Result{Name: name, Detail: "Missing API token"}
	}
	check := CheckGeneration(context.Background(), cfg.Generation.BaseURL, cfg.Generation.APIToken)
	if check.Passed {
		detail := check.Detail
		if strings.TrimSpace(cfg.Generation.WebhookBaseURL) == "" {
			detail = "Reachable (no webhook base URL; completions rely on recovery polling)"
		}
		return Result{Name: name, Passed: true, Detail: detail}
	}
	return Result{Name: name, Detail: check.Detail}
}

// AlignmentProbe reports the forced-alignment runtime snapshot.
type AlignmentProbe struct {
	Enabled       bool
	Runnable      bool
	Model         string
	Device        string
	Language      string
	HasAlignModel bool
}

// ProbeAlignment inspects whether the configured aligner could run right now.
func ProbeAlignment(cfg *config.Config) AlignmentProbe {
	if cfg == nil || !cfg.Alignment.Enabled {
		return AlignmentProbe{}
	}
	probe := AlignmentProbe{
		Enabled:       true,
		Model:         cfg.Alignment.Model,
		Device:        cfg.Alignment.Device,
		Language:      language.DisplayName(cfg.Alignment.Language),
		HasAlignModel: language.AlignmentSupported(cfg.Alignment.Language),
	}
	if _, err := exec.LookPath(cfg.UvxBinary()); err == nil {
		probe.Runnable = true
	}
	return probe
}

// AlignmentDetail renders a display-friendly summary for status UIs.
func (p AlignmentProbe) AlignmentDetail() string {
	if !p.Enabled {
		return "Alignment disabled"
	}
	if !p.Runnable {
		return fmt.Sprintf("uvx missing for %s on %s", p.Model, p.Device)
	}
	if !p.HasAlignModel {
		return fmt.Sprintf("%s on %s (%s, no default align model)", p.Model, p.Device, p.Language)
	}
	return fmt.Sprintf("%s on %s (%s)", p.Model, p.Device, p.Language)
}
