package mixdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"soundloom/internal/config"
	"soundloom/internal/fileutil"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/media/ffprobe"
)

// Request describes one mix. Cue start times are speech-relative seconds;
// the engine applies the configured speech start delay itself.
type Request struct {
	TextID     int64
	SpeechPath string
	MusicPath  string
	Cues       []Cue
	// WorkDir holds normalized intermediates for this mix.
	WorkDir string
	// OutputPath is where the finished master lands.
	OutputPath string
}

// Result reports the finished master and any fallbacks taken on the way.
type Result struct {
	OutputPath      string
	DurationSeconds float64
	SpeechOnly      bool
	Degradations    []library.Degradation
}

// Engine renders masters with ffmpeg.
type Engine struct {
	cfg           *config.Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
	prober        func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewEngine creates a mixdown engine.
func NewEngine(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "mixdown")),
		prober: ffprobe.Inspect,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Engine) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	e.commandRunner = runner
}

// WithProber sets a custom media prober (for testing).
func (e *Engine) WithProber(prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)) {
	e.prober = prober
}

// Mix produces the final master for a request. Preparatory failures degrade
// the mix and are reported on the result; only a failed render or an
// unusable request returns an error.
func (e *Engine) Mix(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SpeechPath) == "" {
		return nil, errors.New("mix: speech path required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, errors.New("mix: output path required")
	}
	workDir := req.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(req.OutputPath)
	}

	result := &Result{OutputPath: req.OutputPath}

	speechPath := req.SpeechPath
	normalized := filepath.Join(workDir, "speech_norm.mp3")
	if err := e.loudnorm(ctx, req.SpeechPath, normalized); err != nil {
		e.degrade(result, req.TextID, "normalize_speech", err)
	} else {
		speechPath = normalized
	}

	if req.MusicPath == "" && len(req.Cues) == 0 {
		if err := fileutil.CopyFile(speechPath, req.OutputPath); err != nil {
			return nil, fmt.Errorf("stage speech-only master: %w", err)
		}
		result.SpeechOnly = true
		result.DurationSeconds = e.probeDuration(ctx, result, req.TextID, "probe_master", req.OutputPath)
		e.logger.Info("mixed speech-only master",
			logging.Int64(logging.FieldTextID, req.TextID),
			logging.String("output", req.OutputPath))
		return result, nil
	}

	musicPath := req.MusicPath
	if musicPath != "" {
		normalizedMusic := filepath.Join(workDir, "music_norm.mp3")
		if err := e.loudnorm(ctx, musicPath, normalizedMusic); err != nil {
			e.degrade(result, req.TextID, "normalize_music", err)
		} else {
			musicPath = normalizedMusic
		}
	}

	speechDuration := e.probeDuration(ctx, result, req.TextID, "probe_speech", speechPath)

	plan := BuildPlan(PlanInput{
		SpeechPath:       speechPath,
		SpeechDuration:   speechDuration,
		MusicPath:        musicPath,
		Cues:             req.Cues,
		BackgroundVolume: e.cfg.Mix.BackgroundVolume,
		EffectsVolume:    e.cfg.Mix.EffectsVolume,
		SpeechStartDelay: e.cfg.Mix.SpeechStartDelay,
		MusicFadeout:     e.cfg.Mix.MusicFadeout,
	})
	args := Render(plan, req.OutputPath)
	if err := e.run(ctx, e.cfg.FFmpegBinary(), args...); err != nil {
		return nil, fmt.Errorf("render mix: %w", err)
	}

	result.DurationSeconds = e.probeDuration(ctx, result, req.TextID, "probe_master", req.OutputPath)
	e.logger.Info("mixed layered master",
		logging.Int64(logging.FieldTextID, req.TextID),
		logging.Int("layers", len(plan.Layers)),
		logging.Int("degradations", len(result.Degradations)),
		logging.String("output", req.OutputPath))
	return result, nil
}

// loudnorm writes a single-pass loudness-normalized copy of src to dst.
func (e *Engine) loudnorm(ctx context.Context, src, dst string) error {
	return e.run(ctx, e.cfg.FFmpegBinary(),
		"-i", src,
		"-af", fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", formatSeconds(e.cfg.Mix.TargetLUFS)),
		"-ar", strconv.Itoa(e.cfg.Mix.SampleRate),
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y",
		dst,
	)
}

// probeDuration measures a file, degrading instead of failing. A zero
// return means the duration is unknown.
func (e *Engine) probeDuration(ctx context.Context, result *Result, textID int64, step, path string) float64 {
	probed, err := e.prober(ctx, e.cfg.FFprobeBinary(), path)
	if err != nil {
		e.degrade(result, textID, step, err)
		return 0
	}
	duration := probed.DurationSeconds()
	if duration <= 0 {
		e.degrade(result, textID, step, errors.New("no duration reported"))
		return 0
	}
	return duration
}

func (e *Engine) degrade(result *Result, textID int64, step string, err error) {
	reason := err.Error()
	result.Degradations = append(result.Degradations, library.Degradation{Step: step, Reason: reason})
	e.logger.Warn("mix step degraded",
		logging.Int64(logging.FieldTextID, textID),
		logging.String("step", step),
		logging.String("reason", reason))
}

// run executes a command, using the custom runner if set. Real invocations
// are bounded by the configured tool timeout.
func (e *Engine) run(ctx context.Context, name string, args ...string) error {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, name, args...)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
