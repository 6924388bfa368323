package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"soundloom/internal/alignment"
	"soundloom/internal/config"
	"soundloom/internal/fileutil"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/mixdown"
	"soundloom/internal/services"
	"soundloom/internal/stage"
	"soundloom/internal/textutil"
)

const progressStageMixing = "Mixing"

// Mixer runs the mixdown stage: it resolves effect cues against the word
// timeline, materializes stored audio, renders the layered master, and
// publishes it into the library.
type Mixer struct {
	store  *library.Store
	cfg    *config.Config
	logger *slog.Logger
	engine *mixdown.Engine
}

// NewMixer constructs the mix stage handler.
func NewMixer(cfg *config.Config, store *library.Store, logger *slog.Logger, engine *mixdown.Engine) *Mixer {
	return &Mixer{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "mix"),
		engine: engine,
	}
}

// SetLogger allows the workflow manager to route stage logs into the run-scoped log.
func (m *Mixer) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "mix")
}

// Prepare primes run progress fields before executing the stage.
func (m *Mixer) Prepare(ctx context.Context, run *library.Run) error {
	if m == nil || m.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "mix", "prepare", "Mix stage is not configured", nil)
	}
	if m.store == nil {
		return services.Wrap(services.ErrConfiguration, "mix", "prepare", "Library store unavailable", nil)
	}
	run.InitProgress(progressStageMixing, "Preparing mixdown")
	return m.store.UpdateProgress(ctx, run)
}

// Execute renders and publishes the final master for the run.
func (m *Mixer) Execute(ctx context.Context, run *library.Run) error {
	stageStart := time.Now()

	if m == nil || m.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "mix", "execute", "Mix stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "mix", "execute", "Run is nil", nil)
	}
	if m.store == nil {
		return services.Wrap(services.ErrConfiguration, "mix", "execute", "Library store unavailable", nil)
	}
	if m.engine == nil {
		return services.Wrap(services.ErrConfiguration, "mix", "execute", "Mixdown engine unavailable", nil)
	}

	logger := logging.WithContext(ctx, m.logger)

	text, err := stage.TextForRun(ctx, m.store, run)
	if err != nil {
		return err
	}

	if strings.TrimSpace(run.CombinedFile) == "" {
		return services.Wrap(services.ErrValidation, "mix", "locate speech", "Run has no combined speech track; produce must run first", nil)
	}
	if _, err := os.Stat(run.CombinedFile); err != nil {
		return services.Wrap(
			services.ErrValidation,
			"mix",
			"locate speech",
			fmt.Sprintf("Combined speech track %s is missing; re-run production", run.CombinedFile),
			err,
		)
	}

	if err := m.updateProgress(ctx, run, "Resolving cue positions", 10); err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(m.cfg.Paths.StagingDir, fmt.Sprintf("mix-%d-*", text.ID))
	if err != nil {
		return services.Wrap(services.ErrTransient, "mix", "create work dir", "Could not create mix scratch directory", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(workDir); removeErr != nil {
			logger.Warn("failed to remove mix scratch directory", logging.Error(removeErr))
		}
	}()

	degradations := run.Degradations()
	cues, cueDegradations, err := m.resolveCues(ctx, logger, text, workDir)
	if err != nil {
		return err
	}
	degradations = append(degradations, cueDegradations...)

	musicPath, err := m.materializeMusic(ctx, text.ID, workDir)
	if err != nil {
		return err
	}

	if err := m.updateProgress(ctx, run, "Rendering layered master", 40); err != nil {
		return err
	}

	outputPath := filepath.Join(workDir, fmt.Sprintf("mixed_%d.mp3", text.ID))
	result, err := m.engine.Mix(ctx, mixdown.Request{
		TextID:     text.ID,
		SpeechPath: run.CombinedFile,
		MusicPath:  musicPath,
		Cues:       cues,
		WorkDir:    workDir,
		OutputPath: outputPath,
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mix", "render", "Failed to render the layered master", err)
	}
	degradations = append(degradations, result.Degradations...)

	if err := m.updateProgress(ctx, run, "Publishing master to library", 85); err != nil {
		return err
	}

	finalPath, err := m.publish(result.OutputPath, text.ID)
	if err != nil {
		return err
	}

	run.MixedFile = finalPath
	run.DurationSeconds = result.DurationSeconds
	run.SetDegradations(degradations)
	run.ProgressStage = progressStageMixing
	run.ProgressPercent = 100
	run.ProgressMessage = buildMixMessage(result, len(cues), len(degradations))
	if err := m.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "mix", "persist progress", "Failed to persist mix progress", err)
	}

	logger.Info("mix stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.String("final_file", filepath.Base(finalPath)),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Bool("speech_only", result.SpeechOnly),
		logging.Int("cues", len(cues)),
		logging.Int("degradations", len(degradations)),
	)
	return nil
}

// HealthCheck reports readiness for the mix stage.
func (m *Mixer) HealthCheck(ctx context.Context) stage.Health {
	const name = "mix"
	if m == nil || m.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if m.store == nil {
		return stage.Unhealthy(name, "library store unavailable")
	}
	if m.engine == nil {
		return stage.Unhealthy(name, "mixdown engine unavailable")
	}
	if strings.TrimSpace(m.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}

// resolveCues converts stored effects into timed mix cues. Effects without
// audio or without a usable timeline position become degradations, never
// stage failures.
func (m *Mixer) resolveCues(ctx context.Context, logger *slog.Logger, text *library.Text, workDir string) ([]mixdown.Cue, []library.Degradation, error) {
	effects, err := m.store.SoundEffects(ctx, text.ID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "mix", "load sound effects", "Could not read sound effects for this text", err)
	}

	var withAudio []*library.SoundEffect
	for _, effect := range effects {
		if effect != nil && effect.HasAudio() {
			withAudio = append(withAudio, effect)
		}
	}
	if len(withAudio) == 0 {
		return nil, nil, nil
	}

	timestamps := text.WordTimestamps()
	if len(timestamps) == 0 {
		logger.Warn("no word timestamps available, dropping all effect cues",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Int("effects", len(withAudio)),
		)
		return nil, []library.Degradation{{
			Step:   "resolve_cues",
			Reason: fmt.Sprintf("no word timestamps; %d effect cue(s) dropped", len(withAudio)),
		}}, nil
	}

	var (
		cues         []mixdown.Cue
		degradations []library.Degradation
	)
	for _, effect := range withAudio {
		if effect.StartWordPosition == nil {
			degradations = append(degradations, library.Degradation{
				Step:   fmt.Sprintf("cue_effect_%d", effect.ID),
				Reason: "effect has no start word position",
			})
			logger.Warn("effect has no start word position, cue dropped",
				logging.Int64("effect_id", effect.ID),
			)
			continue
		}

		start, clamped, err := alignment.Resolve(*effect.StartWordPosition, timestamps)
		if err != nil {
			degradations = append(degradations, library.Degradation{
				Step:   fmt.Sprintf("cue_effect_%d", effect.ID),
				Reason: err.Error(),
			})
			continue
		}
		if clamped {
			logger.Warn("effect start position beyond timeline, clamped to last word",
				logging.Int64("effect_id", effect.ID),
				logging.Int("position", *effect.StartWordPosition),
			)
		}
		effect.StartTime = &start

		if effect.EndWordPosition != nil {
			if end, endClamped, endErr := alignment.Resolve(*effect.EndWordPosition, timestamps); endErr == nil {
				if endClamped {
					logger.Warn("effect end position beyond timeline, clamped to last word",
						logging.Int64("effect_id", effect.ID),
						logging.Int("position", *effect.EndWordPosition),
					)
				}
				effect.EndTime = &end
			}
		}

		if err := m.store.UpdateSoundEffect(ctx, effect); err != nil {
			logger.Warn("failed to persist resolved cue times",
				logging.Int64("effect_id", effect.ID),
				logging.Error(err),
			)
		}

		cuePath := filepath.Join(workDir, fmt.Sprintf("effect_%d_%s.mp3", effect.ID, textutil.SanitizeToken(effect.Name)))
		if err := fileutil.WriteFileAtomic(cuePath, effect.Audio); err != nil {
			return nil, nil, services.Wrap(services.ErrTransient, "mix", "materialize effect", "Could not write effect audio to the scratch directory", err)
		}
		cues = append(cues, mixdown.Cue{Path: cuePath, StartSeconds: start})
	}
	return cues, degradations, nil
}

// materializeMusic writes stored background music into the scratch directory
// and returns its path, or "" when the text has none.
func (m *Mixer) materializeMusic(ctx context.Context, textID int64, workDir string) (string, error) {
	audio, err := m.store.MusicAudio(ctx, textID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "mix", "load music", "Could not read background music for this text", err)
	}
	if len(audio) == 0 {
		return "", nil
	}
	musicPath := filepath.Join(workDir, "music.mp3")
	if err := fileutil.WriteFileAtomic(musicPath, audio); err != nil {
		return "", services.Wrap(services.ErrTransient, "mix", "materialize music", "Could not write background music to the scratch directory", err)
	}
	return musicPath, nil
}

// publish copies the rendered master into the library directory under a
// unique final name.
func (m *Mixer) publish(renderedPath string, textID int64) (string, error) {
	if err := os.MkdirAll(m.cfg.Paths.LibraryDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "mix", "publish", "Could not create the library directory", err)
	}
	finalPath := filepath.Join(m.cfg.Paths.LibraryDir, fmt.Sprintf("final_audio_%d_%d.mp3", textID, time.Now().Unix()))
	if err := fileutil.CopyFileVerified(renderedPath, finalPath); err != nil {
		return "", services.Wrap(services.ErrTransient, "mix", "publish", "Could not copy the master into the library", err)
	}
	return finalPath, nil
}

func (m *Mixer) updateProgress(ctx context.Context, run *library.Run, message string, percent float64) error {
	run.ProgressStage = progressStageMixing
	if strings.TrimSpace(message) != "" {
		run.ProgressMessage = message
	}
	if percent >= 0 {
		run.ProgressPercent = percent
	}
	if err := m.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "mix", "persist progress", "Failed to persist mix progress", err)
	}
	return nil
}

func buildMixMessage(result *mixdown.Result, cueCount, degradationCount int) string {
	if result.SpeechOnly {
		if degradationCount > 0 {
			return fmt.Sprintf("Published speech-only master (%d degradation(s))", degradationCount)
		}
		return "Published speech-only master"
	}
	parts := []string{fmt.Sprintf("Published layered master (%.1fs)", result.DurationSeconds)}
	if cueCount > 0 {
		parts = append(parts, fmt.Sprintf("%d cue(s)", cueCount))
	}
	if degradationCount > 0 {
		parts = append(parts, fmt.Sprintf("%d degradation(s)", degradationCount))
	}
	return strings.Join(parts, " | ")
}
