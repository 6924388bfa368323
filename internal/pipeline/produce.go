package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"soundloom/internal/combiner"
	"soundloom/internal/config"
	"soundloom/internal/generation"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/services"
	"soundloom/internal/stage"
)

const progressStageProducing = "Producing"

// Producer runs the production stage for one run: the speech track and the
// generation track execute in parallel, and the run only advances once both
// have reached a terminal outcome.
type Producer struct {
	store      *library.Store
	cfg        *config.Config
	logger     *slog.Logger
	combiner   *combiner.Service
	dispatcher *generation.Dispatcher
	registry   *generation.Registry
}

// NewProducer constructs the produce stage handler. The registry must be the
// same instance the webhook processor signals, or awaited completions will
// never be observed.
func NewProducer(cfg *config.Config, store *library.Store, logger *slog.Logger, comb *combiner.Service, dispatcher *generation.Dispatcher, registry *generation.Registry) *Producer {
	return &Producer{
		store:      store,
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "produce"),
		combiner:   comb,
		dispatcher: dispatcher,
		registry:   registry,
	}
}

// SetLogger allows the workflow manager to route stage logs into the run-scoped log.
func (p *Producer) SetLogger(logger *slog.Logger) {
	if p == nil {
		return
	}
	p.logger = logging.NewComponentLogger(logger, "produce")
}

// Prepare primes run progress fields before executing the stage.
func (p *Producer) Prepare(ctx context.Context, run *library.Run) error {
	if p == nil || p.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "produce", "prepare", "Production stage is not configured", nil)
	}
	if p.store == nil {
		return services.Wrap(services.ErrConfiguration, "produce", "prepare", "Library store unavailable", nil)
	}
	run.InitProgress(progressStageProducing, "Preparing track production")
	return p.store.UpdateProgress(ctx, run)
}

// Execute produces both tracks for the run's text. Speech-track failures and
// store failures abort the stage; generation shortfalls are recorded as
// degradations so the mix can still render a reduced master.
func (p *Producer) Execute(ctx context.Context, run *library.Run) error {
	stageStart := time.Now()

	if p == nil || p.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "produce", "execute", "Production stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "produce", "execute", "Run is nil", nil)
	}
	if p.store == nil {
		return services.Wrap(services.ErrConfiguration, "produce", "execute", "Library store unavailable", nil)
	}
	if p.combiner == nil {
		return services.Wrap(services.ErrConfiguration, "produce", "execute", "Speech combiner unavailable", nil)
	}

	logger := logging.WithContext(ctx, p.logger)

	text, err := stage.TextForRun(ctx, p.store, run)
	if err != nil {
		return err
	}

	lock := flock.New(p.textLockPath(text.ID))
	locked, err := lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrTransient, "produce", "acquire text lock", "Could not acquire the per-text production lock", err)
	}
	if !locked {
		return services.Wrap(
			services.ErrValidation,
			"produce",
			"acquire text lock",
			fmt.Sprintf("Text %d is already being produced by another run; wait for it to finish", text.ID),
			nil,
		)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("failed to release text lock", logging.Error(unlockErr))
		}
	}()

	if err := p.updateProgress(ctx, run, "Producing speech and generation tracks", 10); err != nil {
		return err
	}

	var (
		wg        sync.WaitGroup
		combined  *combiner.Result
		speechErr error
		gen       generationOutcome
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		combined, speechErr = p.runSpeechTrack(ctx, text)
	}()
	go func() {
		defer wg.Done()
		gen = p.runGenerationTrack(ctx, text)
	}()
	wg.Wait()

	if speechErr != nil {
		return speechErr
	}
	if gen.err != nil {
		return gen.err
	}

	run.CombinedFile = combined.CombinedPath
	run.SetDegradations(gen.degradations)
	run.ProgressStage = "Produced"
	run.ProgressPercent = 100
	run.ProgressMessage = buildProduceMessage(combined, gen)
	if err := p.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "produce", "persist progress", "Failed to persist production progress", err)
	}

	logger.Info("production stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int("segments", combined.SegmentCount),
		logging.Int("skipped_segments", combined.SkippedCount),
		logging.Bool("aligned", combined.Aligned),
		logging.Int("jobs_dispatched", gen.dispatched),
		logging.Int("jobs_completed", gen.completed),
		logging.Int("degradations", len(gen.degradations)),
	)
	return nil
}

// HealthCheck reports readiness for the produce stage.
func (p *Producer) HealthCheck(ctx context.Context) stage.Health {
	const name = "produce"
	if p == nil || p.cfg == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if p.store == nil {
		return stage.Unhealthy(name, "library store unavailable")
	}
	if p.combiner == nil {
		return stage.Unhealthy(name, "speech combiner unavailable")
	}
	if strings.TrimSpace(p.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if p.cfg.Generation.Enabled && (p.dispatcher == nil || p.registry == nil) {
		return stage.Unhealthy(name, "generation enabled but dispatcher not wired")
	}
	return stage.Healthy(name)
}

func (p *Producer) runSpeechTrack(ctx context.Context, text *library.Text) (*combiner.Result, error) {
	result, err := p.combiner.Combine(ctx, text)
	if err != nil {
		if errors.Is(err, combiner.ErrNoAudioSegments) {
			return nil, services.Wrap(
				services.ErrValidation,
				"produce",
				"combine speech",
				"Text has no speech segments with audio; ingest segment audio before exporting",
				err,
			)
		}
		return nil, services.Wrap(services.ErrExternalTool, "produce", "combine speech", "Failed to combine speech segments", err)
	}
	return result, nil
}

type generationOutcome struct {
	dispatched   int
	completed    int
	musicReady   bool
	degradations []library.Degradation
	err          error
}

func (o *generationOutcome) degrade(step, reason string) {
	o.degradations = append(o.degradations, library.Degradation{Step: step, Reason: reason})
}

type pendingWait struct {
	step    string
	handle  *generation.Handle
	timeout time.Duration
}

// runGenerationTrack dispatches and awaits the text's remote jobs. Interest is
// registered before each dispatch so a callback landing mid-flight is still
// observed by the wait.
func (p *Producer) runGenerationTrack(ctx context.Context, text *library.Text) generationOutcome {
	outcome := generationOutcome{}
	logger := logging.WithContext(ctx, p.logger)

	if p.dispatcher == nil || p.registry == nil || !p.cfg.Generation.Enabled {
		logger.Debug("generation disabled, producing without music or effects",
			logging.Int64(logging.FieldTextID, text.ID))
		return outcome
	}

	effects, err := p.store.SoundEffects(ctx, text.ID)
	if err != nil {
		outcome.err = services.Wrap(services.ErrTransient, "produce", "load sound effects", "Could not read sound effects for this text", err)
		return outcome
	}
	if limit := generation.MaxEffects(text.Body); len(effects) > limit {
		logger.Warn("cue sheet exceeds advisory effect limit",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Int("effects", len(effects)),
			logging.Int("advised_limit", limit),
		)
	}

	musicTimeout := time.Duration(p.cfg.Generation.MusicWaitTimeout) * time.Second
	effectsTimeout := time.Duration(p.cfg.Generation.EffectsWaitTimeout) * time.Second
	waits := make([]pendingWait, 0, 1+len(effects))

	if strings.TrimSpace(text.MusicPrompt) != "" {
		handle := p.registry.Register(library.JobKey(library.JobBackgroundMusic, text.ID))
		if _, err := p.dispatcher.DispatchMusic(ctx, text); err != nil {
			handle.Release()
			outcome.degrade("dispatch_music", err.Error())
			logger.Warn("background music dispatch failed; continuing without music",
				logging.Int64(logging.FieldTextID, text.ID),
				logging.Error(err),
			)
		} else {
			outcome.dispatched++
			waits = append(waits, pendingWait{step: "background_music", handle: handle, timeout: musicTimeout})
		}
	}

	for _, effect := range effects {
		if effect == nil || effect.HasAudio() {
			continue
		}
		handle := p.registry.Register(library.JobKey(library.JobSoundEffect, effect.ID))
		if _, err := p.dispatcher.DispatchEffect(ctx, effect); err != nil {
			handle.Release()
			outcome.degrade(fmt.Sprintf("dispatch_effect_%d", effect.ID), err.Error())
			logger.Warn("sound effect dispatch failed; cue will stay silent",
				logging.Int64(logging.FieldTextID, text.ID),
				logging.Int64("effect_id", effect.ID),
				logging.Error(err),
			)
			continue
		}
		outcome.dispatched++
		waits = append(waits, pendingWait{
			step:    fmt.Sprintf("sound_effect_%d", effect.ID),
			handle:  handle,
			timeout: effectsTimeout,
		})
	}

	if len(waits) == 0 {
		return outcome
	}

	logger.Info("awaiting generation completions",
		logging.Int64(logging.FieldTextID, text.ID),
		logging.Int("jobs", len(waits)),
	)

	type awaitResult struct {
		result generation.WaitResult
		err    error
	}
	results := make([]awaitResult, len(waits))
	var waitWG sync.WaitGroup
	for i := range waits {
		waitWG.Add(1)
		go func(i int) {
			defer waitWG.Done()
			res, awaitErr := waits[i].handle.Await(ctx, waits[i].timeout)
			results[i] = awaitResult{result: res, err: awaitErr}
		}(i)
	}
	waitWG.Wait()

	for i, wait := range waits {
		res := results[i]
		if res.err != nil {
			outcome.err = res.err
			return outcome
		}
		switch res.result.Outcome {
		case generation.OutcomeSuccess:
			outcome.completed++
			if wait.step == "background_music" {
				outcome.musicReady = true
			}
		case generation.OutcomeTimeout:
			outcome.degrade(wait.step+"_wait", fmt.Sprintf("no completion within %s", wait.timeout))
			logger.Warn("generation wait timed out; the remote job may still deliver later",
				logging.Int64(logging.FieldTextID, text.ID),
				logging.String("step", wait.step),
				logging.Duration("waited", res.result.Elapsed),
			)
		case generation.OutcomeFailure:
			detail := strings.TrimSpace(res.result.Detail)
			if detail == "" {
				detail = "generation failed"
			}
			outcome.degrade(wait.step, detail)
		}
	}
	return outcome
}

func (p *Producer) textLockPath(textID int64) string {
	return filepath.Join(p.cfg.Paths.StagingDir, fmt.Sprintf("produce_text_%d.lock", textID))
}

func (p *Producer) updateProgress(ctx context.Context, run *library.Run, message string, percent float64) error {
	run.ProgressStage = progressStageProducing
	if strings.TrimSpace(message) != "" {
		run.ProgressMessage = message
	}
	if percent >= 0 {
		run.ProgressPercent = percent
	}
	if err := p.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "produce", "persist progress", "Failed to persist production progress", err)
	}
	return nil
}

func buildProduceMessage(combined *combiner.Result, gen generationOutcome) string {
	parts := []string{fmt.Sprintf("Combined %d segment(s)", combined.SegmentCount)}
	if combined.Aligned {
		parts = append(parts, fmt.Sprintf("%d words aligned", combined.WordCount))
	} else {
		parts = append(parts, "no alignment")
	}
	if gen.dispatched > 0 {
		parts = append(parts, fmt.Sprintf("generation %d/%d", gen.completed, gen.dispatched))
	}
	if len(gen.degradations) > 0 {
		parts = append(parts, fmt.Sprintf("%d degradation(s)", len(gen.degradations)))
	}
	return strings.Join(parts, " | ")
}
