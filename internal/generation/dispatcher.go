package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"soundloom/internal/config"
	"soundloom/internal/generation/replicate"
	"soundloom/internal/library"
	"soundloom/internal/logging"
)

var (
	// ErrDisabled marks dispatch attempts while generation is switched off.
	ErrDisabled = errors.New("generation disabled")
	// ErrDispatch marks remote job creation failures.
	ErrDispatch = errors.New("dispatch failed")
)

// Speech runs near 150 words a minute at roughly five characters a word,
// which the music length estimate rounds to 12.5 characters a second.
const (
	musicCharsPerSecond = 12.5
	musicTailSeconds    = 10.0
	defaultEffectLength = 2.0
	charsPerEffect      = 700
)

// Client is the provider surface used by the dispatcher, the webhook
// processor, and the recovery sweep.
type Client interface {
	CreatePrediction(ctx context.Context, request replicate.PredictionRequest) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Dispatcher creates remote generation jobs and records them in the store.
// It never waits for results; callers register with the Registry before
// dispatching and block on the handle.
type Dispatcher struct {
	store  *library.Store
	cfg    *config.Config
	client Client
	logger *slog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store *library.Store, cfg *config.Config, client Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "generation"),
	}
}

// DispatchMusic creates the background-music prediction for a text. Any
// stored music bed is cleared first, so the awaiting mixdown can only pick
// up audio from the new prediction.
func (d *Dispatcher) DispatchMusic(ctx context.Context, text *library.Text) (*library.GenerationJob, error) {
	if text == nil {
		return nil, errors.New("text is nil")
	}
	if !d.cfg.Generation.Enabled {
		return nil, ErrDisabled
	}
	prompt := strings.TrimSpace(text.MusicPrompt)
	if prompt == "" {
		return nil, fmt.Errorf("text %d has no music prompt", text.ID)
	}

	segments, err := d.store.SpeechSegments(ctx, text.ID)
	if err != nil {
		return nil, fmt.Errorf("load segments for duration estimate: %w", err)
	}
	duration := MusicDurationEstimate(text.Body, segments)

	if err := d.store.ClearMusicAudio(ctx, text.ID); err != nil {
		return nil, fmt.Errorf("clear stale music audio: %w", err)
	}

	input := map[string]any{
		"prompt":                   prompt,
		"duration":                 duration,
		"output_format":            "mp3",
		"temperature":              1,
		"top_k":                    250,
		"top_p":                    0,
		"classifier_free_guidance": 3,
	}
	return d.dispatch(ctx, library.JobBackgroundMusic, text.ID, text.ID, d.cfg.Generation.MusicVersion, input)
}

// DispatchEffect creates the sound-effect prediction for one cue.
func (d *Dispatcher) DispatchEffect(ctx context.Context, effect *library.SoundEffect) (*library.GenerationJob, error) {
	if effect == nil {
		return nil, errors.New("effect is nil")
	}
	if !d.cfg.Generation.Enabled {
		return nil, ErrDisabled
	}
	prompt := strings.TrimSpace(effect.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("sound effect %d has no prompt", effect.ID)
	}

	input := map[string]any{
		"prompt":        prompt,
		"seconds_total": EffectDurationEstimate(effect),
	}
	return d.dispatch(ctx, library.JobSoundEffect, effect.ID, effect.TextID, d.cfg.Generation.EffectsVersion, input)
}

func (d *Dispatcher) dispatch(ctx context.Context, jobType library.JobType, jobID, textID int64, version string, input map[string]any) (*library.GenerationJob, error) {
	key := library.JobKey(jobType, jobID)
	prediction, err := d.client.CreatePrediction(ctx, replicate.PredictionRequest{
		Version:             version,
		Input:               input,
		Webhook:             d.webhookURL(jobType, jobID),
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDispatch, key, err)
	}

	job, err := d.store.UpsertJob(ctx, jobType, jobID, textID, prediction.ID)
	if err != nil {
		// The remote job is running but untracked; only the webhook can
		// still complete it.
		return nil, fmt.Errorf("record job %s (prediction %s): %w", key, prediction.ID, err)
	}

	d.logger.Info("generation job dispatched",
		logging.String(logging.FieldJobType, string(jobType)),
		logging.Int64(logging.FieldJobID, jobID),
		logging.Int64(logging.FieldTextID, textID),
		logging.String("prediction_id", prediction.ID),
	)
	return job, nil
}

func (d *Dispatcher) webhookURL(jobType library.JobType, jobID int64) string {
	base := strings.TrimSpace(d.cfg.Generation.WebhookBaseURL)
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/webhooks/%s/%d", strings.TrimRight(base, "/"), jobType, jobID)
}

// MusicDurationEstimate derives the requested music length in whole seconds:
// estimated narration time from character count, plus deliberate per-segment
// trailing silence, plus a fixed tail so the bed outlasts the speech.
func MusicDurationEstimate(body string, segments []*library.SpeechSegment) int {
	seconds := float64(len(body)) / musicCharsPerSecond
	for _, segment := range segments {
		if segment != nil && segment.TrailingSilence > 0 {
			seconds += segment.TrailingSilence
		}
	}
	seconds += musicTailSeconds
	return int(math.Round(seconds))
}

// EffectDurationEstimate sizes a cue's clip from its word-position span, one
// second per word covered. Cues without positions get a short fixed clip.
func EffectDurationEstimate(effect *library.SoundEffect) float64 {
	if effect == nil {
		return defaultEffectLength
	}
	if effect.StartWordPosition != nil && effect.EndWordPosition != nil {
		span := float64(*effect.EndWordPosition - *effect.StartWordPosition + 1)
		if span < 1 {
			span = 1
		}
		return span
	}
	return defaultEffectLength
}

// MaxEffects is the advisory ceiling on distinct sound effects for a text,
// roughly one per 700 characters and never less than one. Ingest warns when
// a cue sheet exceeds it.
func MaxEffects(body string) int {
	limit := len(body) / charsPerEffect
	if limit < 1 {
		return 1
	}
	return limit
}
