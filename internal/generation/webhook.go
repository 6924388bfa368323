package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"soundloom/internal/config"
	"soundloom/internal/fileutil"
	"soundloom/internal/generation/replicate"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/services"
)

const effectSilenceThreshold = "-50dB"

// FailureNotifier receives generation failures for operator push alerts.
type FailureNotifier interface {
	GenerationFailed(ctx context.Context, jobType library.JobType, jobID int64, detail string)
}

// Processor applies provider callbacks for tracked jobs. Artifact storage
// always happens before the registry is signalled, so a success signal
// guarantees the blob is in the store. The recovery sweep feeds provider
// state through the same path.
type Processor struct {
	store    *library.Store
	cfg      *config.Config
	client   Client
	registry *Registry
	notifier FailureNotifier
	logger   *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewProcessor constructs a webhook processor.
func NewProcessor(store *library.Store, cfg *config.Config, client Client, registry *Registry, logger *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		cfg:      cfg,
		client:   client,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "webhooks"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (p *Processor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	p.commandRunner = runner
}

// WithNotifier sets the push-notification sink for generation failures.
func (p *Processor) WithNotifier(notifier FailureNotifier) {
	p.notifier = notifier
}

// ProcessWebhook applies one provider callback for the given job key.
// Non-terminal statuses are recorded and otherwise ignored. Terminal
// failures mark the job and signal any waiter. Success downloads the
// artifact, post-processes it, and stores it before signalling.
func (p *Processor) ProcessWebhook(ctx context.Context, jobType library.JobType, jobID int64, prediction *replicate.Prediction) error {
	if prediction == nil {
		return errors.New("prediction payload is nil")
	}
	key := library.JobKey(jobType, jobID)
	logger := p.logger.With(logging.Args(
		logging.String(logging.FieldJobType, string(jobType)),
		logging.Int64(logging.FieldJobID, jobID),
		logging.String("prediction_id", prediction.ID),
	)...)

	if err := p.checkTarget(ctx, jobType, jobID); err != nil {
		return err
	}

	status := statusOf(prediction.Status)
	switch status {
	case library.JobStatusStarting, library.JobStatusProcessing:
		logger.Info("generation progress", logging.String("status", string(status)))
		if err := p.store.UpdateJobStatus(ctx, jobType, jobID, status, ""); err != nil {
			logger.Warn("record progress status", logging.Error(err))
		}
		return nil

	case library.JobStatusSucceeded:
		if err := p.storeArtifact(ctx, jobType, jobID, prediction, logger); err != nil {
			detail := err.Error()
			if statusErr := p.store.UpdateJobStatus(ctx, jobType, jobID, library.JobStatusFailed, detail); statusErr != nil {
				logger.Warn("record failure status", logging.Error(statusErr))
			}
			p.reportFailure(ctx, jobType, jobID, detail)
			p.registry.Notify(key, OutcomeFailure, detail)
			return err
		}
		if err := p.store.UpdateJobStatus(ctx, jobType, jobID, library.JobStatusSucceeded, ""); err != nil {
			logger.Warn("record success status", logging.Error(err))
		}
		p.registry.Notify(key, OutcomeSuccess, "")
		return nil

	case library.JobStatusFailed, library.JobStatusCanceled:
		detail := strings.TrimSpace(prediction.Error)
		if detail == "" {
			detail = fmt.Sprintf("prediction %s", status)
		}
		logger.Warn("generation failed",
			logging.String("status", string(status)),
			logging.String("detail", detail),
		)
		if err := p.store.UpdateJobStatus(ctx, jobType, jobID, status, detail); err != nil {
			logger.Warn("record failure status", logging.Error(err))
		}
		p.reportFailure(ctx, jobType, jobID, detail)
		p.registry.Notify(key, OutcomeFailure, detail)
		return nil

	default:
		return fmt.Errorf("unknown prediction status %q for %s", prediction.Status, key)
	}
}

// checkTarget rejects callbacks whose subject row no longer exists, which
// happens when a text is removed while predictions are in flight.
func (p *Processor) checkTarget(ctx context.Context, jobType library.JobType, jobID int64) error {
	switch jobType {
	case library.JobSoundEffect:
		effect, err := p.store.GetSoundEffect(ctx, jobID)
		if err != nil {
			return err
		}
		if effect == nil {
			return fmt.Errorf("sound effect %d: %w", jobID, services.ErrNotFound)
		}
	case library.JobBackgroundMusic:
		text, err := p.store.GetText(ctx, jobID)
		if err != nil {
			return err
		}
		if text == nil {
			return fmt.Errorf("text %d: %w", jobID, services.ErrNotFound)
		}
	default:
		return fmt.Errorf("unknown job type %q", jobType)
	}
	return nil
}

func (p *Processor) storeArtifact(ctx context.Context, jobType library.JobType, jobID int64, prediction *replicate.Prediction, logger *slog.Logger) error {
	outputURL := prediction.OutputURL()
	if outputURL == "" {
		return errors.New("prediction succeeded without an output url")
	}
	audio, err := p.client.Download(ctx, outputURL)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}

	switch jobType {
	case library.JobSoundEffect:
		audio = p.trimEffectSilence(ctx, jobID, audio, logger)
		if err := p.store.SetEffectAudio(ctx, jobID, audio); err != nil {
			return fmt.Errorf("store effect audio: %w", err)
		}
	case library.JobBackgroundMusic:
		if err := p.store.SaveMusicAudio(ctx, jobID, audio); err != nil {
			return fmt.Errorf("store music audio: %w", err)
		}
	}
	logger.Info("generation artifact stored", logging.Int("bytes", len(audio)))
	return nil
}

// trimEffectSilence strips leading and trailing silence from a generated
// clip. Generated effects often open with dead air that would land the hit
// well after its cue. Any failure keeps the original audio.
func (p *Processor) trimEffectSilence(ctx context.Context, effectID int64, audio []byte, logger *slog.Logger) []byte {
	scratch, err := os.MkdirTemp(p.cfg.Paths.StagingDir, fmt.Sprintf("fxtrim-%d-*", effectID))
	if err != nil {
		logger.Warn("silence trim skipped", logging.Error(err))
		return audio
	}
	defer os.RemoveAll(scratch)

	source := filepath.Join(scratch, "raw.mp3")
	output := filepath.Join(scratch, "trimmed.mp3")
	if err := fileutil.WriteFileAtomic(source, audio); err != nil {
		logger.Warn("silence trim skipped", logging.Error(err))
		return audio
	}

	if err := p.run(ctx, p.cfg.FFmpegBinary(),
		"-i", source,
		"-af", effectTrimFilter(),
		"-c:a", "libmp3lame", "-q:a", "2",
		"-y", output,
	); err != nil {
		logger.Warn("silence trim failed, keeping original clip", logging.Error(err))
		return audio
	}

	trimmed, err := os.ReadFile(output)
	if err != nil || len(trimmed) == 0 {
		logger.Warn("silence trim produced no output, keeping original clip", logging.Error(err))
		return audio
	}
	return trimmed
}

func statusOf(value string) library.JobStatus {
	return library.JobStatus(strings.ToLower(strings.TrimSpace(value)))
}

// effectTrimFilter removes leading silence, then reverses and repeats the
// same trim so trailing silence goes with it.
func effectTrimFilter() string {
	head := "silenceremove=start_periods=1:start_duration=1:start_threshold=" + effectSilenceThreshold + ":detection=peak,aformat=dblp"
	return head + ",areverse," + head + ",areverse"
}

func (p *Processor) reportFailure(ctx context.Context, jobType library.JobType, jobID int64, detail string) {
	if p.notifier == nil {
		return
	}
	p.notifier.GenerationFailed(ctx, jobType, jobID, detail)
}

func (p *Processor) run(ctx context.Context, name string, args ...string) error {
	if p.commandRunner != nil {
		return p.commandRunner(ctx, name, args...)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ToolTimeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
