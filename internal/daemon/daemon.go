package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"soundloom/internal/config"
	"soundloom/internal/deps"
	"soundloom/internal/generation"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/notifications"
	"soundloom/internal/preflight"
	"soundloom/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *library.Store
	workflow *workflow.Manager
	webhooks *generation.Processor
	notifier notifications.Service
	api      *apiServer
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workflow      workflow.StatusSummary
	LibraryDBPath string
	LockFilePath  string
	DaemonLogPath string
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *library.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "soundloomd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		logPath:  logging.LogFilePath(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// WithWebhookProcessor installs the generation callback processor. The HTTP
// webhook endpoint answers 503 until one is set.
func (d *Daemon) WithWebhookProcessor(p *generation.Processor) {
	d.webhooks = p
}

// WithNotifier sets the push-notification service used by TestNotification.
func (d *Daemon) WithNotifier(n notifications.Service) {
	d.notifier = n
}

// Start acquires the daemon lock, verifies the environment, and launches the
// workflow manager and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another soundloom daemon instance is already running")
	}

	if err := d.runPreflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.recoverOpenJobs()

	d.running.Store(true)
	d.logger.Info("soundloom daemon started", logging.String("lock", d.lockPath))
	return nil
}

// runPreflight refuses startup when a required environment check fails.
func (d *Daemon) runPreflight(ctx context.Context) error {
	var failed []string
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		failed = append(failed, result.Name)
		d.logger.Error("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported path or provider settings and restart"),
		)
	}
	if len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// recoverOpenJobs sweeps tracked generation jobs whose callbacks were missed
// while the daemon was down. Runs off the daemon context so a slow provider
// never delays startup.
func (d *Daemon) recoverOpenJobs() {
	if d.webhooks == nil {
		return
	}
	ctx := d.ctx
	go func() {
		recovered, err := d.webhooks.RecoverOpenJobs(ctx)
		if err != nil {
			d.logger.Warn("generation job recovery incomplete",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_recovery_failed"),
				logging.String(logging.FieldImpact, "runs waiting on missed callbacks rely on later webhooks"),
			)
			return
		}
		if recovered > 0 {
			d.logger.Info("generation jobs recovered", logging.Int("count", recovered))
		}
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("soundloom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListRuns returns runs filtered by optional statuses.
func (d *Daemon) ListRuns(ctx context.Context, statuses []library.Status) ([]*library.Run, error) {
	if d.store == nil {
		return nil, errors.New("library store unavailable")
	}
	return d.store.ListRuns(ctx, statuses...)
}

// DescribeRun returns a single run, or nil when the id is unknown.
func (d *Daemon) DescribeRun(ctx context.Context, id int64) (*library.Run, error) {
	if d.store == nil {
		return nil, errors.New("library store unavailable")
	}
	return d.store.GetRun(ctx, id)
}

// ClearRuns removes all runs.
func (d *Daemon) ClearRuns(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed runs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed runs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight runs back to their lane entry status.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed runs (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// StopRuns parks the selected runs for operator review.
func (d *Daemon) StopRuns(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("library store unavailable")
	}
	return d.store.StopRuns(ctx, ids...)
}

// RemoveRun deletes a run by identifier.
func (d *Daemon) RemoveRun(ctx context.Context, id int64) (bool, error) {
	if d.store == nil {
		return false, errors.New("library store unavailable")
	}
	return d.store.RemoveRun(ctx, id)
}

// QueueHealth returns aggregate run diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (library.HealthSummary, error) {
	if d.store == nil {
		return library.HealthSummary{}, errors.New("library store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (library.DatabaseHealth, error) {
	if d.store == nil {
		return library.DatabaseHealth{}, errors.New("library store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// ActiveCombinedFiles lists combined speech files still referenced by
// non-terminal runs, for staging cleanup.
func (d *Daemon) ActiveCombinedFiles(ctx context.Context) (map[string]struct{}, error) {
	if d.store == nil {
		return nil, errors.New("library store unavailable")
	}
	return d.store.ActiveCombinedFiles(ctx)
}

// TextTitles maps text ids to titles for run display enrichment.
func (d *Daemon) TextTitles(ctx context.Context) (map[int64]string, error) {
	if d.store == nil {
		return nil, errors.New("library store unavailable")
	}
	texts, err := d.store.ListTexts(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(texts))
	for _, text := range texts {
		titles[text.ID] = text.Title
	}
	return titles, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := d.notifier
	if notifier == nil {
		notifier = notifications.NewService(d.cfg)
	}
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status. Dependency availability is
// evaluated on every call so status surfaces see tool changes without a
// restart.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workflow:      summary,
		LibraryDBPath: filepath.Join(d.cfg.Paths.LogDir, "library.db"),
		LockFilePath:  d.lockPath,
		DaemonLogPath: d.logPath,
		Dependencies:  deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}
