package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"soundloom/internal/alignment"
	"soundloom/internal/combiner"
	"soundloom/internal/config"
	"soundloom/internal/daemon"
	"soundloom/internal/generation"
	"soundloom/internal/generation/replicate"
	"soundloom/internal/ipc"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/mixdown"
	"soundloom/internal/notifications"
	"soundloom/internal/pipeline"
	"soundloom/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
	// SocketPath overrides the IPC socket location when non-empty.
	SocketPath string
}

// Run starts the soundloom daemon runtime loop and blocks until the parent
// context is cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("soundloom-%s.log", runID))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Other processes follow the catalogued name; the dated file keeps one
	// log per daemon run.
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update soundloom.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "soundloom-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "soundloom.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)

	store, err := library.Open(cfg)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)

	var (
		registry   *generation.Registry
		dispatcher *generation.Dispatcher
		processor  *generation.Processor
	)
	if cfg.Generation.Enabled {
		client := replicate.NewClient(replicate.Config{
			APIToken:               cfg.Generation.APIToken,
			BaseURL:                cfg.Generation.BaseURL,
			DownloadTimeoutSeconds: cfg.Generation.DownloadTimeout,
		})
		registry = generation.NewRegistry(logger)
		dispatcher = generation.NewDispatcher(store, cfg, client, logger)
		processor = generation.NewProcessor(store, cfg, client, registry, logger)
		processor.WithNotifier(notifier)
	}

	var aligner combiner.Aligner
	if cfg.Alignment.Enabled {
		aligner = alignment.NewService(alignment.Config{
			Model:       cfg.Alignment.Model,
			Device:      cfg.Alignment.Device,
			ComputeType: cfg.Alignment.ComputeType,
			Language:    cfg.Alignment.Language,
			WorkDir:     cfg.Paths.AlignmentCacheDir,
			CacheDir:    cfg.Paths.AlignmentCacheDir,
		}, cfg.UvxBinary(), logger)
	}
	comb := combiner.NewService(store, cfg, aligner, logger)

	workflowManager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	workflowManager.ConfigureStages(workflow.StageSet{
		Producer: pipeline.NewProducer(cfg, store, logger, comb, dispatcher, registry),
		Mixer:    pipeline.NewMixer(cfg, store, logger, mixdown.NewEngine(cfg, logger)),
	})

	d, err := daemon.New(cfg, store, logger, workflowManager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.WithNotifier(notifier)
	if processor != nil {
		d.WithWebhookProcessor(processor)
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "soundloom.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and library database access"),
			logging.String(logging.FieldImpact, "daemon may not process queued runs"),
		)
	}

	<-signalCtx.Done()
	logger.Info("soundloom daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "soundloom.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	// Some filesystems refuse symlinks; a hard link serves the same purpose.
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	uvx := cfg.UvxBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("alignment_enabled", cfg.Alignment.Enabled),
		logging.Bool("uvx_available", binaryAvailable(uvx)),
		logging.String("alignment_model", cfg.Alignment.Model),
		logging.String("alignment_device", cfg.Alignment.Device),
		logging.Bool("generation_enabled", cfg.Generation.Enabled),
		logging.Bool("generation_token_present", strings.TrimSpace(cfg.Generation.APIToken) != ""),
		logging.Bool("ntfy_topic_present", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
