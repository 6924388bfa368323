package daemon_test

import (
	"context"
	"testing"
	"time"

	"soundloom/internal/daemon"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/stage"
	"soundloom/internal/testsupport"
	"soundloom/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *library.Run) error { return nil }
func (noopStage) Execute(context.Context, *library.Run) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Producer: noopStage{}, Mixer: noopStage{}})

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected a pid, got %d", status.PID)
	}
	if status.LockFilePath == "" || status.LibraryDBPath == "" {
		t.Fatalf("expected populated paths: %+v", status)
	}
	if len(status.Dependencies) < 2 {
		t.Fatalf("expected ffmpeg and ffprobe dependency entries, got %+v", status.Dependencies)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonQueueHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Producer: noopStage{}, Mixer: noopStage{}})

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx := context.Background()
	text := testsupport.NewText(t, store, "Queue Helpers", "Body text.")
	run, err := store.NewRun(ctx, text.ID)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	runs, err := d.ListRuns(ctx, nil)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	titles, err := d.TextTitles(ctx)
	if err != nil {
		t.Fatalf("TextTitles: %v", err)
	}
	if titles[text.ID] != "Queue Helpers" {
		t.Fatalf("unexpected titles: %+v", titles)
	}

	stopped, err := d.StopRuns(ctx, []int64{run.ID})
	if err != nil {
		t.Fatalf("StopRuns: %v", err)
	}
	if stopped != 1 {
		t.Fatalf("expected 1 stopped run, got %d", stopped)
	}
	updated, err := d.DescribeRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("DescribeRun: %v", err)
	}
	if updated.Status != library.StatusReview || !updated.NeedsReview {
		t.Fatalf("expected review status after stop, got %+v", updated)
	}

	removed, err := d.RemoveRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("RemoveRun: %v", err)
	}
	if !removed {
		t.Fatal("expected run removal")
	}

	ok, detail, err := d.TestNotification(ctx)
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if ok || detail != "ntfy topic not configured" {
		t.Fatalf("expected unconfigured notification result, got ok=%v detail=%q", ok, detail)
	}
}
