package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soundloom/internal/daemon"
	"soundloom/internal/ipc"
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

func TestIPCServerClient(t *testing.T) {
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
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.LogDir, "soundloom.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected daemon pid, got %d", status.PID)
	}
	if !strings.HasSuffix(status.LibraryDBPath, "library.db") {
		t.Fatalf("unexpected library db path: %s", status.LibraryDBPath)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "soundloom.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 500})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
		close(followDone)
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	stopDuring, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopDuring.Stopped {
		t.Fatalf("expected Stop to report stopped, got: %#v", stopDuring)
	}

	text := testsupport.NewText(t, store, "Night Walk", "Rain taps the windows while the city sleeps.")
	runA, err := store.NewRun(ctx, text.ID)
	if err != nil {
		t.Fatalf("NewRun A: %v", err)
	}
	runB, err := store.NewRun(ctx, text.ID)
	if err != nil {
		t.Fatalf("NewRun B: %v", err)
	}
	runB.Status = library.StatusFailed
	if err := store.UpdateRun(ctx, runB); err != nil {
		t.Fatalf("UpdateRun runB: %v", err)
	}
	runC, err := store.NewRun(ctx, text.ID)
	if err != nil {
		t.Fatalf("NewRun C: %v", err)
	}
	runC.Status = library.StatusMixing
	if err := store.UpdateRun(ctx, runC); err != nil {
		t.Fatalf("UpdateRun runC: %v", err)
	}

	listResp, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Items) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(listResp.Items))
	}

	failedResp, err := client.QueueList([]string{string(library.StatusFailed)})
	if err != nil {
		t.Fatalf("QueueList failed filter: %v", err)
	}
	if len(failedResp.Items) != 1 || failedResp.Items[0].ID != runB.ID {
		t.Fatalf("expected failed run %d", runB.ID)
	}

	descResp, err := client.QueueDescribe(runA.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if !descResp.Found {
		t.Fatal("expected run to be found")
	}
	if descResp.Item.Title != "Night Walk" {
		t.Fatalf("expected title enrichment, got %q", descResp.Item.Title)
	}
	if descResp.Item.Status != string(library.StatusPending) {
		t.Fatalf("unexpected run status: %s", descResp.Item.Status)
	}

	missingResp, err := client.QueueDescribe(runC.ID + 1000)
	if err != nil {
		t.Fatalf("QueueDescribe missing failed: %v", err)
	}
	if missingResp.Found {
		t.Fatal("expected missing run to report Found=false")
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if healthResp.Total != 3 || healthResp.Pending != 1 || healthResp.Processing != 1 || healthResp.Failed != 1 {
		t.Fatalf("unexpected health response: %#v", healthResp)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "library.db") {
		t.Fatalf("unexpected db path: %s", dbHealth.DBPath)
	}
	if dbHealth.TotalRuns != 3 {
		t.Fatalf("expected 3 runs in database, got %d", dbHealth.TotalRuns)
	}

	resetResp, err := client.QueueReset()
	if err != nil {
		t.Fatalf("QueueReset failed: %v", err)
	}
	if resetResp.Updated != 1 {
		t.Fatalf("expected 1 run reset, got %d", resetResp.Updated)
	}
	updatedC, err := store.GetRun(ctx, runC.ID)
	if err != nil {
		t.Fatalf("GetRun runC: %v", err)
	}
	if updatedC.Status != library.StatusProduced {
		t.Fatalf("expected runC to resume at mixdown entry after reset, got %s", updatedC.Status)
	}

	stopRunsResp, err := client.QueueStop([]int64{runC.ID})
	if err != nil {
		t.Fatalf("QueueStop failed: %v", err)
	}
	if stopRunsResp.Updated != 1 {
		t.Fatalf("expected 1 run stopped, got %d", stopRunsResp.Updated)
	}
	stoppedResp, err := client.QueueDescribe(runC.ID)
	if err != nil {
		t.Fatalf("QueueDescribe stopped failed: %v", err)
	}
	if stoppedResp.Item.Status != string(library.StatusReview) || !stoppedResp.Item.NeedsReview {
		t.Fatalf("expected stopped run in review, got %#v", stoppedResp.Item)
	}

	removeResp, err := client.QueueRemove([]int64{runC.ID})
	if err != nil {
		t.Fatalf("QueueRemove failed: %v", err)
	}
	if removeResp.Removed != 1 {
		t.Fatalf("expected 1 run removed, got %d", removeResp.Removed)
	}

	clearFailedResp, err := client.QueueClearFailed()
	if err != nil {
		t.Fatalf("QueueClearFailed failed: %v", err)
	}
	if clearFailedResp.Removed != 1 {
		t.Fatalf("expected 1 failed run removed, got %d", clearFailedResp.Removed)
	}

	retryResp, err := client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry failed: %v", err)
	}
	if retryResp.Updated != 0 {
		t.Fatalf("expected 0 retried runs, got %d", retryResp.Updated)
	}

	runA.Status = library.StatusCompleted
	if err := store.UpdateRun(ctx, runA); err != nil {
		t.Fatalf("UpdateRun runA: %v", err)
	}
	clearCompletedResp, err := client.QueueClearCompleted()
	if err != nil {
		t.Fatalf("QueueClearCompleted failed: %v", err)
	}
	if clearCompletedResp.Removed != 1 {
		t.Fatalf("expected 1 completed run removed, got %d", clearCompletedResp.Removed)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response: %#v", notifyResp)
	}

	if _, err := store.NewRun(ctx, text.ID); err != nil {
		t.Fatalf("NewRun D: %v", err)
	}
	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 1 {
		t.Fatalf("expected 1 run cleared, got %d", clearResp.Removed)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
