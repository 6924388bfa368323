package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"soundloom/internal/library"
	"soundloom/internal/testsupport"
)

func TestDaemonStartStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	ctx := context.Background()
	alpha := testsupport.NewText(t, env.store, "Alpha", "a quiet morning on the river")
	if _, err := env.store.NewRun(ctx, alpha.ID); err != nil {
		t.Fatalf("create run: %v", err)
	}
	beta := testsupport.NewText(t, env.store, "Beta", "the storm breaks over the hills")
	run, err := env.store.NewRun(ctx, beta.ID)
	if err != nil {
		t.Fatalf("create run beta: %v", err)
	}
	run.Status = library.StatusFailed
	if err := env.store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if err := appendLine(env.logPath, "seed"); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "Queue Status")
	if !strings.Contains(out, "Pending") && !strings.Contains(out, "Producing") {
		t.Fatalf("expected queue status to include Pending/Producing, got:\n%s", out)
	}
	requireContains(t, out, "Failed")
}

func TestDaemonStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	ctx := context.Background()
	text := testsupport.NewText(t, env.store, "Gamma", "a lantern swings in the dark")
	if _, err := env.store.NewRun(ctx, text.ID); err != nil {
		t.Fatalf("create run: %v", err)
	}

	out, _, err := runCLI(t, []string{"--json", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var payload struct {
		QueueStats map[string]int `json:"queue_stats"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("parse status JSON: %v\noutput: %s", err, out)
	}
	if payload.QueueStats["pending"] != 1 {
		t.Fatalf("expected one pending run in %v", payload.QueueStats)
	}
}
