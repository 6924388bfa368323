package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"soundloom/internal/library"
	"soundloom/internal/testsupport"
)

func newTestRun(t *testing.T, env *cliTestEnv, title string) *library.Run {
	t.Helper()
	text := testsupport.NewText(t, env.store, title, "the hills roll toward a distant sea")
	return testsupport.NewRun(t, env.store, text.ID)
}

func failRun(t *testing.T, env *cliTestEnv, run *library.Run) {
	t.Helper()
	run.Status = library.StatusFailed
	if err := env.store.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("mark run %d failed: %v", run.ID, err)
	}
}

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	newTestRun(t, env, "Alpha")
	beta := newTestRun(t, env, "Beta")
	failRun(t, env, beta)

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Alpha")
	requireContains(t, out, "Beta")
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	alpha := newTestRun(t, env, "Alpha")
	failRun(t, env, alpha)

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed runs")

	updated, err := env.store.GetRun(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("lookup alpha: %v", err)
	}
	if updated.Status != library.StatusPending {
		t.Fatalf("expected pending, got %s", updated.Status)
	}

	failRun(t, env, updated)

	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed runs")

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear all: %v", err)
	}
	requireContains(t, out, "Cleared")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status after clear: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueRetrySpecificID(t *testing.T) {
	env := setupCLITestEnv(t)

	alpha := newTestRun(t, env, "Alpha")
	failRun(t, env, alpha)

	out, _, err := runCLI(t, []string{"queue", "retry", fmt.Sprintf("%d", alpha.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry specific: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Run %d reset for retry", alpha.ID))
}

func TestQueueStopInFlightRun(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := newTestRun(t, env, "Alpha")
	run.Status = library.StatusProducing
	if err := env.store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("mark producing: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "stop", fmt.Sprintf("%d", run.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue stop: %v", err)
	}
	requireContains(t, out, "stop requested")
	requireContains(t, out, "will halt after current stage")

	updated, err := env.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("lookup run: %v", err)
	}
	if updated.Status != library.StatusReview {
		t.Fatalf("expected review, got %s", updated.Status)
	}
	if updated.ReviewReason != library.UserStopReason {
		t.Fatalf("expected review reason %q, got %q", library.UserStopReason, updated.ReviewReason)
	}
	if !updated.NeedsReview {
		t.Fatalf("expected needs_review to be true")
	}
}

func TestQueueStopPendingRun(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := newTestRun(t, env, "Alpha")

	out, _, err := runCLI(t, []string{"queue", "stop", fmt.Sprintf("%d", run.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue stop: %v", err)
	}
	requireContains(t, out, "stopped and parked for review")

	updated, err := env.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("lookup run: %v", err)
	}
	if updated.Status != library.StatusReview {
		t.Fatalf("expected review, got %s", updated.Status)
	}
}

func TestQueueRemoveSpecificID(t *testing.T) {
	env := setupCLITestEnv(t)

	run := newTestRun(t, env, "Alpha")

	out, _, err := runCLI(t, []string{"queue", "remove", fmt.Sprintf("%d", run.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Run %d removed", run.ID))

	out, _, err = runCLI(t, []string{"queue", "remove", fmt.Sprintf("%d", run.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove again: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Run %d not found", run.ID))
}

func TestQueueRetryInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "retry", "abc"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid run id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestQueueListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	newTestRun(t, env, "Alpha")
	newTestRun(t, env, "Beta")

	out, _, err := runCLI(t, []string{"queue", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if _, ok := item["id"]; !ok {
			t.Fatal("missing 'id' key in JSON item")
		}
		if _, ok := item["status"]; !ok {
			t.Fatal("missing 'status' key in JSON item")
		}
	}
}

func TestQueueListJSONEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json empty: %v", err)
	}

	var items []any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty array, got %d items", len(items))
	}
}

func TestQueueStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	newTestRun(t, env, "Alpha")
	beta := newTestRun(t, env, "Beta")
	failRun(t, env, beta)

	out, _, err := runCLI(t, []string{"queue", "status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status --json: %v", err)
	}

	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if _, ok := stats["pending"]; !ok {
		t.Fatalf("expected 'pending' key in status JSON, got: %v", stats)
	}
	if _, ok := stats["failed"]; !ok {
		t.Fatalf("expected 'failed' key in status JSON, got: %v", stats)
	}
}

func TestQueueShowJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	run := newTestRun(t, env, "Alpha")

	out, _, err := runCLI(t, []string{"queue", "show", fmt.Sprintf("%d", run.ID), "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show --json: %v", err)
	}

	var detail map[string]any
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if detail["id"] != float64(run.ID) {
		t.Fatalf("expected id %d, got %v", run.ID, detail["id"])
	}
	if detail["title"] != "Alpha" {
		t.Fatalf("expected title Alpha, got %v", detail["title"])
	}
}

func TestQueueShowJSONIncludesDegradations(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := newTestRun(t, env, "Alpha")
	run.SetDegradations([]library.Degradation{
		{Step: "music", Reason: "generation timed out; run continued without a music bed"},
	})
	if err := env.store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "show", fmt.Sprintf("%d", run.ID), "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show --json: %v", err)
	}

	var detail map[string]any
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	degradations, ok := detail["degradations"].([]any)
	if !ok || len(degradations) != 1 {
		t.Fatalf("expected one degradation entry, got %v", detail["degradations"])
	}
	entry, ok := degradations[0].(map[string]any)
	if !ok || entry["step"] != "music" {
		t.Fatalf("unexpected degradation entry: %v", degradations[0])
	}
}

func TestQueueShowJSONNotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "show", "9999", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show --json not found: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if result["error"] != "not_found" {
		t.Fatalf("expected error=not_found, got %v", result["error"])
	}
}

func TestQueueHealthJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	newTestRun(t, env, "Alpha")

	out, _, err := runCLI(t, []string{"queue", "health", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health --json: %v", err)
	}

	var health map[string]any
	if err := json.Unmarshal([]byte(out), &health); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	for _, key := range []string{"total", "pending", "processing", "failed", "completed"} {
		if _, ok := health[key]; !ok {
			t.Fatalf("missing %q key in health JSON", key)
		}
	}
	if health["total"] != float64(1) {
		t.Fatalf("expected total=1, got %v", health["total"])
	}
}

func TestQueueShowDetail(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := newTestRun(t, env, "Showcase")
	run.Status = library.StatusProducing
	run.ProgressStage = "Aligning narration"
	run.ProgressPercent = 60
	run.CombinedFile = "/staging/combined-1.wav"
	if err := env.store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "show", fmt.Sprintf("%d", run.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Run %d: Showcase", run.ID))
	requireContains(t, out, "Status:   Producing")
	requireContains(t, out, "Stage:    Aligning narration (60%)")
	requireContains(t, out, "Combined: /staging/combined-1.wav")
}

func TestQueueHealthCounts(t *testing.T) {
	env := setupCLITestEnv(t)

	newTestRun(t, env, "Alpha")
	beta := newTestRun(t, env, "Beta")
	failRun(t, env, beta)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 2")
	requireContains(t, out, "Pending: 1")
	requireContains(t, out, "Failed: 1")
}
