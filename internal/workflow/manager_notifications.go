package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/notifications"
)

func (m *Manager) notifyStageError(ctx context.Context, stageName string, run *library.Run, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	contextLabel := fmt.Sprintf("%s (run #%d)", stageName, run.ID)
	if err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": contextLabel,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyRunCompleted(ctx context.Context, run *library.Run) {
	if m.notifier == nil || run == nil {
		return
	}
	finalFile := ""
	if strings.TrimSpace(run.MixedFile) != "" {
		finalFile = filepath.Base(run.MixedFile)
	}
	if err := m.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"title":     m.runTitle(ctx, run),
		"finalFile": finalFile,
	}); err != nil {
		m.logger.Debug("run completion notification failed", logging.Error(err))
	}
}

func (m *Manager) notifyReviewRequired(ctx context.Context, run *library.Run, reason string) {
	if m.notifier == nil || run == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventReviewRequired, notifications.Payload{
		"title":  m.runTitle(ctx, run),
		"reason": reason,
	}); err != nil {
		m.logger.Debug("review notification failed", logging.Error(err))
	}
}

func (m *Manager) runTitle(ctx context.Context, run *library.Run) string {
	title := fmt.Sprintf("text #%d", run.TextID)
	if text, err := m.store.GetText(ctx, run.TextID); err == nil && text != nil && strings.TrimSpace(text.Title) != "" {
		title = strings.TrimSpace(text.Title)
	}
	return title
}

func (m *Manager) onRunStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			m.logger.Warn("queue stats unavailable for start notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check library database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	count := countWorkRuns(stats)
	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": count}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue start notification")
		} else {
			m.logger.Debug("queue start notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue completion")
		} else {
			m.logger.Warn("queue stats unavailable for completion notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check library database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if active := countActiveRuns(stats); active > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	processed := stats[library.StatusCompleted]
	failed := stats[library.StatusFailed]
	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": processed,
		"failed":    failed,
		"duration":  duration,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue completion notification")
		} else {
			m.logger.Debug("queue completion notification failed", logging.Error(err))
		}
	}
}

func countWorkRuns(stats map[library.Status]int) int {
	total := 0
	for status, count := range stats {
		if status == library.StatusCompleted || status == library.StatusFailed || status == library.StatusReview {
			continue
		}
		total += count
	}
	return total
}

func countActiveRuns(stats map[library.Status]int) int {
	activeStatuses := []library.Status{
		library.StatusPending,
		library.StatusProducing,
		library.StatusProduced,
		library.StatusMixing,
	}
	total := 0
	for _, status := range activeStatuses {
		total += stats[status]
	}
	return total
}
