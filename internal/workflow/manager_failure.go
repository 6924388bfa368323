package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, run *library.Run, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := m.stageLoggerForLane(ctx, nil, base, run).With(logging.String(logging.FieldComponent, "workflow-manager"))

	message := m.classifyStageFailure(stageName, stageErr)
	resolved := services.FailureStatus(stageErr)
	m.setRunFailureState(run, resolved, message)

	hint := "fix the cause and requeue with `soundloom queue retry`"
	if resolved == library.StatusReview {
		hint = "inspect the run with `soundloom queue show` and clear the review"
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, hint),
	)

	if err := m.store.UpdateRun(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastRun(run)
	if resolved == library.StatusReview {
		m.notifyReviewRequired(ctx, run, message)
	}
	m.notifyStageError(ctx, stageName, run, stageErr)
	m.checkQueueCompletion(ctx)
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return m.stageFailureMessage(stageName, "failed without error detail")
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = m.stageFailureMessage(stageName, "failed")
	}
	return message
}

func (m *Manager) stageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

// setRunFailureState routes validation-class failures to the review queue so
// an operator sees them; everything else is retryable failed.
func (m *Manager) setRunFailureState(run *library.Run, resolved library.Status, message string) {
	if resolved == library.StatusReview {
		run.Status = library.StatusReview
		run.NeedsReview = true
		run.ReviewReason = message
		run.ErrorMessage = message
		run.ProgressStage = "Needs review"
		run.ProgressMessage = message
		run.ProgressPercent = 0
		run.LastHeartbeat = nil
		return
	}
	run.SetFailed(message)
}
