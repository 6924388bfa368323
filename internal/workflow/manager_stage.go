package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/stage"
)

func (m *Manager) processRun(ctx context.Context, lane *laneState, laneLogger *slog.Logger, run *library.Run) error {
	stg, ok := lane.stageForStatus(run.Status)
	if !ok {
		if laneLogger == nil {
			laneLogger = m.logger
		}
		if laneLogger == nil {
			laneLogger = logging.NewNop()
		}
		laneLogger.Warn("no stage configured for status", logging.String("status", string(run.Status)))
		m.waitForRunOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, lane, stg.name, run, requestID)
	stageLogger := m.stageLoggerForLane(stageCtx, lane, laneLogger, run)
	if aware, ok := stg.handler.(loggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	if err := m.transitionToProcessing(stageCtx, lane, stg.processingStatus, run); err != nil {
		stageLogger.Error("failed to transition run to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, run)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, run *library.Run) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.Int64(logging.FieldTextID, run.TextID),
	)

	handler := stg.handler
	if handler == nil {
		stageLogger.Warn("missing stage handler", logging.String("stage", stg.name))
		run.Status = library.StatusFailed
		run.ErrorMessage = fmt.Sprintf("stage %s missing handler", stg.name)
		if err := m.store.UpdateRun(ctx, run); err != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(err))
		}
		m.setLastError(errors.New("stage handler unavailable"))
		return errors.New("stage handler unavailable")
	}

	if err := handler.Prepare(ctx, run); err != nil {
		m.handleStageFailure(ctx, stg.name, run, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateRun(ctx, run); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, run)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg.name, run, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if run.Status == stg.processingStatus || run.Status == "" {
		run.Status = stg.doneStatus
	}
	run.LastHeartbeat = nil
	if run.Status == library.StatusCompleted {
		currentLabel := strings.TrimSpace(run.ProgressStage)
		if !run.NeedsReview && !strings.Contains(strings.ToLower(currentLabel), "review") {
			run.ProgressStage = deriveStageLabel(library.StatusCompleted)
		}
		if run.ProgressPercent < 100 {
			run.ProgressPercent = 100
		}
		if strings.TrimSpace(run.ProgressMessage) == "" {
			run.ProgressMessage = deriveStageLabel(library.StatusCompleted)
		}
	}
	if err := m.store.UpdateRun(ctx, run); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(run.Status)),
		logging.String("progress_stage", strings.TrimSpace(run.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(run.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastRun(run)
	if run.Status == library.StatusCompleted {
		m.notifyRunCompleted(ctx, run)
	}
	m.checkQueueCompletion(ctx)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, run *library.Run) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, run.ID)

	execErr := handler.Execute(ctx, run)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) transitionToProcessing(ctx context.Context, lane *laneState, processing library.Status, run *library.Run) error {
	if processing == "" {
		return errors.New("processing status must not be empty")
	}

	m.setRunProcessingState(run, processing)
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastRun(run)
	if lane == nil || lane.notificationsEnabled {
		m.onRunStarted(ctx)
	}
	return nil
}

func (m *Manager) setRunProcessingState(run *library.Run, processing library.Status) {
	now := time.Now().UTC()
	run.Status = processing
	if run.ProgressStage == "" {
		run.ProgressStage = deriveStageLabel(processing)
	}
	if run.ProgressMessage == "" {
		run.ProgressMessage = fmt.Sprintf("%s started", deriveStageLabel(processing))
	}
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	run.LastHeartbeat = &now
}
