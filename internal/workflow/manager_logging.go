package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/services"
)

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	name := lane.name
	if name == "" {
		name = string(lane.kind)
	}
	return m.logger.With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-runner", name)),
		logging.String(logging.FieldLane, name),
	)
}

func (m *Manager) stageLoggerForLane(ctx context.Context, lane *laneState, laneLogger *slog.Logger, run *library.Run) *slog.Logger {
	base := laneLogger
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.WithContext(ctx, base)
	// Failure paths arrive without stage context; make sure the run still tags
	// the line.
	if run != nil {
		if _, ok := services.RunIDFromContext(ctx); !ok {
			logger = logger.With(logging.Int64(logging.FieldRunID, run.ID))
		}
	}
	if lane != nil && lane.name != "" {
		if _, ok := services.LaneFromContext(ctx); !ok {
			logger = logger.With(logging.String(logging.FieldLane, lane.name))
		}
	}
	return logger
}

func withStageContext(ctx context.Context, lane *laneState, stageName string, run *library.Run, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if run != nil {
		ctx = services.WithRunID(ctx, run.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		laneLabel := strings.TrimSpace(lane.name)
		if laneLabel == "" {
			laneLabel = string(lane.kind)
		}
		ctx = services.WithLane(ctx, laneLabel)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func deriveStageLabel(status library.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
