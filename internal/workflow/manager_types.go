package workflow

import (
	"log/slog"

	"soundloom/internal/library"
	"soundloom/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Producer stage.Handler
	Mixer    stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      library.Status
	processingStatus library.Status
	doneStatus       library.Status
}

type laneKind string

const (
	laneProduction laneKind = "production"
	laneMixdown    laneKind = "mixdown"
)

type laneState struct {
	kind                 laneKind
	name                 string
	stages               []pipelineStage
	statusOrder          []library.Status
	stageByStart         map[library.Status]pipelineStage
	processingStatuses   []library.Status
	logger               *slog.Logger
	notificationsEnabled bool
	runReclaimer         bool
}

// loggerAware lets stage handlers receive the per-run stage logger so their
// own log lines carry run, lane, and correlation fields.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

func (l *laneState) finalize() {
	if l == nil {
		return
	}
	l.stageByStart = make(map[library.Status]pipelineStage, len(l.stages))
	l.statusOrder = make([]library.Status, 0, len(l.stages))
	seenProcessing := make(map[library.Status]struct{})
	for _, stg := range l.stages {
		l.stageByStart[stg.startStatus] = stg
		l.statusOrder = append(l.statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				l.processingStatuses = append(l.processingStatuses, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}
}

func (l *laneState) stageForStatus(status library.Status) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByStart[status]
	return stg, ok
}
