package workflow

import "soundloom/internal/library"

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	production := &laneState{kind: laneProduction, name: "production", notificationsEnabled: true}
	mixdown := &laneState{kind: laneMixdown, name: "mixdown", notificationsEnabled: false}

	if set.Producer != nil {
		production.stages = append(production.stages, pipelineStage{
			name:             "produce",
			handler:          set.Producer,
			startStatus:      library.StatusPending,
			processingStatus: library.StatusProducing,
			doneStatus:       library.StatusProduced,
		})
	}
	if set.Mixer != nil {
		mixdown.stages = append(mixdown.stages, pipelineStage{
			name:             "mix",
			handler:          set.Mixer,
			startStatus:      library.StatusProduced,
			processingStatus: library.StatusMixing,
			doneStatus:       library.StatusCompleted,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)

	if len(production.stages) > 0 {
		production.finalize()
		lanes[production.kind] = production
		order = append(order, production.kind)
	}
	if len(mixdown.stages) > 0 {
		mixdown.finalize()
		lanes[mixdown.kind] = mixdown
		order = append(order, mixdown.kind)
	}

	for _, lane := range lanes {
		if lane == nil {
			continue
		}
		lane.runReclaimer = len(lane.processingStatuses) > 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
