package library

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of an assembly run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProducing Status = "producing"
	StatusProduced  Status = "produced"
	StatusMixing    Status = "mixing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReview    Status = "review"
)

// UserStopReason is the review reason set when a user explicitly stops a run.
const UserStopReason = "Stop requested by user"

// DaemonStopReason is the error message set when runs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProducing,
	StatusProduced,
	StatusMixing,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusProducing: {},
	StatusMixing:    {},
}

type statusTransition struct {
	from Status
	to   Status
}

// Rollbacks return an interrupted run to the start of its current stage.
var stageRollbackTransitions = []statusTransition{
	{from: StatusProducing, to: StatusPending},
	{from: StatusMixing, to: StatusProduced},
}

// DatabaseHealth captures diagnostic information about the library database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}

// HealthSummary describes aggregated run counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// Degradation records a mixdown step that fell back to a reduced result
// instead of failing the run.
type Degradation struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Run represents one assembly of a text into a published mixdown.
type Run struct {
	ID               int64
	TextID           int64
	Status           Status
	ErrorMessage     string
	CombinedFile     string
	MixedFile        string
	DurationSeconds  float64
	DegradationsJSON string
	ProgressStage    string
	ProgressPercent  float64
	ProgressMessage  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
	NeedsReview      bool
	ReviewReason     string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (r Run) IsProcessing() bool {
	_, ok := processingStatuses[r.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsUserStopReason reports whether a review reason represents a user-initiated stop.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// Degradations decodes the persisted degradation list. Invalid or empty
// payloads yield nil.
func (r Run) Degradations() []Degradation {
	trimmed := strings.TrimSpace(r.DegradationsJSON)
	if trimmed == "" {
		return nil
	}
	var out []Degradation
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil
	}
	return out
}

// SetDegradations replaces the persisted degradation list.
func (r *Run) SetDegradations(degradations []Degradation) {
	if len(degradations) == 0 {
		r.DegradationsJSON = ""
		return
	}
	data, err := json.Marshal(degradations)
	if err != nil {
		return
	}
	r.DegradationsJSON = string(data)
}

// InitProgress resets progress fields for a new stage.
// If ProgressStage is currently empty, it is set to the provided stage value;
// otherwise the existing stage is preserved (to support resume scenarios).
// ProgressMessage is set to message, ProgressPercent is reset to 0,
// and ErrorMessage is cleared.
func (r *Run) InitProgress(stage, message string) {
	if r.ProgressStage == "" {
		r.ProgressStage = stage
	}
	r.ProgressMessage = message
	r.ProgressPercent = 0
	r.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (r *Run) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
// Convenience method for stage completion.
func (r *Run) SetProgressComplete(stage, message string) {
	r.SetProgress(stage, message, 100)
}

// SetFailed marks the run as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (r *Run) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ProgressPercent = 0
	r.ProgressMessage = message
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}

// IsInWorkflow returns true when a run is actively progressing (or queued to
// progress) through stages.
func (r Run) IsInWorkflow() bool {
	if r.IsProcessing() {
		return true
	}
	switch r.Status {
	case StatusPending, StatusProduced:
		return true
	default:
		return false
	}
}

// StageKey returns the normalized stage identifier used in API/CLI presentation.
func (s Status) StageKey() string {
	switch s {
	case "":
		return ""
	case StatusPending:
		return "planned"
	case StatusCompleted:
		return "final"
	case StatusProducing,
		StatusProduced,
		StatusMixing,
		StatusFailed,
		StatusReview:
		return string(s)
	default:
		return ""
	}
}

// ProcessingLane partitions workflow into the concurrent track-production
// phase and the serialized mixdown phase.
type ProcessingLane string

const (
	LaneProduction ProcessingLane = "production"
	LaneMixdown    ProcessingLane = "mixdown"
)

// LaneForRun maps a run to its processing lane for observability purposes.
func LaneForRun(run *Run) ProcessingLane {
	if run == nil {
		return LaneProduction
	}
	switch run.Status {
	case StatusPending, StatusProducing:
		return LaneProduction
	case StatusProduced, StatusMixing, StatusCompleted:
		return LaneMixdown
	case StatusFailed, StatusReview:
		if run.CombinedFile != "" {
			return LaneMixdown
		}
		return LaneProduction
	default:
		return LaneProduction
	}
}
