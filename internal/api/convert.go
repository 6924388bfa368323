package api

import (
	"slices"
	"strings"
	"time"

	"soundloom/internal/library"
	"soundloom/internal/stage"
	"soundloom/internal/workflow"
)

// FromRun converts a library run to its API representation.
func FromRun(run *library.Run) RunItem {
	if run == nil {
		return RunItem{}
	}

	dto := RunItem{
		ID:             run.ID,
		TextID:         run.TextID,
		Status:         string(run.Status),
		ProcessingLane: string(library.LaneForRun(run)),
		Progress: RunProgress{
			Stage:   run.ProgressStage,
			Percent: run.ProgressPercent,
			Message: run.ProgressMessage,
		},
		ErrorMessage:    run.ErrorMessage,
		CombinedFile:    run.CombinedFile,
		MixedFile:       run.MixedFile,
		DurationSeconds: run.DurationSeconds,
		NeedsReview:     run.NeedsReview,
		ReviewReason:    run.ReviewReason,
	}
	normalizeProgress(run, &dto)

	for _, degradation := range run.Degradations() {
		dto.Degradations = append(dto.Degradations, RunDegradation{Step: degradation.Step, Reason: degradation.Reason})
	}
	if !run.CreatedAt.IsZero() {
		dto.CreatedAt = run.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !run.UpdatedAt.IsZero() {
		dto.UpdatedAt = run.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRuns converts a slice of library runs into API DTOs.
func FromRuns(runs []*library.Run) []RunItem {
	if len(runs) == 0 {
		return nil
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// AttachTitles fills RunItem.Title from a text ID lookup table.
func AttachTitles(items []RunItem, titles map[int64]string) {
	for i := range items {
		if title, ok := titles[items[i].TextID]; ok {
			items[i].Title = title
		}
	}
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}

	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastRun != nil {
		last := FromRun(summary.LastRun)
		wf.LastRun = &last
	}
	return wf
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[library.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// The progress columns keep whatever the last stage handler wrote, which reads
// oddly once a run leaves the pipeline. Terminal runs are presented with a
// stage derived from their status instead, except when a review stage carries
// operator-facing wording.
func normalizeProgress(run *library.Run, dto *RunItem) {
	if run.Status == library.StatusCompleted && !run.NeedsReview {
		dto.Progress.Stage = "Completed"
		dto.Progress.Percent = 100
		return
	}
	if strings.TrimSpace(dto.Progress.Stage) == "" {
		dto.Progress.Stage = stageLabelForStatus(run.Status)
	}
}

func stageLabelForStatus(status library.Status) string {
	switch status {
	case library.StatusPending:
		return "Pending"
	case library.StatusProducing:
		return "Producing"
	case library.StatusProduced:
		return "Produced"
	case library.StatusMixing:
		return "Mixing"
	case library.StatusCompleted:
		return "Completed"
	case library.StatusFailed:
		return "Failed"
	case library.StatusReview:
		return "Review"
	default:
		return ""
	}
}
