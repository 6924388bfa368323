package api

import (
	"context"

	"soundloom/internal/library"
)

// QueueActionService captures queue operations needed by per-run retry/stop workflows.
type QueueActionService interface {
	Describe(ctx context.Context, id int64) (*RunItem, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Stop(ctx context.Context, ids []int64) (int64, error)
}

type RetryRunOutcome string

const (
	RetryRunUpdated   RetryRunOutcome = "retried"
	RetryRunNotFound  RetryRunOutcome = "not_found"
	RetryRunNotFailed RetryRunOutcome = "not_failed"
)

type RetryRunResult struct {
	ID        int64           `json:"id"`
	Outcome   RetryRunOutcome `json:"outcome"`
	NewStatus string          `json:"new_status,omitempty"`
}

type RetryRunsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Items        []RetryRunResult `json:"items"`
}

type StopRunOutcome string

const (
	StopRunUpdated          StopRunOutcome = "stopped"
	StopRunNotFound         StopRunOutcome = "not_found"
	StopRunAlreadyCompleted StopRunOutcome = "already_completed"
	StopRunAlreadyFailed    StopRunOutcome = "already_failed"
)

type StopRunResult struct {
	ID          int64          `json:"id"`
	Outcome     StopRunOutcome `json:"outcome"`
	PriorStatus string         `json:"prior_status,omitempty"`
}

type StopRunsResult struct {
	UpdatedCount int64           `json:"updatedCount"`
	Items        []StopRunResult `json:"items"`
}

// RetryFailedRunsByID validates IDs and retries only failed runs.
func RetryFailedRunsByID(ctx context.Context, service QueueActionService, ids []int64) (RetryRunsResult, error) {
	result := RetryRunsResult{Items: make([]RetryRunResult, 0, len(ids))}
	for _, id := range ids {
		run, err := service.Describe(ctx, id)
		if err != nil {
			return RetryRunsResult{}, err
		}
		if run == nil {
			result.Items = append(result.Items, RetryRunResult{ID: id, Outcome: RetryRunNotFound})
			continue
		}
		status, ok := library.ParseStatus(run.Status)
		if !ok || status != library.StatusFailed {
			result.Items = append(result.Items, RetryRunResult{ID: id, Outcome: RetryRunNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []int64{id})
		if err != nil {
			return RetryRunsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Items = append(result.Items, RetryRunResult{ID: id, Outcome: RetryRunUpdated})
			continue
		}
		result.Items = append(result.Items, RetryRunResult{ID: id, Outcome: RetryRunNotFailed})
	}
	return result, nil
}

// StopRunsByID validates IDs and stops runs unless already terminal.
func StopRunsByID(ctx context.Context, service QueueActionService, ids []int64) (StopRunsResult, error) {
	result := StopRunsResult{Items: make([]StopRunResult, 0, len(ids))}
	for _, id := range ids {
		run, err := service.Describe(ctx, id)
		if err != nil {
			return StopRunsResult{}, err
		}
		if run == nil {
			result.Items = append(result.Items, StopRunResult{ID: id, Outcome: StopRunNotFound})
			continue
		}
		status := run.Status
		parsed, ok := library.ParseStatus(status)
		if ok {
			switch parsed {
			case library.StatusCompleted:
				result.Items = append(result.Items, StopRunResult{ID: id, Outcome: StopRunAlreadyCompleted, PriorStatus: status})
				continue
			case library.StatusFailed:
				result.Items = append(result.Items, StopRunResult{ID: id, Outcome: StopRunAlreadyFailed, PriorStatus: status})
				continue
			}
		}

		updated, err := service.Stop(ctx, []int64{id})
		if err != nil {
			return StopRunsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Items = append(result.Items, StopRunResult{ID: id, Outcome: StopRunUpdated, PriorStatus: status})
			continue
		}
		result.Items = append(result.Items, StopRunResult{ID: id, Outcome: StopRunAlreadyFailed, PriorStatus: status})
	}
	return result, nil
}
