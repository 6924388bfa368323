package api

import "context"

// QueueRemoveService captures queue operations needed by per-run remove workflows.
type QueueRemoveService interface {
	Remove(ctx context.Context, ids []int64) (int64, error)
}

type RemoveRunOutcome string

const (
	RemoveRunRemoved  RemoveRunOutcome = "removed"
	RemoveRunNotFound RemoveRunOutcome = "not_found"
)

type RemoveRunResult struct {
	ID      int64            `json:"id"`
	Outcome RemoveRunOutcome `json:"outcome"`
}

type RemoveRunsResult struct {
	RemovedCount int64             `json:"removedCount"`
	Items        []RemoveRunResult `json:"items"`
}

// RemoveRunsByID removes runs one-by-one so each ID can report removed/not_found.
func RemoveRunsByID(ctx context.Context, service QueueRemoveService, ids []int64) (RemoveRunsResult, error) {
	result := RemoveRunsResult{Items: make([]RemoveRunResult, 0, len(ids))}
	for _, id := range ids {
		removed, err := service.Remove(ctx, []int64{id})
		if err != nil {
			return RemoveRunsResult{}, err
		}
		if removed > 0 {
			result.RemovedCount += removed
			result.Items = append(result.Items, RemoveRunResult{ID: id, Outcome: RemoveRunRemoved})
			continue
		}
		result.Items = append(result.Items, RemoveRunResult{ID: id, Outcome: RemoveRunNotFound})
	}
	return result, nil
}
