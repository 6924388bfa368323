package api

import (
	"context"

	"soundloom/internal/library"
)

// RunReader abstracts library persistence interactions needed for API queries.
type RunReader interface {
	ListRuns(ctx context.Context, statuses ...library.Status) ([]*library.Run, error)
	Stats(ctx context.Context) (map[library.Status]int, error)
	GetRun(ctx context.Context, id int64) (*library.Run, error)
}

// QueueService exposes read-only run queue operations returning API DTOs.
type QueueService struct {
	store RunReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store RunReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns runs filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...library.Status) ([]RunItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRuns(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs), nil
}

// Stats returns run counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single run.
func (s *QueueService) Describe(ctx context.Context, id int64) (*RunItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	dto := FromRun(run)
	return &dto, nil
}
