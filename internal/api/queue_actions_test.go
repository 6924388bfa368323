package api

import (
	"context"
	"fmt"
	"testing"

	"soundloom/internal/library"
)

type runActionStub struct {
	items       map[int64]*RunItem
	retriedIDs  []int64
	stoppedIDs  []int64
	retryResult int64
	stopResult  int64
}

func (s *runActionStub) Describe(_ context.Context, id int64) (*RunItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *runActionStub) Retry(_ context.Context, ids []int64) (int64, error) {
	if len(ids) != 1 {
		return 0, fmt.Errorf("expected single id, got %d", len(ids))
	}
	s.retriedIDs = append(s.retriedIDs, ids[0])
	return s.retryResult, nil
}

func (s *runActionStub) Stop(_ context.Context, ids []int64) (int64, error) {
	if len(ids) != 1 {
		return 0, fmt.Errorf("expected single id, got %d", len(ids))
	}
	s.stoppedIDs = append(s.stoppedIDs, ids[0])
	return s.stopResult, nil
}

func TestRetryFailedRunsByID(t *testing.T) {
	stub := &runActionStub{
		items: map[int64]*RunItem{
			1: {ID: 1, Status: string(library.StatusFailed)},
			2: {ID: 2, Status: string(library.StatusPending)},
		},
		retryResult: 1,
	}

	result, err := RetryFailedRunsByID(context.Background(), stub, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("expected 1 update, got %d", result.UpdatedCount)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Items[0].Outcome != RetryRunUpdated {
		t.Fatalf("expected run 1 retried, got %q", result.Items[0].Outcome)
	}
	if result.Items[1].Outcome != RetryRunNotFailed {
		t.Fatalf("expected run 2 not_failed, got %q", result.Items[1].Outcome)
	}
	if result.Items[2].Outcome != RetryRunNotFound {
		t.Fatalf("expected run 3 not_found, got %q", result.Items[2].Outcome)
	}
	if len(stub.retriedIDs) != 1 || stub.retriedIDs[0] != 1 {
		t.Fatalf("expected retry for run 1 only, got %v", stub.retriedIDs)
	}
}

func TestStopRunsByIDSkipsTerminal(t *testing.T) {
	stub := &runActionStub{
		items: map[int64]*RunItem{
			1: {ID: 1, Status: string(library.StatusProducing)},
			2: {ID: 2, Status: string(library.StatusCompleted)},
			3: {ID: 3, Status: string(library.StatusFailed)},
			4: {ID: 4, Status: string(library.StatusReview)},
		},
		stopResult: 1,
	}

	result, err := StopRunsByID(context.Background(), stub, []int64{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Fatalf("expected 2 updates, got %d", result.UpdatedCount)
	}
	if len(result.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(result.Items))
	}

	byID := make(map[int64]StopRunResult, len(result.Items))
	for _, item := range result.Items {
		byID[item.ID] = item
	}
	if byID[1].Outcome != StopRunUpdated || byID[1].PriorStatus != string(library.StatusProducing) {
		t.Fatalf("unexpected result for run 1: %+v", byID[1])
	}
	if byID[2].Outcome != StopRunAlreadyCompleted {
		t.Fatalf("unexpected result for run 2: %+v", byID[2])
	}
	if byID[3].Outcome != StopRunAlreadyFailed {
		t.Fatalf("unexpected result for run 3: %+v", byID[3])
	}
	if byID[4].Outcome != StopRunUpdated {
		t.Fatalf("expected review run to be stoppable, got %+v", byID[4])
	}
	if byID[5].Outcome != StopRunNotFound {
		t.Fatalf("unexpected result for run 5: %+v", byID[5])
	}
	if len(stub.stoppedIDs) != 2 {
		t.Fatalf("expected stop calls for 2 runs, got %v", stub.stoppedIDs)
	}
}
