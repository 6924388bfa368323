package api

import (
	"context"
	"errors"
	"testing"
)

type removeStub struct {
	present map[int64]bool
	err     error
}

func (s *removeStub) Remove(_ context.Context, ids []int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	var removed int64
	for _, id := range ids {
		if s.present[id] {
			delete(s.present, id)
			removed++
		}
	}
	return removed, nil
}

func TestRemoveRunsByID(t *testing.T) {
	stub := &removeStub{present: map[int64]bool{1: true, 3: true}}

	result, err := RemoveRunsByID(context.Background(), stub, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if result.RemovedCount != 2 {
		t.Fatalf("expected 2 removals, got %d", result.RemovedCount)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Items[0].Outcome != RemoveRunRemoved {
		t.Fatalf("expected run 1 removed, got %q", result.Items[0].Outcome)
	}
	if result.Items[1].Outcome != RemoveRunNotFound {
		t.Fatalf("expected run 2 not_found, got %q", result.Items[1].Outcome)
	}
	if result.Items[2].Outcome != RemoveRunRemoved {
		t.Fatalf("expected run 3 removed, got %q", result.Items[2].Outcome)
	}
}

func TestRemoveRunsByIDError(t *testing.T) {
	sentinel := errors.New("store unavailable")
	stub := &removeStub{err: sentinel}

	if _, err := RemoveRunsByID(context.Background(), stub, []int64{1}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}
