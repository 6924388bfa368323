package api

import (
	"testing"
	"time"
)

func TestSortRunsNewestFirst(t *testing.T) {
	items := []RunItem{
		{ID: 1, CreatedAt: "2026-03-14T09:00:00.000Z"},
		{ID: 2, CreatedAt: "2026-03-14T11:00:00.000Z"},
		{ID: 3, CreatedAt: "2026-03-14T10:00:00.000Z"},
	}

	sorted := SortRunsNewestFirst(items)
	if len(sorted) != 3 {
		t.Fatalf("expected 3 items, got %d", len(sorted))
	}
	if sorted[0].ID != 2 || sorted[1].ID != 3 || sorted[2].ID != 1 {
		t.Fatalf("unexpected order: %+v", sorted)
	}
	if items[0].ID != 1 {
		t.Fatal("expected input slice to remain unmodified")
	}
}

func TestSortRunsNewestFirstBreaksTiesByID(t *testing.T) {
	items := []RunItem{
		{ID: 5, CreatedAt: "2026-03-14T09:00:00.000Z"},
		{ID: 9, CreatedAt: "2026-03-14T09:00:00.000Z"},
		{ID: 7, CreatedAt: "2026-03-14T09:00:00.000Z"},
	}

	sorted := SortRunsNewestFirst(items)
	if sorted[0].ID != 9 || sorted[1].ID != 7 || sorted[2].ID != 5 {
		t.Fatalf("unexpected tie order: %+v", sorted)
	}
}

func TestSortRunsNewestFirstEmpty(t *testing.T) {
	if sorted := SortRunsNewestFirst(nil); sorted != nil {
		t.Fatalf("expected nil for empty input, got %+v", sorted)
	}
}

func TestParseQueueTime(t *testing.T) {
	parsed := ParseQueueTime("2026-03-14T09:26:53.000Z")
	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Fatalf("expected %v, got %v", want, parsed)
	}

	if !ParseQueueTime("").IsZero() {
		t.Fatal("expected zero time for empty string")
	}
	if !ParseQueueTime("not-a-time").IsZero() {
		t.Fatal("expected zero time for malformed string")
	}
}
