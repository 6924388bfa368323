package alignment_test

import (
	"errors"
	"testing"

	"soundloom/internal/alignment"
	"soundloom/internal/library"
)

func sequence(starts ...float64) []library.WordTimestamp {
	out := make([]library.WordTimestamp, len(starts))
	for i, s := range starts {
		out[i] = library.WordTimestamp{Word: "w", Start: s, End: s + 0.1}
	}
	return out
}

func TestResolveInRange(t *testing.T) {
	timestamps := sequence(0.0, 0.5, 1.2, 2.0)
	for position, want := range []float64{0.0, 0.5, 1.2, 2.0} {
		start, clamped, err := alignment.Resolve(position, timestamps)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", position, err)
		}
		if clamped {
			t.Fatalf("Resolve(%d) unexpectedly clamped", position)
		}
		if start != want {
			t.Fatalf("Resolve(%d) = %v, want %v", position, start, want)
		}
	}
}

func TestResolveMonotonic(t *testing.T) {
	timestamps := sequence(0.0, 0.4, 0.9, 1.5, 2.2)
	prev := -1.0
	for position := 0; position < len(timestamps); position++ {
		start, _, err := alignment.Resolve(position, timestamps)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", position, err)
		}
		if start < prev {
			t.Fatalf("Resolve(%d) = %v went backwards from %v", position, start, prev)
		}
		prev = start
	}
}

func TestResolveClampsBeyondEnd(t *testing.T) {
	timestamps := sequence(0.0, 0.5, 1.2)
	start, clamped, err := alignment.Resolve(10, timestamps)
	if err != nil {
		t.Fatalf("Resolve beyond end failed: %v", err)
	}
	if !clamped {
		t.Fatal("expected clamp flag for out-of-range position")
	}
	if start != 1.2 {
		t.Fatalf("expected final start 1.2, got %v", start)
	}
}

func TestResolveEmptySequence(t *testing.T) {
	_, _, err := alignment.Resolve(0, nil)
	if !errors.Is(err, alignment.ErrNoTimestamps) {
		t.Fatalf("expected ErrNoTimestamps, got %v", err)
	}
}

func TestResolveNegativePosition(t *testing.T) {
	_, _, err := alignment.Resolve(-1, sequence(0.0, 0.5))
	if !errors.Is(err, alignment.ErrNoTimestamps) {
		t.Fatalf("expected ErrNoTimestamps for negative position, got %v", err)
	}
}
