package testsupport

import (
	"context"
	"testing"

	"soundloom/internal/config"
	"soundloom/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewText creates a text for tests using the provided store.
func NewText(t testing.TB, store *library.Store, title, body string) *library.Text {
	t.Helper()

	text, err := store.CreateText(context.Background(), title, body)
	if err != nil {
		t.Fatalf("store.CreateText: %v", err)
	}
	return text
}

// NewRun enqueues a pending run for the text using the provided store.
func NewRun(t testing.TB, store *library.Store, textID int64) *library.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), textID)
	if err != nil {
		t.Fatalf("store.NewRun: %v", err)
	}
	return run
}

// SeedSegments stores n tiny speech segments on the text, sequenced from 0.
func SeedSegments(t testing.TB, store *library.Store, textID int64, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		payload := []byte{0x49, 0x44, 0x33, byte(i)}
		if _, err := store.AddSpeechSegment(context.Background(), textID, i, payload, 1.5, 0); err != nil {
			t.Fatalf("store.AddSpeechSegment: %v", err)
		}
	}
}
