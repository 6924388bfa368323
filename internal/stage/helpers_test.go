package stage

import (
	"context"
	"errors"
	"testing"

	"soundloom/internal/library"
	"soundloom/internal/services"
	"soundloom/internal/testsupport"
)

func TestTextForRun_Found(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	text := testsupport.NewText(t, store, "Found", "body words here")
	run := testsupport.NewRun(t, store, text.ID)

	got, err := TextForRun(context.Background(), store, run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != text.ID {
		t.Fatalf("unexpected text id: %d", got.ID)
	}
}

func TestTextForRun_Missing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	run := &library.Run{ID: 1, TextID: 9999}
	_, err := TextForRun(context.Background(), store, run)
	if err == nil {
		t.Fatal("expected error for missing text")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
