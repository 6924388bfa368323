package stage

import (
	"context"

	"soundloom/internal/library"
	"soundloom/internal/services"
)

// TextForRun loads the text a run assembles.
// On a missing row it returns a services.ErrValidation suitable for stage Execute methods.
func TextForRun(ctx context.Context, store *library.Store, run *library.Run) (*library.Text, error) {
	text, err := store.GetText(ctx, run.TextID)
	if err != nil {
		return nil, services.Wrap(
			services.ErrTransient, "stage", "load text",
			"Could not read the text for this run", err)
	}
	if text == nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "load text",
			"Run references a text that no longer exists; re-ingest it", nil)
	}
	return text, nil
}
