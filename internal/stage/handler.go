package stage

import (
	"context"

	"soundloom/internal/library"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *library.Run) error
	Execute(context.Context, *library.Run) error
	HealthCheck(context.Context) Health
}
