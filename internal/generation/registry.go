package generation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"soundloom/internal/logging"
)

// Outcome classifies how a tracked generation job concluded for a waiter.
type Outcome int

const (
	// OutcomeSuccess means the callback confirmed the artifact is stored.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the provider reported a failed or canceled
	// prediction, or storing the finished artifact failed.
	OutcomeFailure
	// OutcomeTimeout means no signal arrived before the waiter's deadline.
	// The remote job may still finish later; its artifact lands in the
	// store even though nobody is waiting.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// WaitResult reports how one Await ended.
type WaitResult struct {
	Outcome Outcome
	Detail  string
	Elapsed time.Duration
}

// Succeeded reports whether the awaited job finished with a stored artifact.
func (r WaitResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Registry tracks keyed completion events for in-flight generation jobs.
// Register before dispatching the remote job; a callback that lands between
// the create call and the wait is recorded on the event and observed by
// Await. Entries are removed when the last waiter leaves, so a later signal
// under the same key finds nothing and is dropped.
type Registry struct {
	mu     sync.Mutex
	events map[string]*completionEvent
	logger *slog.Logger
}

type completionEvent struct {
	done    chan struct{}
	outcome Outcome
	detail  string
	waiters int
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		events: make(map[string]*completionEvent),
		logger: logging.NewComponentLogger(logger, "completions"),
	}
}

// Handle is one waiter's registration against a completion event.
type Handle struct {
	registry *Registry
	key      string
	event    *completionEvent
	released bool
}

// Register creates or joins the completion event for key and returns the
// waiter's handle. Every handle must be resolved by Await or Release.
func (r *Registry) Register(key string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[key]
	if !ok {
		event = &completionEvent{done: make(chan struct{})}
		r.events[key] = event
	}
	event.waiters++
	return &Handle{registry: r, key: key, event: event}
}

// Notify signals the completion event for key. Each tracked job is signalled
// at most once; later calls and calls with no registered waiter are dropped,
// since stored artifacts remain authoritative either way.
func (r *Registry) Notify(key string, outcome Outcome, detail string) {
	r.mu.Lock()
	event, ok := r.events[key]
	if !ok {
		r.mu.Unlock()
		r.logger.Info("completion signal without waiter",
			logging.String("key", key),
			logging.String("outcome", outcome.String()),
		)
		return
	}
	select {
	case <-event.done:
		r.mu.Unlock()
		r.logger.Warn("duplicate completion signal dropped",
			logging.String("key", key),
			logging.String("outcome", outcome.String()),
		)
		return
	default:
	}
	event.outcome = outcome
	event.detail = detail
	close(event.done)
	r.mu.Unlock()

	r.logger.Info("completion signalled",
		logging.String("key", key),
		logging.String("outcome", outcome.String()),
	)
}

// Pending returns the number of keys with registered waiters.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Await blocks until the event is signalled, the timeout lapses, or ctx ends.
// The handle is released on return regardless of outcome. A timeout is
// reported as OutcomeTimeout with a nil error; only context cancellation
// produces an error.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) (WaitResult, error) {
	start := time.Now()
	defer h.release()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.event.done:
		return WaitResult{Outcome: h.event.outcome, Detail: h.event.detail, Elapsed: time.Since(start)}, nil
	case <-expired:
		return WaitResult{Outcome: OutcomeTimeout, Elapsed: time.Since(start)}, nil
	case <-ctx.Done():
		return WaitResult{Outcome: OutcomeTimeout, Elapsed: time.Since(start)}, ctx.Err()
	}
}

// Release drops the registration without waiting. Await releases on its own;
// Release covers dispatch failures where the wait never starts.
func (h *Handle) Release() {
	h.release()
}

func (h *Handle) release() {
	if h.released {
		return
	}
	h.released = true

	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	h.event.waiters--
	if h.event.waiters <= 0 {
		delete(h.registry.events, h.key)
	}
}
