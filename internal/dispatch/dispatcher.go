// Package dispatch fans job, change, diff, and alert events out to
// registered handlers, isolating handler failures from the scheduler.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind denotes the type of event being dispatched.
type Kind string

// Supported event kinds.
const (
	JobSucceeded    Kind = "JOB_SUCCEEDED"
	JobFailed       Kind = "JOB_FAILED"
	ChangeDetected  Kind = "CHANGE_DETECTED"
	DiffComputed    Kind = "DIFF_COMPUTED"
	PriceAlertFired Kind = "PRICE_ALERT_FIRED"
)

// Event carries one notification. Payload holds the kind-specific value
// (scrape.ChangeSet, snapshot.DiffResult, price.Alert, scheduler result).
type Event struct {
	Kind      Kind
	JobID     string
	SourceKey string
	TS        time.Time
	Payload   any
}

// Handler consumes one event. A returned error is logged and isolated; it
// never aborts delivery to the remaining handlers.
type Handler func(ctx context.Context, evt Event) error

// Dispatcher invokes handlers synchronously in registration order.
// Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   *zap.Logger
}

// New constructs a Dispatcher. A nil logger falls back to zap.NewNop.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// Register appends a handler for an event kind. Handlers fire in
// registration order.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Dispatch delivers the event to every handler registered for its kind.
// Handler errors and panics are logged; dispatch always continues and
// never propagates a failure to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	if d == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[evt.Kind]...)
	d.mu.RUnlock()

	for i, h := range handlers {
		if err := d.invoke(ctx, h, evt); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("kind", string(evt.Kind)),
				zap.String("job_id", evt.JobID),
				zap.Int("handler_index", i),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}
