package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestDispatchRegistrationOrder(t *testing.T) {
	t.Parallel()

	d := New(nil)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		d.Register(ChangeDetected, func(_ context.Context, _ Event) error {
			order = append(order, i)
			return nil
		})
	}

	d.Dispatch(context.Background(), Event{Kind: ChangeDetected})
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected handlers in registration order, got %v", order)
	}
}

func TestDispatchIsolatesFailingHandler(t *testing.T) {
	t.Parallel()

	d := New(nil)
	var reached bool
	d.Register(JobFailed, func(_ context.Context, _ Event) error {
		return errors.New("handler exploded")
	})
	d.Register(JobFailed, func(_ context.Context, _ Event) error {
		panic("handler panicked")
	})
	d.Register(JobFailed, func(_ context.Context, _ Event) error {
		reached = true
		return nil
	})

	d.Dispatch(context.Background(), Event{Kind: JobFailed})
	if !reached {
		t.Fatal("expected dispatch to continue past failing handlers")
	}
}

func TestDispatchKindScoped(t *testing.T) {
	t.Parallel()

	d := New(nil)
	var fired Kind
	d.Register(PriceAlertFired, func(_ context.Context, evt Event) error {
		fired = evt.Kind
		return nil
	})

	d.Dispatch(context.Background(), Event{Kind: DiffComputed})
	if fired != "" {
		t.Fatal("expected no handler for DiffComputed")
	}
	d.Dispatch(context.Background(), Event{Kind: PriceAlertFired})
	if fired != PriceAlertFired {
		t.Fatalf("expected PriceAlertFired handler, got %q", fired)
	}
}

func TestDispatchNilSafe(t *testing.T) {
	t.Parallel()

	var d *Dispatcher
	d.Dispatch(context.Background(), Event{Kind: JobSucceeded})
}
