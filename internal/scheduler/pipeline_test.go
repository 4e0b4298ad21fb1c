package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"scrapewatch/internal/dispatch"
	"scrapewatch/internal/price"
	"scrapewatch/internal/scrape"
	"scrapewatch/internal/snapshot"
)

func catalogItem(name, priceStr string) scrape.ItemRecord {
	return scrape.ItemRecord{Fields: []scrape.Field{
		{Name: "name", Value: scrape.String(name)},
		{Name: "price", Value: scrape.String(priceStr)},
	}}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []dispatch.Event
}

func (r *eventRecorder) record(_ context.Context, evt dispatch.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) byKind(kind dispatch.Kind) []dispatch.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatch.Event
	for _, evt := range r.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func testPipeline(t *testing.T) (*Pipeline, *snapshot.Store, *eventRecorder, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	rec := &eventRecorder{}
	d := dispatch.New(nil)
	for _, kind := range []dispatch.Kind{
		dispatch.ChangeDetected,
		dispatch.DiffComputed,
		dispatch.PriceAlertFired,
	} {
		d.Register(kind, rec.record)
	}
	store := snapshot.NewStore(clk)
	monitor := price.NewMonitor(price.Config{}, d, clk, nil)
	return NewPipeline(store, monitor, d, nil), store, rec, clk
}

func processRun(t *testing.T, p *Pipeline, clk *fakeClock, content string, items ...scrape.ItemRecord) pipelineOutcome {
	t.Helper()
	clk.Advance(time.Minute)
	def := JobDef{
		Name:       "shop",
		URL:        "https://example.com/shop",
		SourceKey:  "shop",
		NameField:  "name",
		PriceField: "price",
	}
	result := scrape.ExtractionResult{
		SourceKey: "shop",
		Items:     items,
		FetchedAt: clk.Now(),
	}
	return p.Process(context.Background(), "job-1", def, []byte(content), result)
}

func TestPipelineFirstRunIsBaseline(t *testing.T) {
	t.Parallel()

	p, store, rec, clk := testPipeline(t)
	out := processRun(t, p, clk, "<html>v1</html>", catalogItem("widget", "$10.00"))

	if out.added != 0 || out.removed != 0 || out.unchanged {
		t.Fatalf("first run outcome = %+v, want no changes", out)
	}
	if labels := store.Labels("shop"); len(labels) != 1 || labels[0] != "run-1" {
		t.Fatalf("labels = %v, want [run-1]", labels)
	}
	if evts := rec.byKind(dispatch.ChangeDetected); len(evts) != 0 {
		t.Fatalf("baseline run emitted %d change events", len(evts))
	}
}

func TestPipelineDetectsChangesAndDiffs(t *testing.T) {
	t.Parallel()

	p, store, rec, clk := testPipeline(t)
	processRun(t, p, clk, "<html>v1</html>",
		catalogItem("widget", "$10.00"),
		catalogItem("gadget", "$20.00"),
	)
	out := processRun(t, p, clk, "<html>v2</html>",
		catalogItem("widget", "$10.00"),
		catalogItem("doohickey", "$5.00"),
	)

	if out.added != 1 || out.removed != 1 {
		t.Fatalf("outcome = %+v, want 1 added / 1 removed", out)
	}

	changes := rec.byKind(dispatch.ChangeDetected)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change event, got %d", len(changes))
	}
	cs := changes[0].Payload.(scrape.ChangeSet)
	if len(cs.Added) != 1 || len(cs.Removed) != 1 {
		t.Fatalf("change set = %d added / %d removed", len(cs.Added), len(cs.Removed))
	}
	addedName, _ := cs.Added[0].Get("name")
	if addedName.Display() != "doohickey" {
		t.Fatalf("added item = %q, want doohickey", addedName.Display())
	}

	diffs := rec.byKind(dispatch.DiffComputed)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff event, got %d", len(diffs))
	}
	dr := diffs[0].Payload.(snapshot.DiffResult)
	if dr.FromLabel != "run-1" || dr.ToLabel != "run-2" {
		t.Fatalf("diff labels = %s..%s", dr.FromLabel, dr.ToLabel)
	}
	if !dr.Changed() {
		t.Fatal("diff reported no changed lines")
	}
	if labels := store.Labels("shop"); len(labels) != 2 {
		t.Fatalf("labels = %v, want two snapshots", labels)
	}
}

func TestPipelineSkipsIdenticalContent(t *testing.T) {
	t.Parallel()

	p, store, rec, clk := testPipeline(t)
	processRun(t, p, clk, "<html>v1</html>", catalogItem("widget", "$10.00"))
	out := processRun(t, p, clk, "<html>v1</html>", catalogItem("widget", "$10.00"))

	if !out.unchanged {
		t.Fatal("expected identical content to short-circuit")
	}
	if labels := store.Labels("shop"); len(labels) != 1 {
		t.Fatalf("identical content produced extra snapshots: %v", labels)
	}
	if len(rec.byKind(dispatch.ChangeDetected)) != 0 || len(rec.byKind(dispatch.DiffComputed)) != 0 {
		t.Fatal("identical content emitted events")
	}
}

func TestPipelinePriceAlertFlow(t *testing.T) {
	t.Parallel()

	p, _, rec, clk := testPipeline(t)
	processRun(t, p, clk, "<html>v1</html>", catalogItem("widget", "$100.00"))
	out := processRun(t, p, clk, "<html>v2</html>", catalogItem("widget", "$110.00"))

	if out.alerts != 1 {
		t.Fatalf("alerts = %d, want 1", out.alerts)
	}
	fired := rec.byKind(dispatch.PriceAlertFired)
	if len(fired) != 1 {
		t.Fatalf("expected 1 price alert event, got %d", len(fired))
	}
	alert := fired[0].Payload.(price.Alert)
	if alert.ProductID != "widget" || alert.Direction != "increase" || alert.PctChange != 10.0 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestPipelineReportsParseErrors(t *testing.T) {
	t.Parallel()

	p, _, _, clk := testPipeline(t)
	out := processRun(t, p, clk, "<html>v1</html>",
		catalogItem("widget", "$10.00"),
		catalogItem("gadget", "call for price"),
	)

	if out.parseErrors != 1 {
		t.Fatalf("parse errors = %d, want 1", out.parseErrors)
	}
}

func TestBackoffDelayGrowthAndCap(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	var zero Backoff
	if got := zero.Delay(1); got != time.Minute {
		t.Errorf("zero-value Delay(1) = %v, want %v", got, time.Minute)
	}
}
