package snapshot

import (
	"errors"
	"strings"
	"testing"

	"scrapewatch/internal/scrape"
)

func TestSaveUpsertKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "run-1", "first")
	store.Save("shop", "run-2", "second")
	store.Save("shop", "run-1", "first-replaced")

	labels := store.Labels("shop")
	if len(labels) != 2 || labels[0] != "run-1" || labels[1] != "run-2" {
		t.Fatalf("unexpected label order: %v", labels)
	}
	snap, err := store.Get("shop", "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Content != "first-replaced" {
		t.Fatalf("expected upsert to replace content, got %q", snap.Content)
	}
}

func TestCompareMissingLabel(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "run-1", "content")

	if _, err := store.Compare("shop", "run-1", "missing"); !errors.Is(err, scrape.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Compare("nosuch", "a", "b"); !errors.Is(err, scrape.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}
}

func TestCompareCountsAndSymmetry(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "old", "alpha\nbravo\ncharlie\n")
	store.Save("shop", "new", "alpha\ndelta\ncharlie\necho\n")

	forward, err := store.Compare("shop", "old", "new")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if forward.AddedLines != 2 || forward.RemovedLines != 1 {
		t.Fatalf("forward diff = +%d -%d, want +2 -1", forward.AddedLines, forward.RemovedLines)
	}
	if !strings.Contains(forward.Unified, "+delta") || !strings.Contains(forward.Unified, "-bravo") {
		t.Fatalf("unexpected unified diff:\n%s", forward.Unified)
	}

	backward, err := store.Compare("shop", "new", "old")
	if err != nil {
		t.Fatalf("Compare() reverse error = %v", err)
	}
	if backward.AddedLines != forward.RemovedLines || backward.RemovedLines != forward.AddedLines {
		t.Fatalf("expected swapped counts, forward=+%d -%d backward=+%d -%d",
			forward.AddedLines, forward.RemovedLines, backward.AddedLines, backward.RemovedLines)
	}
	total := forward.AddedLines + forward.RemovedLines
	if got := backward.AddedLines + backward.RemovedLines; got != total {
		t.Fatalf("total changed lines differ: forward=%d backward=%d", total, got)
	}
}

func TestCompareIdenticalContent(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "a", "same\ncontent\n")
	store.Save("shop", "b", "same\ncontent\n")

	dr, err := store.Compare("shop", "a", "b")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if dr.Changed() {
		t.Fatalf("expected no changes, got +%d -%d", dr.AddedLines, dr.RemovedLines)
	}
}

func TestCompareDeterministic(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "a", "one\ntwo\n")
	store.Save("shop", "b", "one\nthree\n")

	first, err := store.Compare("shop", "a", "b")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	second, err := store.Compare("shop", "a", "b")
	if err != nil {
		t.Fatalf("Compare() repeat error = %v", err)
	}
	if first.Unified != second.Unified {
		t.Fatal("expected identical inputs to produce identical diff text")
	}
}

func TestHistorySequentialPairs(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.Save("shop", "r1", "a\n")
	store.Save("shop", "r2", "b\n")
	store.Save("shop", "r3", "c\n")

	history, err := store.History("shop")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 sequential diffs, got %d", len(history))
	}
	if history[0].FromLabel != "r1" || history[0].ToLabel != "r2" {
		t.Fatalf("unexpected first pair: %s..%s", history[0].FromLabel, history[0].ToLabel)
	}
	if history[1].FromLabel != "r2" || history[1].ToLabel != "r3" {
		t.Fatalf("unexpected second pair: %s..%s", history[1].FromLabel, history[1].ToLabel)
	}

	if _, err := store.History("nosuch"); !errors.Is(err, scrape.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}
}

func TestLatestLabel(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	if got := store.LatestLabel("shop"); got != "" {
		t.Fatalf("expected empty label for unknown source, got %q", got)
	}
	store.Save("shop", "r1", "a")
	store.Save("shop", "r2", "b")
	if got := store.LatestLabel("shop"); got != "r2" {
		t.Fatalf("LatestLabel() = %q, want r2", got)
	}
}
