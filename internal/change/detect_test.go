package change

import (
	"testing"

	"scrapewatch/internal/scrape"
)

func named(name string) scrape.ItemRecord {
	return scrape.ItemRecord{Fields: []scrape.Field{
		{Name: "name", Value: scrape.String(name)},
	}}
}

func TestDetectAddedAndRemoved(t *testing.T) {
	t.Parallel()

	previous := DigestItems([]scrape.ItemRecord{named("A"), named("B")})
	current := DigestItems([]scrape.ItemRecord{named("B"), named("C")})

	cs := Detect(previous, current)
	if len(cs.Added) != 1 || len(cs.Removed) != 1 {
		t.Fatalf("expected 1 added and 1 removed, got +%d -%d", len(cs.Added), len(cs.Removed))
	}
	if v, _ := cs.Added[0].Get("name"); v.Str != "C" {
		t.Fatalf("expected C added, got %q", v.Str)
	}
	if v, _ := cs.Removed[0].Get("name"); v.Str != "A" {
		t.Fatalf("expected A removed, got %q", v.Str)
	}
}

func TestDetectNoChanges(t *testing.T) {
	t.Parallel()

	set := DigestItems([]scrape.ItemRecord{named("A"), named("B")})
	cs := Detect(set, set)
	if !cs.Empty() {
		t.Fatalf("expected empty change set, got %+v", cs)
	}
}

func TestDetectValueEditIsRemovePlusAdd(t *testing.T) {
	t.Parallel()

	withPrice := func(name string, price float64) scrape.ItemRecord {
		return scrape.ItemRecord{Fields: []scrape.Field{
			{Name: "name", Value: scrape.String(name)},
			{Name: "price", Value: scrape.Number(price)},
		}}
	}
	previous := DigestItems([]scrape.ItemRecord{withPrice("widget", 10)})
	current := DigestItems([]scrape.ItemRecord{withPrice("widget", 12)})

	cs := Detect(previous, current)
	if len(cs.Added) != 1 || len(cs.Removed) != 1 {
		t.Fatalf("expected value edit to report remove+add, got +%d -%d", len(cs.Added), len(cs.Removed))
	}
}
