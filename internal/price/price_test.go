package price

import (
	"errors"
	"strings"
	"testing"

	"scrapewatch/internal/scrape"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Price
	}{
		{name: "plain", raw: "19.99", want: 1999},
		{name: "dollar sign", raw: "$1,234.56", want: 123456},
		{name: "pound sign", raw: "£51.77", want: 5177},
		{name: "euro suffix", raw: "42,00 €", want: 420000},
		{name: "whitespace", raw: "  7.5 ", want: 750},
		{name: "integer", raw: "100", want: 10000},
		{name: "negative", raw: "-3.25", want: -325},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePrice(tt.raw)
			if err != nil {
				t.Fatalf("ParsePrice(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParsePrice(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParsePriceMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "call for price", "N/A", "..", "-"} {
		if _, err := ParsePrice(raw); err == nil {
			t.Fatalf("ParsePrice(%q) expected error", raw)
		} else {
			var pe *scrape.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParsePrice(%q) expected ParseError, got %T", raw, err)
			}
		}
	}
}

func TestPriceString(t *testing.T) {
	t.Parallel()

	if got := Price(123456).String(); got != "1234.56" {
		t.Fatalf("String() = %q, want 1234.56", got)
	}
	if got := Price(5).String(); got != "0.05" {
		t.Fatalf("String() = %q, want 0.05", got)
	}
	if got := Price(-325).String(); got != "-3.25" {
		t.Fatalf("String() = %q, want -3.25", got)
	}
}

func TestExportCSVOrderedAndIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{}, nil, nil, nil)
	mustTrack(t, m, "widget", "shop-b", 9900, ts(0))
	mustTrack(t, m, "widget", "shop-a", 10000, ts(1))
	mustTrack(t, m, "gadget", "shop-a", 500, ts(2))
	mustTrack(t, m, "widget", "shop-a", 10100, ts(3))

	first, err := m.ExportCSV()
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(first, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header + 4 rows, got %d lines", len(lines))
	}
	if lines[0] != "product_id,source_id,price,timestamp" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "gadget,shop-a,5.00,") {
		t.Fatalf("expected gadget row first, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "widget,shop-a,100.00,") {
		t.Fatalf("expected widget/shop-a rows before shop-b, got %q", lines[2])
	}
	if !strings.HasPrefix(lines[4], "widget,shop-b,99.00,") {
		t.Fatalf("expected widget/shop-b row last, got %q", lines[4])
	}
	if !strings.Contains(lines[1], "2026-03-01T12:00:02Z") {
		t.Fatalf("expected RFC 3339 timestamp, got %q", lines[1])
	}

	second, err := m.ExportCSV()
	if err != nil {
		t.Fatalf("ExportCSV() repeat error = %v", err)
	}
	if first != second {
		t.Fatal("expected repeated export with no new observations to be byte-identical")
	}
}

func TestExportCSVEmpty(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{}, nil, nil, nil)
	out, err := m.ExportCSV()
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if out != "product_id,source_id,price,timestamp\n" {
		t.Fatalf("unexpected empty export: %q", out)
	}
}

func TestProducts(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{}, nil, nil, nil)
	mustTrack(t, m, "b-widget", "shop", 100, ts(0))
	mustTrack(t, m, "a-gadget", "shop", 200, ts(1))

	got := m.Products()
	if len(got) != 2 || got[0] != "a-gadget" || got[1] != "b-widget" {
		t.Fatalf("Products() = %v, want sorted [a-gadget b-widget]", got)
	}
}

func TestFromFloatRounding(t *testing.T) {
	t.Parallel()

	if got := FromFloat(12.34); got != 1234 {
		t.Fatalf("FromFloat(12.34) = %d, want 1234", got)
	}
	if got := FromFloat(100); got != 10000 {
		t.Fatalf("FromFloat(100) = %d, want 10000", got)
	}
}
