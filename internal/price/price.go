// Package price tracks append-only price observations per product and
// source, raising threshold-based alerts from the series.
package price

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"scrapewatch/internal/scrape"
)

// Price is a fixed-point amount in cents. Parsing scraped strings into
// cents avoids float drift in exports and comparisons.
type Price int64

// Float returns the price in major units.
func (p Price) Float() float64 { return float64(p) / 100 }

// String renders the price with two decimal places.
func (p Price) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// FromFloat converts major units to cents, rounding half away from zero.
func FromFloat(f float64) Price {
	return Price(math.Round(f * 100))
}

// ParsePrice normalizes a scraped price string: currency symbols and
// thousands separators are stripped before fixed-point parsing. Returns a
// scrape.ParseError for values with no usable number.
func ParsePrice(raw string) (Price, error) {
	cleaned := normalizePriceString(raw)
	if cleaned == "" {
		return 0, &scrape.ParseError{Field: "price", Raw: raw}
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, &scrape.ParseError{Field: "price", Raw: raw}
	}
	return FromFloat(f), nil
}

func normalizePriceString(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == ',':
			// thousands separator
		default:
			// currency symbols and other noise
		}
	}
	return b.String()
}

// pctChange returns the percent change from prev to next.
func pctChange(prev, next Price) float64 {
	return (float64(next) - float64(prev)) / float64(prev) * 100
}
