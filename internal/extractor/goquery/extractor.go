// Package goqueryextractor implements scrape.Extractor on top of goquery
// CSS selection.
package goqueryextractor

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scrapewatch/internal/scrape"
)

// Extractor turns fetched HTML into ordered item records driven by a
// SelectorSpec.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses content and applies the selector spec. Field order inside
// each record follows the spec, and item order follows the document, so the
// result is deterministic for identical input. An item yielding no fields at
// all is dropped; a page matching zero items is a valid empty result.
func (e *Extractor) Extract(content []byte, spec scrape.SelectorSpec, sourceKey string, fetchedAt time.Time) (scrape.ExtractionResult, error) {
	if spec.ItemSelector == "" {
		return scrape.ExtractionResult{}, &scrape.ExtractionError{
			SourceKey: sourceKey,
			Err:       fmt.Errorf("item selector is required"),
		}
	}
	if len(spec.Fields) == 0 {
		return scrape.ExtractionResult{}, &scrape.ExtractionError{
			SourceKey: sourceKey,
			Err:       fmt.Errorf("at least one field selector is required"),
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return scrape.ExtractionResult{}, &scrape.ExtractionError{
			SourceKey: sourceKey,
			Err:       fmt.Errorf("parse html: %w", err),
		}
	}

	result := scrape.ExtractionResult{
		SourceKey: sourceKey,
		FetchedAt: fetchedAt,
	}
	doc.Find(spec.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		record := extractItem(item, spec.Fields)
		if len(record.Fields) > 0 {
			result.Items = append(result.Items, record)
		}
	})
	return result, nil
}

func extractItem(item *goquery.Selection, fields []scrape.FieldSelector) scrape.ItemRecord {
	var record scrape.ItemRecord
	for _, fs := range fields {
		raw, ok := rawFieldValue(item, fs)
		if !ok {
			continue
		}
		record.Fields = append(record.Fields, scrape.Field{
			Name:  fs.Name,
			Value: convertValue(raw, fs.Kind),
		})
	}
	return record
}

// rawFieldValue resolves one field selector against an item element. An
// empty selector reads the item element itself.
func rawFieldValue(item *goquery.Selection, fs scrape.FieldSelector) (string, bool) {
	sel := item
	if fs.Selector != "" {
		sel = item.Find(fs.Selector).First()
		if sel.Length() == 0 {
			return "", false
		}
	}
	if fs.Attr != "" {
		raw, exists := sel.Attr(fs.Attr)
		if !exists {
			return "", false
		}
		return strings.TrimSpace(raw), true
	}
	raw := strings.TrimSpace(sel.Text())
	if raw == "" {
		return "", false
	}
	return raw, true
}

// convertValue coerces raw text to the declared kind. Values that fail to
// parse stay strings so no extracted data is lost.
func convertValue(raw, kind string) scrape.FieldValue {
	switch kind {
	case "number":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return scrape.Number(f)
		}
	case "bool":
		if b, err := strconv.ParseBool(raw); err == nil {
			return scrape.Bool(b)
		}
	case "time":
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return scrape.Time(t)
		}
	}
	return scrape.String(raw)
}
