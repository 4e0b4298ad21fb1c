package scrape

import (
	"net/http"
	"strconv"
	"time"
)

// Kind discriminates the variants a FieldValue can hold.
type Kind uint8

// Supported field value kinds.
const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindTime
)

// FieldValue is a tagged value variant. Extracted fields are never open
// dynamic objects; each value carries exactly one of the four kinds.
type FieldValue struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

// String builds a string-kind value.
func String(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }

// Number builds a number-kind value.
func Number(f float64) FieldValue { return FieldValue{Kind: KindNumber, Num: f} }

// Bool builds a bool-kind value.
func Bool(b bool) FieldValue { return FieldValue{Kind: KindBool, Bool: b} }

// Time builds a time-kind value.
func Time(t time.Time) FieldValue { return FieldValue{Kind: KindTime, Time: t} }

// Canonical renders the value as a type-tagged string. The tag prefix keeps
// the string "1" and the number 1 from canonicalizing identically.
func (v FieldValue) Canonical() string {
	switch v.Kind {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.Bool)
	case KindTime:
		return "t:" + v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return "s:" + v.Str
	}
}

// Display renders the value for humans (JSON payloads, logs).
func (v FieldValue) Display() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return v.Str
	}
}

// Field is a single named value inside an ItemRecord.
type Field struct {
	Name  string
	Value FieldValue
}

// ItemRecord is an ordered sequence of named values extracted from one item
// element. Order follows the selector spec, not the page.
type ItemRecord struct {
	Fields []Field
}

// Get returns the value for a field name and whether it exists.
func (r ItemRecord) Get(name string) (FieldValue, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return FieldValue{}, false
}

// ExtractionResult is the ordered output of one fetch+extract cycle.
// It is immutable once produced.
type ExtractionResult struct {
	SourceKey string
	Items     []ItemRecord
	FetchedAt time.Time
}

// ChangeSet holds the items that appeared and disappeared between two
// extraction runs. Value edits surface as a removal plus an addition.
type ChangeSet struct {
	Added   []ItemRecord
	Removed []ItemRecord
}

// Empty reports whether the change set carries no changes.
func (c ChangeSet) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// FieldSelector maps one output field to a CSS selector within an item
// element. Attr, when set, reads an attribute instead of the text content.
type FieldSelector struct {
	Name     string `mapstructure:"name" json:"name"`
	Selector string `mapstructure:"selector" json:"selector"`
	Attr     string `mapstructure:"attr" json:"attr,omitempty"`
	Kind     string `mapstructure:"kind" json:"kind,omitempty"` // string|number|bool
}

// SelectorSpec describes how to turn raw content into item records.
type SelectorSpec struct {
	ItemSelector string          `mapstructure:"item_selector" json:"item_selector"`
	Fields       []FieldSelector `mapstructure:"fields" json:"fields"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
