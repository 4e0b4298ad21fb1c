package scrape

import (
	"context"
	"time"
)

// Fetcher retrieves raw content for a URL, bounded by the request timeout.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw content plus a selector spec into ordered item records.
type Extractor interface {
	Extract(content []byte, spec SelectorSpec, sourceKey string, fetchedAt time.Time) (ExtractionResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
