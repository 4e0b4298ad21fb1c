// Package snapshot holds labeled raw-content snapshots per source key and
// computes unified line diffs between them.
package snapshot

import (
	"fmt"
	"sync"
	"time"

	"scrapewatch/internal/scrape"
)

// Snapshot is a labeled copy of a source's raw content at a point in time.
type Snapshot struct {
	SourceKey string
	Label     string
	Content   string
	Timestamp time.Time
}

// Store keeps snapshots in memory, keyed by source key then label.
// Writes serialize per key; unrelated keys never contend.
type Store struct {
	mu      sync.RWMutex
	sources map[string]*sourceHistory
	clock   scrape.Clock
}

type sourceHistory struct {
	mu      sync.RWMutex
	order   []string            // labels in insertion order
	byLabel map[string]Snapshot // upsert target
}

// NewStore constructs a Store. A nil clock falls back to time.Now.
func NewStore(clock scrape.Clock) *Store {
	return &Store{
		sources: make(map[string]*sourceHistory),
		clock:   clock,
	}
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func (s *Store) source(key string) *sourceHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist, ok := s.sources[key]
	if !ok {
		hist = &sourceHistory{byLabel: make(map[string]Snapshot)}
		s.sources[key] = hist
	}
	return hist
}

func (s *Store) lookup(key string) (*sourceHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist, ok := s.sources[key]
	return hist, ok
}

// Save upserts a snapshot. Re-saving an existing label replaces its content
// and timestamp but keeps the label's position in insertion order. Nothing
// is ever evicted.
func (s *Store) Save(sourceKey, label, content string) Snapshot {
	snap := Snapshot{
		SourceKey: sourceKey,
		Label:     label,
		Content:   content,
		Timestamp: s.now(),
	}
	hist := s.source(sourceKey)
	hist.mu.Lock()
	defer hist.mu.Unlock()
	if _, exists := hist.byLabel[label]; !exists {
		hist.order = append(hist.order, label)
	}
	hist.byLabel[label] = snap
	return snap
}

// Get returns the snapshot stored under a label.
func (s *Store) Get(sourceKey, label string) (Snapshot, error) {
	hist, ok := s.lookup(sourceKey)
	if !ok {
		return Snapshot{}, fmt.Errorf("source %q: %w", sourceKey, scrape.ErrNotFound)
	}
	hist.mu.RLock()
	defer hist.mu.RUnlock()
	snap, ok := hist.byLabel[label]
	if !ok {
		return Snapshot{}, fmt.Errorf("label %q for source %q: %w", label, sourceKey, scrape.ErrNotFound)
	}
	return snap, nil
}

// Labels returns the labels recorded for a source in insertion order.
func (s *Store) Labels(sourceKey string) []string {
	hist, ok := s.lookup(sourceKey)
	if !ok {
		return nil
	}
	hist.mu.RLock()
	defer hist.mu.RUnlock()
	out := make([]string, len(hist.order))
	copy(out, hist.order)
	return out
}

// LatestLabel returns the most recently inserted label, or "" when the
// source has no snapshots.
func (s *Store) LatestLabel(sourceKey string) string {
	labels := s.Labels(sourceKey)
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1]
}

// Compare diffs two labeled snapshots of a source. Either label missing
// yields scrape.ErrNotFound.
func (s *Store) Compare(sourceKey, labelA, labelB string) (DiffResult, error) {
	from, err := s.Get(sourceKey, labelA)
	if err != nil {
		return DiffResult{}, err
	}
	to, err := s.Get(sourceKey, labelB)
	if err != nil {
		return DiffResult{}, err
	}
	return diffSnapshots(from, to)
}

// History diffs each sequential label pair in chronological insertion order.
// A source with fewer than two snapshots yields an empty history.
func (s *Store) History(sourceKey string) ([]DiffResult, error) {
	if _, ok := s.lookup(sourceKey); !ok {
		return nil, fmt.Errorf("source %q: %w", sourceKey, scrape.ErrNotFound)
	}
	labels := s.Labels(sourceKey)
	out := make([]DiffResult, 0, len(labels))
	for i := 1; i < len(labels); i++ {
		dr, err := s.Compare(sourceKey, labels[i-1], labels[i])
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, nil
}
