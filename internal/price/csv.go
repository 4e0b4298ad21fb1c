package price

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExportCSV renders every observation, one row per point, ordered by
// (product_id, source_id, timestamp). With no new observations the output
// is byte-identical across calls.
func (m *Monitor) ExportCSV() (string, error) {
	points := m.collect(func(seriesKey) bool { return true })
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"product_id", "source_id", "price", "timestamp"}); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, pt := range points {
		row := []string{
			pt.ProductID,
			pt.SourceID,
			pt.Price.String(),
			pt.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}
