package price

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"scrapewatch/internal/dispatch"
	"scrapewatch/internal/scrape"
)

// DefaultThresholdPct is the global alert threshold when no per-product
// override is configured.
const DefaultThresholdPct = 5.0

// Point is a single price observation. Points are append-only; they are
// never mutated or deleted.
type Point struct {
	ProductID string    `json:"product_id"`
	SourceID  string    `json:"source_id"`
	Price     Price     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert reports a threshold-crossing price move. Alerts are dispatched,
// not stored.
type Alert struct {
	ProductID     string    `json:"product_id"`
	SourceID      string    `json:"source_id"`
	PreviousPrice Price     `json:"previous_price"`
	NewPrice      Price     `json:"new_price"`
	PctChange     float64   `json:"pct_change"`
	Direction     string    `json:"direction"` // "drop" or "increase"
	Timestamp     time.Time `json:"timestamp"`
}

// Summary aggregates the observations for one product.
type Summary struct {
	ProductID    string  `json:"product_id"`
	SourceID     string  `json:"source_id,omitempty"`
	Current      Price   `json:"current"`
	Min          Price   `json:"min"`
	Max          Price   `json:"max"`
	Average      float64 `json:"average"`
	Observations int     `json:"observations"`
}

// Config controls Monitor thresholds.
type Config struct {
	DefaultThresholdPct float64
	// ThresholdOverrides maps product id to a per-product threshold.
	ThresholdOverrides map[string]float64
}

type seriesKey struct {
	product string
	source  string
}

// series is the strictly time-ordered observation list for one
// (product, source) pair. Each series has its own lock so unrelated keys
// never contend.
type series struct {
	mu     sync.Mutex
	points []Point
}

// Monitor owns every price series and evaluates alerts on append.
type Monitor struct {
	mu         sync.RWMutex
	series     map[seriesKey]*series
	cfg        Config
	dispatcher *dispatch.Dispatcher
	clock      scrape.Clock
	logger     *zap.Logger
}

// NewMonitor constructs a Monitor. Dispatcher and logger may be nil.
func NewMonitor(cfg Config, dispatcher *dispatch.Dispatcher, clock scrape.Clock, logger *zap.Logger) *Monitor {
	if cfg.DefaultThresholdPct <= 0 {
		cfg.DefaultThresholdPct = DefaultThresholdPct
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		series:     make(map[seriesKey]*series),
		cfg:        cfg,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

func (m *Monitor) now() time.Time {
	if m.clock != nil {
		return m.clock.Now()
	}
	return time.Now().UTC()
}

func (m *Monitor) threshold(productID string) float64 {
	if t, ok := m.cfg.ThresholdOverrides[productID]; ok && t > 0 {
		return t
	}
	return m.cfg.DefaultThresholdPct
}

func (m *Monitor) lookupSeries(key seriesKey) *series {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key]
	if !ok {
		s = &series{}
		m.series[key] = s
	}
	return s
}

// Track appends an observation for (productID, sourceID). A zero timestamp
// takes the current time. Appends must be strictly later than the last
// point for the same key; anything else is rejected to keep the series
// time-ordered. When the absolute percent change against the prior point
// reaches the product's threshold, an Alert is dispatched and returned.
// A zero prior price suppresses the percent computation entirely.
func (m *Monitor) Track(ctx context.Context, productID, sourceID string, p Price, ts time.Time) (*Alert, error) {
	if productID == "" || sourceID == "" {
		return nil, fmt.Errorf("track: product and source ids are required")
	}
	if ts.IsZero() {
		ts = m.now()
	}

	s := m.lookupSeries(seriesKey{product: productID, source: sourceID})
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior *Point
	if n := len(s.points); n > 0 {
		last := s.points[n-1]
		if !ts.After(last.Timestamp) {
			return nil, fmt.Errorf("track %s/%s: timestamp %s not after last observation %s",
				productID, sourceID, ts.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
		}
		prior = &last
	}
	s.points = append(s.points, Point{
		ProductID: productID,
		SourceID:  sourceID,
		Price:     p,
		Timestamp: ts,
	})

	if prior == nil || prior.Price == 0 {
		return nil, nil
	}
	pct := pctChange(prior.Price, p)
	if math.Abs(pct) < m.threshold(productID) {
		return nil, nil
	}

	direction := "increase"
	if pct < 0 {
		direction = "drop"
	}
	alert := &Alert{
		ProductID:     productID,
		SourceID:      sourceID,
		PreviousPrice: prior.Price,
		NewPrice:      p,
		PctChange:     math.Round(pct*100) / 100,
		Direction:     direction,
		Timestamp:     ts,
	}
	m.logger.Info("price alert",
		zap.String("product_id", productID),
		zap.String("source_id", sourceID),
		zap.Float64("pct_change", alert.PctChange),
		zap.String("direction", direction),
	)
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(ctx, dispatch.Event{
			Kind:      dispatch.PriceAlertFired,
			SourceKey: sourceID,
			TS:        ts,
			Payload:   *alert,
		})
	}
	return alert, nil
}

// Ingest bridges extracted items into Track calls. Items missing the name
// or price field are skipped; unparsable price values are skipped and
// reported as per-item errors. Repeated product names within one result
// share the result's timestamp, so only the first parsable listing per
// name is tracked. Returned alerts preserve item order.
func (m *Monitor) Ingest(ctx context.Context, result scrape.ExtractionResult, sourceID, nameField, priceField string) ([]Alert, []error) {
	var alerts []Alert
	var errs []error
	seen := make(map[string]struct{})
	for _, item := range result.Items {
		name, ok := item.Get(nameField)
		if !ok || name.Display() == "" {
			continue
		}
		if _, dup := seen[name.Display()]; dup {
			continue
		}
		raw, ok := item.Get(priceField)
		if !ok || raw.Display() == "" {
			continue
		}

		var p Price
		if raw.Kind == scrape.KindNumber {
			p = FromFloat(raw.Num)
		} else {
			parsed, err := ParsePrice(raw.Display())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p = parsed
		}
		seen[name.Display()] = struct{}{}

		alert, err := m.Track(ctx, name.Display(), sourceID, p, result.FetchedAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts, errs
}

// Summary aggregates observations for a product. An empty sourceID
// aggregates across every source tracking the product. No observations
// yields scrape.ErrNotFound.
func (m *Monitor) Summary(productID, sourceID string) (Summary, error) {
	points := m.collect(func(k seriesKey) bool {
		if k.product != productID {
			return false
		}
		return sourceID == "" || k.source == sourceID
	})
	if len(points) == 0 {
		return Summary{}, fmt.Errorf("product %q source %q: %w", productID, sourceID, scrape.ErrNotFound)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	out := Summary{
		ProductID:    productID,
		SourceID:     sourceID,
		Current:      points[len(points)-1].Price,
		Min:          points[0].Price,
		Max:          points[0].Price,
		Observations: len(points),
	}
	var sum float64
	for _, pt := range points {
		if pt.Price < out.Min {
			out.Min = pt.Price
		}
		if pt.Price > out.Max {
			out.Max = pt.Price
		}
		sum += pt.Price.Float()
	}
	out.Average = math.Round(sum/float64(len(points))*100) / 100
	return out, nil
}

// Products lists the tracked product ids, sorted.
func (m *Monitor) Products() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range m.series {
		seen[k.product] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Monitor) collect(match func(seriesKey) bool) []Point {
	m.mu.RLock()
	keys := make([]seriesKey, 0, len(m.series))
	for k := range m.series {
		if match(k) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	var out []Point
	for _, k := range keys {
		m.mu.RLock()
		s := m.series[k]
		m.mu.RUnlock()
		s.mu.Lock()
		out = append(out, s.points...)
		s.mu.Unlock()
	}
	return out
}
