package scheduler

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"scrapewatch/internal/change"
	"scrapewatch/internal/dispatch"
	"scrapewatch/internal/metrics"
	"scrapewatch/internal/price"
	"scrapewatch/internal/scrape"
	"scrapewatch/internal/snapshot"
)

const seenCacheSize = 256

// Pipeline carries an extraction result through change detection,
// snapshotting/diffing, and price ingestion, emitting an event for each
// stage that produced something. State is keyed by source key; writes for
// the same key serialize, unrelated keys proceed independently.
type Pipeline struct {
	snapshots  *snapshot.Store
	monitor    *price.Monitor
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu          sync.Mutex
	prevDigests map[string]map[change.Digest]scrape.ItemRecord
	runSeq      map[string]int
	// seen short-circuits processing when a source returns byte-identical
	// content to its previous fetch.
	seen *lru.Cache[string, change.Digest]
}

// NewPipeline constructs a Pipeline. Snapshots and monitor are required;
// dispatcher and logger may be nil.
func NewPipeline(
	snapshots *snapshot.Store,
	monitor *price.Monitor,
	dispatcher *dispatch.Dispatcher,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen, _ := lru.New[string, change.Digest](seenCacheSize)
	return &Pipeline{
		snapshots:   snapshots,
		monitor:     monitor,
		dispatcher:  dispatcher,
		logger:      logger,
		prevDigests: make(map[string]map[change.Digest]scrape.ItemRecord),
		runSeq:      make(map[string]int),
		seen:        seen,
	}
}

// pipelineOutcome summarizes what one processed run produced.
type pipelineOutcome struct {
	added       int
	removed     int
	alerts      int
	parseErrors int
	unchanged   bool
}

// Process runs the downstream stages for one completed fetch+extract cycle.
// Stage errors are logged, never fatal; the job run itself already
// succeeded once extraction finished.
func (p *Pipeline) Process(
	ctx context.Context,
	jobID string,
	def JobDef,
	rawContent []byte,
	result scrape.ExtractionResult,
) pipelineOutcome {
	key := def.SourceKey

	contentDigest := change.ContentDigest(rawContent)
	if last, ok := p.seen.Get(key); ok && last == contentDigest {
		p.logger.Debug("content unchanged, skipping pipeline",
			zap.String("job_id", jobID),
			zap.String("source_key", key),
		)
		return pipelineOutcome{unchanged: true}
	}

	out := pipelineOutcome{}
	out.added, out.removed = p.detectChanges(ctx, jobID, key, result)
	p.recordSnapshot(ctx, jobID, key, rawContent)
	out.alerts, out.parseErrors = p.ingestPrices(ctx, jobID, def, result)

	p.seen.Add(key, contentDigest)
	return out
}

func (p *Pipeline) detectChanges(ctx context.Context, jobID, key string, result scrape.ExtractionResult) (added, removed int) {
	current := change.DigestItems(result.Items)

	p.mu.Lock()
	previous, hadPrevious := p.prevDigests[key]
	p.prevDigests[key] = current
	p.mu.Unlock()

	if !hadPrevious {
		return 0, 0
	}
	cs := change.Detect(previous, current)
	if cs.Empty() {
		return 0, 0
	}
	metrics.ObserveChanges(key, len(cs.Added), len(cs.Removed))
	if p.dispatcher != nil {
		p.dispatcher.Dispatch(ctx, dispatch.Event{
			Kind:      dispatch.ChangeDetected,
			JobID:     jobID,
			SourceKey: key,
			TS:        result.FetchedAt,
			Payload:   cs,
		})
	}
	return len(cs.Added), len(cs.Removed)
}

func (p *Pipeline) recordSnapshot(ctx context.Context, jobID, key string, rawContent []byte) {
	p.mu.Lock()
	p.runSeq[key]++
	label := fmt.Sprintf("run-%d", p.runSeq[key])
	p.mu.Unlock()

	prevLabel := p.snapshots.LatestLabel(key)
	snap := p.snapshots.Save(key, label, string(rawContent))
	if prevLabel == "" {
		return
	}

	dr, err := p.snapshots.Compare(key, prevLabel, label)
	if err != nil {
		p.logger.Warn("snapshot diff failed",
			zap.String("job_id", jobID),
			zap.String("source_key", key),
			zap.Error(err),
		)
		return
	}
	if !dr.Changed() {
		return
	}
	if p.dispatcher != nil {
		p.dispatcher.Dispatch(ctx, dispatch.Event{
			Kind:      dispatch.DiffComputed,
			JobID:     jobID,
			SourceKey: key,
			TS:        snap.Timestamp,
			Payload:   dr,
		})
	}
}

func (p *Pipeline) ingestPrices(ctx context.Context, jobID string, def JobDef, result scrape.ExtractionResult) (alerts, parseErrors int) {
	if p.monitor == nil || def.PriceField == "" || def.NameField == "" {
		return 0, 0
	}
	fired, errs := p.monitor.Ingest(ctx, result, def.SourceKey, def.NameField, def.PriceField)
	for _, err := range errs {
		p.logger.Warn("price ingestion item skipped",
			zap.String("job_id", jobID),
			zap.String("source_key", def.SourceKey),
			zap.Error(err),
		)
	}
	metrics.ObservePriceAlerts(def.SourceKey, len(fired))
	return len(fired), len(errs)
}
