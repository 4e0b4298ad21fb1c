// Package scheduler owns recurring scrape jobs: due-time dispatch with a
// concurrency bound, retry/backoff, cooperative cancellation, and completion
// accounting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scrapewatch/internal/dispatch"
	"scrapewatch/internal/metrics"
	"scrapewatch/internal/scrape"
)

const (
	defaultTick         = time.Second
	defaultConcurrency  = 4
	defaultInterval     = time.Hour
	defaultMaxRetries   = 3
	defaultFetchTimeout = 15 * time.Second
)

// Config controls Scheduler behavior.
type Config struct {
	Tick                time.Duration
	MaxConcurrent       int
	DefaultInterval     time.Duration
	DefaultMaxRetries   int
	DefaultFetchTimeout time.Duration
	Backoff             Backoff
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = defaultTick
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultConcurrency
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = defaultInterval
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = defaultMaxRetries
	}
	if c.DefaultFetchTimeout <= 0 {
		c.DefaultFetchTimeout = defaultFetchTimeout
	}
	return c
}

// completion is posted by an execution goroutine back to the coordinator.
type completion struct {
	jobID  string
	result RunResult
	err    error
}

// Scheduler drives the recurring scrape loop. A single coordinator
// goroutine (Run) evaluates the job table each tick and consumes
// completions; executions run concurrently up to the configured bound.
type Scheduler struct {
	cfg        Config
	fetcher    scrape.Fetcher
	extractor  scrape.Extractor
	pipeline   *Pipeline
	dispatcher *dispatch.Dispatcher
	clock      scrape.Clock
	logger     *zap.Logger
	newID      func() string

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	order   []string
	running bool

	completions chan completion
	sem         chan struct{}
	wg          sync.WaitGroup
}

// New constructs a Scheduler. Fetcher and extractor are required; pipeline,
// dispatcher, clock, and logger may be nil.
func New(
	cfg Config,
	fetcher scrape.Fetcher,
	extractor scrape.Extractor,
	pipeline *Pipeline,
	dispatcher *dispatch.Dispatcher,
	clock scrape.Clock,
	logger *zap.Logger,
) *Scheduler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:         cfg,
		fetcher:     fetcher,
		extractor:   extractor,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		clock:       clock,
		logger:      logger,
		newID:       uuid.NewString,
		jobs:        make(map[string]*jobEntry),
		completions: make(chan completion, cfg.MaxConcurrent),
		sem:         make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (s *Scheduler) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

// Schedule registers a recurring job and returns its id. The job becomes
// due immediately.
func (s *Scheduler) Schedule(def JobDef) (string, error) {
	if def.URL == "" {
		return "", fmt.Errorf("schedule: url is required")
	}
	if def.SourceKey == "" {
		def.SourceKey = def.URL
	}
	if def.Name == "" {
		def.Name = def.SourceKey
	}
	if def.Interval <= 0 {
		def.Interval = s.cfg.DefaultInterval
	}
	if def.MaxRetries <= 0 {
		def.MaxRetries = s.cfg.DefaultMaxRetries
	}
	if def.FetchTimeout <= 0 {
		def.FetchTimeout = s.cfg.DefaultFetchTimeout
	}

	id := s.newID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &jobEntry{
		id:      id,
		def:     def,
		state:   StateIdle,
		nextDue: s.now(),
	}
	s.order = append(s.order, id)
	s.logger.Info("job scheduled",
		zap.String("job_id", id),
		zap.String("name", def.Name),
		zap.Duration("interval", def.Interval),
	)
	return id, nil
}

// Cancel marks a job Cancelled. The transition is terminal and cooperative:
// an in-flight execution runs to completion, but its outcome is recorded
// without triggering reschedule or callbacks. Cancelling an already
// cancelled job is a no-op.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("cancel job %q: %w", jobID, scrape.ErrNotFound)
	}
	if e.state == StateCancelled {
		return nil
	}
	e.state = StateCancelled
	s.logger.Info("job cancelled", zap.String("job_id", jobID))
	return nil
}

// Status returns the current view of every job in schedule order. Failed
// and Cancelled jobs are included without error.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].status())
	}
	return out
}

// History returns a job's recent execution results, oldest first, bounded
// at maxRunHistory entries.
func (s *Scheduler) History(jobID string) ([]RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("history for job %q: %w", jobID, scrape.ErrNotFound)
	}
	out := make([]RunResult, len(e.history))
	copy(out, e.history)
	return out, nil
}

// StatusOverall aggregates run/error totals across the job table.
func (s *Scheduler) StatusOverall() OverallStatus {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	jobs := s.Status()
	overall := OverallStatus{
		Running:   running,
		TotalJobs: len(jobs),
		Jobs:      jobs,
	}
	for _, j := range jobs {
		if !terminal(j.State) {
			overall.ActiveJobs++
		}
		overall.TotalRuns += j.Runs
		overall.TotalErrors += j.Errors
	}
	return overall
}

// Run drives the coordinator loop until the context finishes, then waits
// for in-flight executions to drain.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	s.logger.Info("scheduler started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent),
	)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case c := <-s.completions:
			s.handleCompletion(ctx, c)
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue launches every due Idle job, up to the concurrency bound.
// The Idle→Running transition happens under the table lock, so a job can
// never be dispatched twice concurrently. A Running job past its next_due
// is marked overdue and reconsidered once its current execution completes.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	type launch struct {
		id  string
		def JobDef
	}
	now := s.now()

	s.mu.Lock()
	var due []launch
	for _, id := range s.order {
		e := s.jobs[id]
		switch e.state {
		case StateRunning:
			if e.nextDue.Before(now) && !e.overdue {
				e.overdue = true
				s.logger.Warn("job overdue, execution still in flight",
					zap.String("job_id", id),
					zap.Time("next_due", e.nextDue),
				)
			}
		case StateIdle:
			if e.nextDue.After(now) {
				continue
			}
			select {
			case s.sem <- struct{}{}:
				e.state = StateRunning
				due = append(due, launch{id: id, def: e.def})
			default:
				// concurrency bound reached; job stays due for the next tick
			}
		}
	}
	s.mu.Unlock()

	for _, l := range due {
		s.wg.Add(1)
		go s.execute(ctx, l.id, l.def)
	}
}

func (s *Scheduler) execute(ctx context.Context, jobID string, def JobDef) {
	defer s.wg.Done()
	defer func() { <-s.sem }()
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	res := RunResult{JobID: jobID, StartedAt: s.now()}
	err := s.runJob(ctx, jobID, def, &res)
	res.FinishedAt = s.now()
	if err != nil {
		res.Error = err.Error()
	}

	select {
	case s.completions <- completion{jobID: jobID, result: res, err: err}:
	case <-ctx.Done():
	}
}

// runJob executes one fetch+extract+process cycle. The fetch is the only
// blocking stage and is always bounded by the job's timeout. Cancellation
// is re-checked after the fetch so a cancelled job skips all downstream
// processing and event emission.
func (s *Scheduler) runJob(ctx context.Context, jobID string, def JobDef, res *RunResult) error {
	fctx, cancel := context.WithTimeout(ctx, def.FetchTimeout)
	defer cancel()

	resp, err := s.fetcher.Fetch(fctx, scrape.FetchRequest{
		URL:     def.URL,
		Headers: def.Headers,
		Timeout: def.FetchTimeout,
	})
	if err != nil {
		var fe *scrape.FetchError
		if !errors.As(err, &fe) {
			err = &scrape.FetchError{URL: def.URL, Err: err}
		}
		return err
	}
	metrics.ObserveFetch(def.SourceKey, resp.Duration)

	if s.isCancelled(jobID) {
		return nil
	}

	result, err := s.extractor.Extract(resp.Body, def.Selector, def.SourceKey, s.now())
	if err != nil {
		var ee *scrape.ExtractionError
		if !errors.As(err, &ee) {
			err = &scrape.ExtractionError{SourceKey: def.SourceKey, Err: err}
		}
		return err
	}
	res.Items = len(result.Items)

	if s.isCancelled(jobID) || s.pipeline == nil {
		return nil
	}
	out := s.pipeline.Process(ctx, jobID, def, resp.Body, result)
	res.Added = out.added
	res.Removed = out.removed
	res.Alerts = out.alerts
	res.ParseErrors = out.parseErrors
	res.Unchanged = out.unchanged
	return nil
}

func (s *Scheduler) isCancelled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	return ok && e.state == StateCancelled
}

// handleCompletion records an execution outcome and transitions the job.
// Success resets the retry count and schedules the next interval; a
// retryable failure backs off until retries are exhausted, at which point
// the job is Failed permanently and requires explicit caller action.
// Completions for Cancelled jobs are recorded with dispatch suppressed.
func (s *Scheduler) handleCompletion(ctx context.Context, c completion) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.jobs[c.jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.overdue = false
	res := c.result
	e.lastResult = &res
	e.pushHistory(res)

	if e.state == StateCancelled {
		s.mu.Unlock()
		s.logger.Info("completion for cancelled job suppressed", zap.String("job_id", c.jobID))
		return
	}

	evt := dispatch.Event{
		JobID:     c.jobID,
		SourceKey: e.def.SourceKey,
		TS:        now,
		Payload:   res,
	}

	if c.err == nil {
		e.state = StateIdle
		e.retryCount = 0
		e.runs++
		e.nextDue = now.Add(e.def.Interval)
		s.mu.Unlock()

		metrics.ObserveJob("succeeded")
		s.logger.Info("job succeeded",
			zap.String("job_id", c.jobID),
			zap.Int("items", res.Items),
			zap.Bool("unchanged", res.Unchanged),
		)
		evt.Kind = dispatch.JobSucceeded
	} else {
		e.errs++
		e.retryCount++
		if scrape.Retryable(c.err) && e.retryCount < e.def.MaxRetries {
			retry := e.retryCount
			delay := s.cfg.Backoff.Delay(retry)
			e.state = StateIdle
			e.nextDue = now.Add(delay)
			s.mu.Unlock()

			metrics.ObserveJob("retrying")
			s.logger.Warn("job failed, retry scheduled",
				zap.String("job_id", c.jobID),
				zap.Int("retry_count", retry),
				zap.Duration("backoff", delay),
				zap.Error(c.err),
			)
		} else {
			e.state = StateFailed
			s.mu.Unlock()

			metrics.ObserveJob("failed")
			s.logger.Error("job failed permanently",
				zap.String("job_id", c.jobID),
				zap.Error(c.err),
			)
		}
		evt.Kind = dispatch.JobFailed
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, evt)
	}
}
