package scheduler

import (
	"net/http"
	"time"

	"scrapewatch/internal/scrape"
)

// State represents the lifecycle state of a scheduled job.
type State string

// Job states. Failed and Cancelled are terminal.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func terminal(s State) bool { return s == StateFailed || s == StateCancelled }

// JobDef describes one recurring scrape job.
type JobDef struct {
	Name         string
	URL          string
	SourceKey    string
	Interval     time.Duration
	MaxRetries   int
	FetchTimeout time.Duration
	Headers      http.Header
	Selector     scrape.SelectorSpec
	// NameField/PriceField bridge extracted items into price tracking.
	// Both empty disables price ingestion for the job.
	NameField  string
	PriceField string
}

// RunResult records the outcome of one execution.
type RunResult struct {
	JobID       string    `json:"job_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Error       string    `json:"error,omitempty"`
	Items       int       `json:"items"`
	Added       int       `json:"added"`
	Removed     int       `json:"removed"`
	Alerts      int       `json:"alerts"`
	ParseErrors int       `json:"parse_errors"`
	// Unchanged is set when the source returned byte-identical content and
	// downstream processing was skipped.
	Unchanged bool `json:"unchanged"`
}

// JobStatus is the externally visible view of one job.
type JobStatus struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	SourceKey  string     `json:"source_key"`
	State      State      `json:"state"`
	NextDue    time.Time  `json:"next_due"`
	Overdue    bool       `json:"overdue,omitempty"`
	RetryCount int        `json:"retry_count"`
	Runs       int        `json:"runs"`
	Errors     int        `json:"errors"`
	LastResult *RunResult `json:"last_result,omitempty"`
}

// OverallStatus aggregates across the job table.
type OverallStatus struct {
	Running     bool        `json:"running"`
	TotalJobs   int         `json:"total_jobs"`
	ActiveJobs  int         `json:"active_jobs"`
	TotalRuns   int         `json:"total_runs"`
	TotalErrors int         `json:"total_errors"`
	Jobs        []JobStatus `json:"jobs"`
}

// maxRunHistory bounds the per-job record of recent executions.
const maxRunHistory = 50

// jobEntry is the scheduler-owned record for one job. Every field is
// guarded by the scheduler's table lock.
type jobEntry struct {
	id         string
	def        JobDef
	state      State
	nextDue    time.Time
	overdue    bool
	retryCount int
	runs       int
	errs       int
	lastResult *RunResult
	history    []RunResult
}

// pushHistory appends one completed run, dropping the oldest entries past
// the bound.
func (e *jobEntry) pushHistory(res RunResult) {
	e.history = append(e.history, res)
	if len(e.history) > maxRunHistory {
		e.history = e.history[len(e.history)-maxRunHistory:]
	}
}

func (e *jobEntry) status() JobStatus {
	st := JobStatus{
		ID:         e.id,
		Name:       e.def.Name,
		URL:        e.def.URL,
		SourceKey:  e.def.SourceKey,
		State:      e.state,
		NextDue:    e.nextDue,
		Overdue:    e.overdue,
		RetryCount: e.retryCount,
		Runs:       e.runs,
		Errors:     e.errs,
	}
	if e.lastResult != nil {
		res := *e.lastResult
		st.LastResult = &res
	}
	return st
}
