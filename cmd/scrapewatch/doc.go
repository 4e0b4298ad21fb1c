// Package main hosts the scrapewatch service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, job management,
//     price, and snapshot endpoints. Jobs submitted over HTTP join the same
//     schedule as jobs loaded from configuration.
//   - Scheduler: a single coordinator goroutine evaluates the job table each
//     tick, launches due jobs up to a concurrency bound, and consumes
//     completions. Failures back off exponentially until retries are
//     exhausted; cancellation is cooperative and terminal.
//   - Scrape pipeline: each successful fetch flows through extraction
//     (goquery selectors), item-set change detection (sha256 fingerprints),
//     snapshotting with unified diffs, and price ingestion with threshold
//     alerting. Byte-identical content short-circuits the pipeline.
//   - Events: the dispatcher fans JOB_SUCCEEDED, JOB_FAILED, CHANGE_DETECTED,
//     DIFF_COMPUTED, and PRICE_ALERT_FIRED out to registered handlers in
//     order, isolating handler errors and panics from the scheduler.
//   - Configuration & plumbing: Viper populates config from env/files
//     (SCRAPEWATCH_ prefix); zap provides structured logging; Prometheus
//     metrics are exported via /metrics. All state is in memory.
//
// Operational notes:
//   - Concurrency model: fixed semaphore on executions plus per-job
//     single-flight; snapshot and price state lock per source key so
//     unrelated sources never contend. Shutdown is coordinated via context
//     cancellation from main through the scheduler.
//   - Observability: zap logs carry job IDs and source keys at state
//     transitions; Prometheus counters/histograms track runs, fetch
//     latency, detected changes, and fired alerts.
//
// Run locally: go run ./cmd/scrapewatch -config config.yaml (or rely solely
// on SCRAPEWATCH_* env overrides).
package main
