// Package scrape defines core types shared across subsystems: tagged field
// values, item records, extraction results, fetch/extract interfaces, and the
// error taxonomy the scheduler uses to decide retries.
package scrape
