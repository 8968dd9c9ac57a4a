// Package progress carries structured run milestones out of the reporter. A
// Hub batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus gauges, the run store, or the log.
package progress
