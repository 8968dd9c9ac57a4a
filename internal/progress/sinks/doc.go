// Package sinks implements progress consumers: structured logging, Prometheus
// gauges and the run store. Each satisfies progress.Sink.
package sinks
