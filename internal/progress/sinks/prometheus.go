package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/chunkgen/internal/progress"
)

// PrometheusSink exports run lifecycle counters and the latest per-region
// progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsRunning  prometheus.Gauge
	runsRetried  prometheus.Counter

	regionCompleted *prometheus.GaugeVec
	regionFailed    *prometheus.GaugeVec
	regionPercent   *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkgen_runs_started_total",
			Help: "Scheduling runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkgen_runs_finished_total",
			Help: "Scheduling runs finished, partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chunkgen_runs_running",
			Help: "Scheduling runs currently in progress.",
		}),
		runsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkgen_runs_retried_total",
			Help: "Scheduling runs that entered their retry pass.",
		}),
		regionCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chunkgen_region_cells_completed",
			Help: "Cells populated by the latest run for each region.",
		}, []string{"region"}),
		regionFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chunkgen_region_cells_failed",
			Help: "Cells awaiting retry or permanently failed in the latest run for each region.",
		}, []string{"region"}),
		regionPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chunkgen_region_progress_percent",
			Help: "Completion percentage of the latest run for each region.",
		}, []string{"region"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runsRetried,
		s.regionCompleted,
		s.regionFailed,
		s.regionPercent,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunRetry:
		s.runsRetried.Inc()
	case progress.StageRunDone:
		s.runsFinished.WithLabelValues("done").Inc()
	case progress.StageRunStopped:
		s.runsFinished.WithLabelValues("stopped").Inc()
	case progress.StageRunError:
		s.runsFinished.WithLabelValues("error").Inc()
	}
	if evt.Stage.Terminal() && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
	s.observeRegion(evt)
}

func (s *PrometheusSink) observeRegion(evt progress.Event) {
	region := evt.Region
	if region == "" {
		region = "unknown"
	}
	s.regionCompleted.WithLabelValues(region).Set(float64(evt.Completed))
	s.regionFailed.WithLabelValues(region).Set(float64(evt.Failed))
	s.regionPercent.WithLabelValues(region).Set(evt.Percent())
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
