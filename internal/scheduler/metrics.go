package scheduler

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the scheduler's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	inFlight    prometheus.Gauge
	dispatched  *prometheus.CounterVec
	completions *prometheus.CounterVec
	retryPasses prometheus.Counter
	earlyStops  prometheus.Counter
}

// NewMetrics registers the scheduler collectors against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chunkgen_requests_in_flight",
			Help: "Cell population requests currently outstanding against the backend.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkgen_requests_dispatched_total",
			Help: "Cell population requests dispatched, partitioned by pass.",
		}, []string{"pass"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkgen_request_completions_total",
			Help: "Cell population completions partitioned by outcome.",
		}, []string{"outcome"}),
		retryPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkgen_retry_passes_total",
			Help: "Runs that entered the retry pass.",
		}),
		earlyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkgen_early_stops_total",
			Help: "Runs that stopped admitting work because the target became unavailable.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		m.inFlight,
		m.dispatched,
		m.completions,
		m.retryPasses,
		m.earlyStops,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register scheduler collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeDispatch(pass int) {
	if m == nil {
		return
	}
	m.inFlight.Inc()
	m.dispatched.WithLabelValues(strconv.Itoa(pass)).Inc()
}

func (m *Metrics) observeCompletion(o Outcome) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.completions.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) observeRetryPass() {
	if m == nil {
		return
	}
	m.retryPasses.Inc()
}

func (m *Metrics) observeEarlyStop() {
	if m == nil {
		return
	}
	m.earlyStops.Inc()
}

func (m *Metrics) abandon(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inFlight.Sub(float64(n))
}
