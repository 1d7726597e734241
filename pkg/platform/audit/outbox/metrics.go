package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Published           prometheus.Counter
	PublishFailures     prometheus.Counter
	CircuitSkipped      prometheus.Counter
	CircuitBreakerState prometheus.Gauge
	BatchSize           prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with outbox metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the outbox metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_audit_outbox_published_total",
			Help: "Total number of outbox entries published to Kafka",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_audit_outbox_publish_failures_total",
			Help: "Total number of failed outbox publish batches",
		}),
		CircuitSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_audit_outbox_circuit_skipped_total",
			Help: "Total number of relay ticks skipped because the circuit breaker was open",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "contribgate_audit_outbox_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contribgate_audit_outbox_batch_size",
			Help:    "Number of entries relayed per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	if m == nil {
		return
	}
	m.Published.Add(float64(n))
	m.BatchSize.Observe(float64(n))
}

func (m *Metrics) IncPublishFailures() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) IncCircuitSkipped() {
	if m == nil {
		return
	}
	m.CircuitSkipped.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
