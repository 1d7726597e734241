package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "contribgate_ratelimit_decisions_total",
			Help: "Rate limit checks by identity type, endpoint class and outcome",
		}, []string{"limit_type", "class", "outcome"}),
	}
}

func (m *Metrics) ObserveDecision(prefix KeyPrefix, class Class, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(string(prefix), string(class), outcome).Inc()
}
