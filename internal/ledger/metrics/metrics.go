package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the contribution ledger. A nil
// *Metrics records nothing, so services and tests can run without a registry.
type Metrics struct {
	ContributionsAccepted prometheus.Counter
	ContributionsRejected *prometheus.CounterVec
	AcceptedAssetUnits    prometheus.Histogram
	ForwardDuration       prometheus.Histogram
	ForwardFailures       prometheus.Counter
	Reversals             *prometheus.CounterVec
	PartiesVerified       prometheus.Counter
	ConfigChanges         *prometheus.CounterVec
	LockWait              prometheus.Histogram
}

// New creates and registers the ledger metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the ledger metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContributionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_contributions_accepted_total",
			Help: "Total number of accepted contributions",
		}),
		ContributionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contribgate_contributions_rejected_total",
			Help: "Total number of rejected contributions by rejection code",
		}, []string{"code"}),
		AcceptedAssetUnits: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contribgate_contribution_asset_units",
			Help:    "Accepted contribution size in whole asset units",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		ForwardDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contribgate_treasury_forward_duration_seconds",
			Help:    "Time spent forwarding accepted funds to the treasury",
			Buckets: prometheus.DefBuckets,
		}),
		ForwardFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_treasury_forward_failures_total",
			Help: "Total number of treasury forwards that failed and rolled back a contribution",
		}),
		Reversals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contribgate_treasury_reversals_total",
			Help: "Treasury reversals after a rolled back accept, by outcome",
		}, []string{"outcome"}),
		PartiesVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "contribgate_parties_verified_total",
			Help: "Total number of parties newly marked verified",
		}),
		ConfigChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contribgate_config_changes_total",
			Help: "Campaign configuration changes by action",
		}, []string{"action"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contribgate_lock_wait_seconds",
			Help:    "Time spent waiting for a party or configuration lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

func (m *Metrics) IncAccepted(assetUnits float64) {
	if m == nil {
		return
	}
	m.ContributionsAccepted.Inc()
	m.AcceptedAssetUnits.Observe(assetUnits)
}

func (m *Metrics) IncRejected(code string) {
	if m == nil {
		return
	}
	m.ContributionsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveForward(seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.ForwardDuration.Observe(seconds)
	if failed {
		m.ForwardFailures.Inc()
	}
}

func (m *Metrics) IncReversal(outcome string) {
	if m == nil {
		return
	}
	m.Reversals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddVerified(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PartiesVerified.Add(float64(n))
}

func (m *Metrics) IncConfigChange(action string) {
	if m == nil {
		return
	}
	m.ConfigChanges.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.LockWait.Observe(seconds)
}
