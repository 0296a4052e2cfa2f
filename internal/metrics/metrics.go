// Package metrics holds the Prometheus collectors of the wallet service.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billwallet"

type Metrics struct {
	reservations       *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	inconsistent       prometheus.Counter
	gatewayLatency     *prometheus.HistogramVec
	sweepRuns          *prometheus.CounterVec
	sweepResolved      *prometheus.CounterVec
	sweepLastRunUnix   prometheus.Gauge
	httpRequestLatency *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		reservations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reservations_total",
				Help:      "Total reservation attempts partitioned by result.",
			},
			[]string{"result"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Total settlement calls partitioned by outcome class and resulting status.",
			},
			[]string{"outcome", "status"},
		),
		inconsistent: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_inconsistent_total",
				Help:      "Settlements that could not be applied after all retries.",
			},
		),
		gatewayLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Provider call latency partitioned by provider, call and outcome class.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "call", "class"},
		),
		sweepRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Reconciliation sweep runs partitioned by result.",
			},
			[]string{"result"},
		),
		sweepResolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "resolved_total",
				Help:      "Pending transactions resolved by the sweep partitioned by status.",
			},
			[]string{"status"},
		),
		sweepLastRunUnix: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent sweep run.",
			},
		),
		httpRequestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency partitioned by method, route and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "balance_cache",
				Name:      "lookups_total",
				Help:      "Balance cache lookups partitioned by result.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}

	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) Settlement(outcome, status string) {
	if m == nil {
		return
	}

	m.settlements.WithLabelValues(outcome, status).Inc()
}

func (m *Metrics) SettlementInconsistent() {
	if m == nil {
		return
	}

	m.inconsistent.Inc()
}

func (m *Metrics) GatewayCall(provider, call, class string, took time.Duration) {
	if m == nil {
		return
	}

	m.gatewayLatency.WithLabelValues(provider, call, class).Observe(took.Seconds())
}

func (m *Metrics) SweepRun(result string, at time.Time) {
	if m == nil {
		return
	}

	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepLastRunUnix.Set(float64(at.Unix()))
}

func (m *Metrics) SweepResolved(status string) {
	if m == nil {
		return
	}

	m.sweepResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) HTTPRequest(method, route, code string, took time.Duration) {
	if m == nil {
		return
	}

	m.httpRequestLatency.WithLabelValues(method, route, code).Observe(took.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}

	m.cacheLookups.WithLabelValues(result).Inc()
}
