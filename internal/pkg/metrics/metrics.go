package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bannerforge"

// Outcome labels shared by callers.
const (
	ResultAllowed  = "allowed"
	ResultDenied   = "denied"
	ResultFailOpen = "fail_open"

	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultSkipped = "skipped"

	ResultRefunded = "refunded"
	ResultNotFound = "not_found"
	ResultRetry    = "retry"
	ResultDead     = "dead"

	ResultSent          = "sent"
	ResultDropped       = "dropped"
	ResultPublishFailed = "publish_failed"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver.
type Metrics struct {
	Admissions          *prometheus.CounterVec
	AssetTiers          *prometheus.CounterVec
	Generations         *prometheus.CounterVec
	Refunds             *prometheus.CounterVec
	StuckCharges        prometheus.Counter
	Reconciliations     *prometheus.CounterVec
	ProgressConnections prometheus.Gauge
	ProgressEvents      *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Handler serves the default registry.
func Handler() http.Handler {
	Default()
	return promhttp.Handler()
}

// New creates and registers the collectors on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Rate limiter decisions by limiter and result.",
			},
			[]string{"limiter", "result"}, // allowed | denied | fail_open
		),
		AssetTiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "asset_tier_attempts_total",
				Help:      "Background provider attempts by provider and result.",
			},
			[]string{"provider", "result"}, // success | failed | timeout | skipped
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Finished generation requests by outcome (succeeded or error category).",
			},
			[]string{"outcome"},
		),
		Refunds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credit_refunds_total",
				Help:      "Refunds of charges taken for failed work.",
			},
			[]string{"result"}, // refunded | not_found | failed
		),
		StuckCharges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stuck_charges_total",
				Help:      "Charges whose refund failed and were reported to operators.",
			},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stuck_charge_reconciliations_total",
				Help:      "Refund worker outcomes for stuck charges.",
			},
			[]string{"result"}, // refunded | retry | dead
		),
		ProgressConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "progress_connections",
				Help:      "Open progress websocket connections on this instance.",
			},
		),
		ProgressEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_events_total",
				Help:      "Progress events by delivery result.",
			},
			[]string{"result"}, // sent | dropped | publish_failed
		),
	}

	registerer.MustRegister(
		m.Admissions,
		m.AssetTiers,
		m.Generations,
		m.Refunds,
		m.StuckCharges,
		m.Reconciliations,
		m.ProgressConnections,
		m.ProgressEvents,
	)
	return m
}

func (m *Metrics) Admission(limiter, result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(limiter, result).Inc()
}

func (m *Metrics) AssetTier(provider, result string) {
	if m == nil {
		return
	}
	m.AssetTiers.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refund(result string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) StuckCharge() {
	if m == nil {
		return
	}
	m.StuckCharges.Inc()
}

func (m *Metrics) Reconciliation(result string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ProgressConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ProgressConnections.Dec()
}

func (m *Metrics) ProgressEvent(result string) {
	if m == nil {
		return
	}
	m.ProgressEvents.WithLabelValues(result).Inc()
}
