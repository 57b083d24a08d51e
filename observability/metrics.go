package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bridge's Prometheus instruments. All methods are safe
// on a nil *Metrics, so callers never need to check whether metrics are on.
type Metrics struct {
	InboundTotal     *prometheus.CounterVec
	SuppressedTotal  prometheus.Counter
	ForwardsTotal    *prometheus.CounterVec
	ForwardSends     prometheus.Counter
	ForwardLatency   prometheus.Histogram
	InFlightForwards prometheus.Gauge
	DLQSize          prometheus.Gauge
	AlertsTotal      *prometheus.CounterVec
}

// NewMetrics registers the instruments with reg. Pass
// prometheus.DefaultRegisterer in the binary and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InboundTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slackrelay_inbound_requests_total",
			Help: "Inbound relay requests by outcome.",
		}, []string{"outcome"}),
		SuppressedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "slackrelay_dedup_suppressed_total",
			Help: "Actions suppressed as duplicates.",
		}),
		ForwardsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slackrelay_forwards_total",
			Help: "Completed forwards by final status.",
		}, []string{"status"}),
		ForwardSends: f.NewCounter(prometheus.CounterOpts{
			Name: "slackrelay_forward_sends_total",
			Help: "HTTP sends made by forwards, redirects and retries included.",
		}),
		ForwardLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "slackrelay_forward_duration_seconds",
			Help:    "Wall time of a forward including backoff.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		InFlightForwards: f.NewGauge(prometheus.GaugeOpts{
			Name: "slackrelay_forwards_in_flight",
			Help: "Forwards currently running.",
		}),
		DLQSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "slackrelay_dlq_size",
			Help: "Entries in the dead-letter store.",
		}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slackrelay_alerts_total",
			Help: "Operator alerts by result.",
		}, []string{"result"}),
	}
}

// RecordInbound counts an inbound request ("acked", "unauthorized", ...).
func (m *Metrics) RecordInbound(outcome string) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabelValues(outcome).Inc()
}

// RecordSuppressed counts a dedup suppression.
func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.SuppressedTotal.Inc()
}

// RecordSend counts one outbound HTTP send.
func (m *Metrics) RecordSend() {
	if m == nil {
		return
	}
	m.ForwardSends.Inc()
}

// ForwardStarted marks a forward as in flight.
func (m *Metrics) ForwardStarted() {
	if m == nil {
		return
	}
	m.InFlightForwards.Inc()
}

// RecordForward records a finished forward.
func (m *Metrics) RecordForward(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.InFlightForwards.Dec()
	m.ForwardsTotal.WithLabelValues(status).Inc()
	m.ForwardLatency.Observe(latencySeconds)
}

// SetDLQSize reports the dead-letter store size.
func (m *Metrics) SetDLQSize(n int64) {
	if m == nil {
		return
	}
	m.DLQSize.Set(float64(n))
}

// RecordAlert counts an alert result ("sent", "deduped", "failed").
func (m *Metrics) RecordAlert(result string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(result).Inc()
}
