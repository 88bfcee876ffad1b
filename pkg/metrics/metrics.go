package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"teledrive/pkg/models"
)

const namespace = "teledrive"

// Metrics exposes Prometheus collectors for transfers and batch runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	items       *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	retries     *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runActive   prometheus.Gauge
	tracked     prometheus.Gauge
}

// New registers collectors with reg. Use a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "items_total",
			Help:      "Items processed by outcome and reason.",
		}, []string{"outcome", "reason"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Bytes moved per leg (download or upload).",
		}, []string{"leg"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "retries_total",
			Help:      "Retried attempts per leg and error kind.",
		}, []string{"leg", "kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"status"}),
		runActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "run_active",
			Help:      "1 while a batch run is in progress.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "records",
			Help:      "Completed transfers known to the tracker.",
		}),
	}
	reg.MustRegister(m.items, m.bytes, m.retries, m.runDuration, m.runActive, m.tracked)
	return m
}

// ObserveItem counts one pipeline result
func (m *Metrics) ObserveItem(res models.ItemResult) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(string(res.Outcome), string(res.Reason)).Inc()
}

// AddBytes adds n bytes to the given leg ("download" or "upload")
func (m *Metrics) AddBytes(leg string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(leg).Add(float64(n))
}

// IncRetry counts a retried attempt
func (m *Metrics) IncRetry(leg string, kind models.ErrorKind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(leg, kind.String()).Inc()
}

// RunStarted marks a batch as active
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runActive.Set(1)
}

// RunFinished records the run duration under status
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runActive.Set(0)
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetTracked publishes the tracker size
func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}
