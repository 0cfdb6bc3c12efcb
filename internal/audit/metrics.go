package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit log.
type Metrics struct {
	Recorded       *prometheus.CounterVec
	AppendFailures prometheus.Counter
	Pending        prometheus.Gauge
	BatchLatency   prometheus.Histogram
}

// NewMetrics registers audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_audit_recorded_total",
			Help: "Total number of audit entries recorded, by outcome",
		}, []string{"outcome"}),
		AppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_audit_append_failures_total",
			Help: "Total number of failed sink append attempts",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_audit_pending",
			Help: "Audit entries recorded but not yet persisted",
		}),
		BatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_audit_batch_seconds",
			Help:    "Time to persist one batch including retries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncRecorded(outcome Outcome) {
	m.Recorded.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) IncAppendFailures() {
	m.AppendFailures.Inc()
}

func (m *Metrics) SetPending(n int) {
	m.Pending.Set(float64(n))
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	m.BatchLatency.Observe(d.Seconds())
}
