package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Snapshots        *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram
	Restores         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_backup_snapshots_total",
			Help: "Snapshot attempts, by result",
		}, []string{"result"}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_backup_snapshot_duration_seconds",
			Help:    "Time to read and persist one snapshot, retries included",
			Buckets: prometheus.DefBuckets,
		}),
		Restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_backup_restores_total",
			Help: "Restore attempts, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveSnapshot(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Snapshots.WithLabelValues(result).Inc()
	m.SnapshotDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRestore(result string) {
	m.Restores.WithLabelValues(result).Inc()
}
