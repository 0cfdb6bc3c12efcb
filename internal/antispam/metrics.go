package antispam

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
	Tracked   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_antispam_decisions_total",
			Help: "Anti-spam decisions, by action",
		}, []string{"action"}),
		Tracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warden_antispam_tracked_actors",
			Help: "Actor and guild pairs with live anti-spam state",
		}),
	}
}

func (m *Metrics) IncDecision(a Action) {
	m.Decisions.WithLabelValues(string(a)).Inc()
}

func (m *Metrics) SetTracked(n int) {
	m.Tracked.Set(float64(n))
}
