package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Events *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "warden_guard_events_total",
			Help: "Inbound events by kind and final reason",
		}, []string{"kind", "reason"}),
	}
}

func (m *Metrics) IncEvent(kind, reason string) {
	m.Events.WithLabelValues(kind, reason).Inc()
}
