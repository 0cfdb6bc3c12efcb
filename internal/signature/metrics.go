package signature

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Verifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "warden_signature_verifications_total",
			Help: "Webhook signature verifications, by source and result",
		}, []string{"source", "result"}),
	}
}

func (m *Metrics) IncVerification(source, result string) {
	m.Verifications.WithLabelValues(source, result).Inc()
}
