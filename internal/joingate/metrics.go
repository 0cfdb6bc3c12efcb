package joingate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions       *prometheus.CounterVec
	LockdownsTotal  *prometheus.CounterVec
	ActiveLockdowns prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_joingate_decisions_total",
			Help: "Join admission decisions, by action",
		}, []string{"action"}),
		LockdownsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_joingate_lockdowns_total",
			Help: "Lockdowns started, by whether an operator forced them",
		}, []string{"forced"}),
		ActiveLockdowns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warden_joingate_active_lockdowns",
			Help: "Guilds currently in lockdown",
		}),
	}
}

func (m *Metrics) IncDecision(a Action) {
	m.Decisions.WithLabelValues(string(a)).Inc()
}

func (m *Metrics) LockdownStarted(forced bool) {
	m.LockdownsTotal.WithLabelValues(strconv.FormatBool(forced)).Inc()
	m.ActiveLockdowns.Inc()
}

func (m *Metrics) LockdownEnded() {
	m.ActiveLockdowns.Dec()
}

func (m *Metrics) SetActive(n int) {
	m.ActiveLockdowns.Set(float64(n))
}
