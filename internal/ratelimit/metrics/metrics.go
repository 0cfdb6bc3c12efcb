package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks              *prometheus.CounterVec
	StoreFailures       prometheus.Counter
	FallbackDecisions   prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_checks_total",
			Help: "Total number of rate limit checks, by category and result",
		}, []string{"category", "result"}),
		StoreFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_ratelimit_store_failures_total",
			Help: "Total number of bucket store errors",
		}),
		FallbackDecisions: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_ratelimit_fallback_decisions_total",
			Help: "Total number of decisions served by the local fallback store",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_ratelimit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncCheck(category string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.Checks.WithLabelValues(category, result).Inc()
}

func (m *Metrics) IncStoreFailures() {
	m.StoreFailures.Inc()
}

func (m *Metrics) IncFallbackDecisions() {
	m.FallbackDecisions.Inc()
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
