// Package metrics builds the process-wide Prometheus registry. Each module
// registers its own collectors against it through NewMetrics(reg).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the application registry plus the build info gauge.
type Registry struct {
	*prometheus.Registry
	BuildInfo *prometheus.GaugeVec
}

// New creates a registry with Go runtime and process collectors.
func New(version string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	info := promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_build_info",
		Help: "Constant 1, labelled with the running version",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)
	return &Registry{Registry: reg, BuildInfo: info}
}
