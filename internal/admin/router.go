package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "warden/internal/jwt_token"
	rlmw "warden/internal/ratelimit/middleware"
	rlmodels "warden/internal/ratelimit/models"
	"warden/pkg/platform/middleware/auth"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/requesttime"
)

// Registrar mounts routes on a router.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the router's collaborators. Metrics, Gatherer and
// Limiter are optional; without a Gatherer /metrics is not mounted and without
// a Limiter operator routes are not throttled. Public registrars are
// mounted outside operator auth and authenticate on their own.
type RouterConfig struct {
	Handler   *Handler
	Public    []Registrar
	Validator auth.TokenValidator
	Gatherer  prometheus.Gatherer
	Metrics   *Metrics
	Limiter   rlmw.Limiter
	Logger    *slog.Logger
	Timeout   time.Duration
}

// NewRouter wires public probes and the token-protected operator routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(LatencyMiddleware(cfg.Metrics))
	}

	r.Get("/healthz", cfg.Handler.HandleHealth)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, p := range cfg.Public {
		p.Register(r)
	}

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(rlmw.New(cfg.Limiter, rlmw.WithLogger(logger)).PerClientIP(rlmodels.CategoryAdmin))
		}
		r.Use(auth.RequireRole(cfg.Validator, jwttoken.RoleOperator, logger))
		r.Use(middleware.Timeout(timeout))
		cfg.Handler.Register(r)
	})
	return r
}
