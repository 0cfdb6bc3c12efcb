package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"warden/internal/ratelimit/models"
	"warden/pkg/platform/httputil"
	metadata "warden/pkg/platform/middleware/metadata"
	"warden/pkg/requestcontext"
)

// Limiter is the subset of the rate limit service the middleware needs.
type Limiter interface {
	Check(ctx context.Context, key models.RateKey, cost int, now time.Time) models.Result
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for local tooling).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(limiter Limiter, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.disabled {
		m.logger.Info("http rate limiting disabled")
	}
	return m
}

// PerClientIP throttles requests by client address under category. Requests
// without a resolvable address share one bucket.
func (m *Middleware) PerClientIP(category models.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)
			if ip == "" {
				ip = "unknown"
			}
			key, err := models.NewRateKey("ip:"+ip, category, "")
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to build rate key", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			result := m.limiter.Check(ctx, key, 1, requestcontext.Now(ctx))
			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.logger.WarnContext(ctx, "http request throttled",
					"category", string(category),
					"request_id", requestcontext.RequestID(ctx),
					"retry_after", result.RetryAfter,
				)
				httputil.WriteRateLimited(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(result.Remaining))))
}
