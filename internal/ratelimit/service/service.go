package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/audit"
	"warden/internal/platform/config"
	"warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/models"
	"warden/pkg/platform/circuit"
)

// Service applies per-category token-bucket limits. It never returns an
// error: when the shared store fails, decisions come from the local fallback
// (or fail open when none is configured) and are marked Degraded.
type Service struct {
	store        BucketStore
	fallback     BucketStore
	breaker      *circuit.Breaker
	defaultLimit models.Limit
	categories   map[models.Category]models.Limit
	recorder     audit.Recorder
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithConfig sets the default and per-category limits.
func WithConfig(cfg config.RateLimit) Option {
	return func(s *Service) {
		s.defaultLimit = models.Limit{Capacity: cfg.Capacity, RefillPerSecond: cfg.RefillPerSecond}
		s.categories = make(map[models.Category]models.Limit, len(cfg.Categories))
		for name := range cfg.Categories {
			b := cfg.For(name)
			s.categories[models.Category(name)] = models.Limit{Capacity: b.Capacity, RefillPerSecond: b.RefillPerSecond}
		}
	}
}

// WithFallback serves decisions from store while the primary is failing.
func WithFallback(store BucketStore) Option {
	return func(s *Service) {
		s.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func New(store BucketStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("bucket store is required")
	}
	def := config.Default().RateLimit
	svc := &Service{store: store}
	WithConfig(def)(svc)
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.defaultLimit.Validate(); err != nil {
		return nil, fmt.Errorf("default limit: %w", err)
	}
	for category, limit := range svc.categories {
		if err := limit.Validate(); err != nil {
			return nil, fmt.Errorf("limit for %s: %w", category, err)
		}
	}
	if svc.breaker == nil {
		svc.breaker = circuit.New("ratelimit")
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.DiscardHandler)
	}
	return svc, nil
}

// LimitFor returns the limit applied to category.
func (s *Service) LimitFor(category models.Category) models.Limit {
	if l, ok := s.categories[category]; ok {
		return l
	}
	return s.defaultLimit
}

// Check refills the bucket for key up to now and debits cost when enough
// tokens are available. Costs below one are treated as one.
func (s *Service) Check(ctx context.Context, key models.RateKey, cost int, now time.Time) models.Result {
	if cost < 1 {
		cost = 1
	}
	limit := s.LimitFor(key.Category)
	k := key.String()

	res, err := s.store.Take(ctx, k, limit, cost, now)
	if err != nil {
		res = s.degraded(ctx, k, limit, cost, now, err)
	} else if usePrimary, change := s.breaker.RecordSuccess(); !usePrimary {
		res = s.serveFallback(ctx, k, limit, cost, now)
	} else if change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCircuitBreakerState(false)
		}
	}

	if s.metrics != nil {
		s.metrics.IncCheck(string(key.Category), res.Allowed)
	}
	if !res.Allowed {
		audit.Log(ctx, s.logger, s.recorder, audit.Record{
			ActorID: key.ActorID,
			GuildID: key.ScopeID,
			Action:  audit.ActionRateLimitExceeded,
			Outcome: audit.OutcomeDenied,
			Detail: fmt.Sprintf("category=%s cost=%d retry_after=%s",
				key.Category, cost, res.RetryAfter.Round(time.Millisecond)),
		})
	}
	return res
}

func (s *Service) degraded(ctx context.Context, key string, limit models.Limit, cost int, now time.Time, cause error) models.Result {
	_, change := s.breaker.RecordFailure()
	if s.metrics != nil {
		s.metrics.IncStoreFailures()
	}
	s.logger.WarnContext(ctx, "rate limit store failed", "error", cause)
	if change.Opened {
		if s.metrics != nil {
			s.metrics.SetCircuitBreakerState(true)
		}
		audit.Log(ctx, s.logger, s.recorder, audit.Record{
			ActorID: "system",
			Action:  audit.ActionRateLimitDegraded,
			Outcome: audit.OutcomeEscalated,
			Detail:  "breaker=" + s.breaker.Name() + " error=" + cause.Error(),
		})
	}
	return s.serveFallback(ctx, key, limit, cost, now)
}

func (s *Service) serveFallback(ctx context.Context, key string, limit models.Limit, cost int, now time.Time) models.Result {
	if s.metrics != nil {
		s.metrics.IncFallbackDecisions()
	}
	if s.fallback == nil {
		return models.Result{Allowed: true, Remaining: float64(limit.Capacity), Limit: limit.Capacity, Degraded: true}
	}
	res, err := s.fallback.Take(ctx, key, limit, cost, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limit fallback failed", "error", err)
		return models.Result{Allowed: true, Remaining: float64(limit.Capacity), Limit: limit.Capacity, Degraded: true}
	}
	res.Degraded = true
	return res
}

// Reset clears the bucket for key in the primary store and the fallback. The
// acting operator is taken from ctx.
func (s *Service) Reset(ctx context.Context, key models.RateKey) error {
	k := key.String()
	if s.fallback != nil {
		_ = s.fallback.Reset(ctx, k)
	}
	if err := s.store.Reset(ctx, k); err != nil {
		return fmt.Errorf("reset bucket: %w", err)
	}
	audit.Log(ctx, s.logger, s.recorder, audit.Record{
		GuildID: key.ScopeID,
		Action:  audit.ActionRateLimitReset,
		Outcome: audit.OutcomeAllowed,
		Detail:  "key=" + k,
	})
	return nil
}
