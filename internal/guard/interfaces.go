package guard

import (
	"context"
	"time"

	"warden/internal/antispam"
	"warden/internal/joingate"
	rlmodels "warden/internal/ratelimit/models"
	"warden/internal/signature"
	"warden/internal/validation"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

// RateLimiter is the admission throttle.
type RateLimiter interface {
	Check(ctx context.Context, key rlmodels.RateKey, cost int, now time.Time) rlmodels.Result
}

type SignatureVerifier interface {
	Verify(ctx context.Context, payload signature.SignedPayload) error
}

type SpamEngine interface {
	Observe(ctx context.Context, ev antispam.MessageEvent) antispam.Decision
}

type JoinGate interface {
	OnJoin(ctx context.Context, ev joingate.JoinEvent) joingate.GateDecision
}

type CommandValidator interface {
	ValidateAll(ctx context.Context, req validation.Request) (map[string]validation.Value, error)
}
