package models

import (
	"time"

	dErrors "warden/pkg/domain-errors"
)

// Category names the kind of action being throttled. Each category may carry
// its own limit; unknown categories use the default.
type Category string

const (
	CategoryWebhook Category = "webhook"
	CategoryCommand Category = "command"
	CategoryMessage Category = "message"
	CategoryAdmin   Category = "admin"
)

// IsValid reports whether c is one of the categories above.
func (c Category) IsValid() bool {
	switch c {
	case CategoryWebhook, CategoryCommand, CategoryMessage, CategoryAdmin:
		return true
	}
	return false
}

// Limit is the token-bucket shape applied to a key.
type Limit struct {
	Capacity        int
	RefillPerSecond float64
}

// Validate checks the limit can admit at least one unit.
func (l Limit) Validate() error {
	if l.Capacity <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "capacity must be positive")
	}
	if l.RefillPerSecond <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "refill rate must be positive")
	}
	return nil
}

// WaitFor returns how long the bucket needs to accumulate deficit tokens.
func (l Limit) WaitFor(deficit float64) time.Duration {
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / l.RefillPerSecond * float64(time.Second))
}

// Bucket is a point-in-time view of one key's state.
// Invariant: 0 <= Tokens <= Capacity.
type Bucket struct {
	Tokens          float64   `json:"tokens"`
	Capacity        int       `json:"capacity"`
	RefillPerSecond float64   `json:"refill_per_second"`
	LastRefill      time.Time `json:"last_refill"`
	// Waiting is the cost of recently denied requests that were told to retry.
	// It only shapes RetryAfter hints; it is never debited from Tokens.
	Waiting float64 `json:"waiting"`
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // zero when allowed
	Remaining  float64       `json:"remaining"`
	Limit      int           `json:"limit"`
	// Degraded is set when the decision came from the local fallback because
	// the shared store was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}
