package guard

import (
	"time"

	"warden/internal/antispam"
	"warden/internal/validation"
)

// Reasons reported in a Verdict.
const (
	ReasonOK          = "ok"
	ReasonRateLimited = "rate_limited"
	ReasonInvalid     = "invalid_input"
	ReasonForbidden   = "forbidden"
)

// Verdict is the admission outcome handed to the moderation collaborator.
type Verdict struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	// Degraded is set when the rate limiter answered from its local fallback.
	Degraded bool
}

// MessageVerdict adds the behavioral decision for an admitted message. Spam
// is the zero Decision when the message was throttled before scoring.
type MessageVerdict struct {
	Verdict
	Spam antispam.Decision
}

// CommandVerdict carries the normalized fields of an accepted command.
type CommandVerdict struct {
	Verdict
	Values map[string]validation.Value
}
