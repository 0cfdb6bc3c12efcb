package signature

import "errors"

// Rejection reasons. Each is distinct so audit entries and metrics can tell
// them apart; Verify wraps them with a domain code.
var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrDigestMismatch     = errors.New("digest mismatch")
	ErrStaleTimestamp     = errors.New("stale timestamp")
	ErrReplayDetected     = errors.New("replay detected")
	ErrUnknownSource      = errors.New("unknown source")
)

// Reason returns a short label for a Verify error, used in audit detail and
// metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedSignature):
		return "malformed_signature"
	case errors.Is(err, ErrDigestMismatch):
		return "digest_mismatch"
	case errors.Is(err, ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	default:
		return "error"
	}
}
