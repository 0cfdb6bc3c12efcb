package models

import (
	"strings"

	dErrors "warden/pkg/domain-errors"
)

// RateKey identifies one bucket: who is acting, what kind of action, and
// where (usually a guild).
type RateKey struct {
	ActorID  string
	Category Category
	ScopeID  string
}

// NewRateKey creates a RateKey with domain invariant validation.
func NewRateKey(actorID string, category Category, scopeID string) (RateKey, error) {
	if actorID == "" {
		return RateKey{}, dErrors.New(dErrors.CodeInvariantViolation, "actor id cannot be empty")
	}
	if category == "" {
		return RateKey{}, dErrors.New(dErrors.CodeInvariantViolation, "category cannot be empty")
	}
	return RateKey{ActorID: actorID, Category: category, ScopeID: scopeID}, nil
}

// String renders the key as actor:category:scope with each segment sanitized.
func (k RateKey) String() string {
	return SanitizeKeySegment(k.ActorID) + ":" +
		SanitizeKeySegment(string(k.Category)) + ":" +
		SanitizeKeySegment(k.ScopeID)
}

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: An identifier "user:admin" would become "user_admin", preventing
// it from being interpreted as a separate key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
