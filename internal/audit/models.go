package audit

import (
	"context"
	"iter"
	"time"
)

// Outcome is the result class of an audited decision.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeDenied    Outcome = "denied"
	OutcomeEscalated Outcome = "escalated"
)

// IsValid checks if the outcome is one of the supported enum values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeAllowed, OutcomeDenied, OutcomeEscalated:
		return true
	}
	return false
}

// Action names a security-relevant decision. Guards use the constants below;
// any non-empty string is accepted.
type Action string

const (
	// Admission layer
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
	ActionRateLimitDegraded Action = "rate_limit_degraded"
	ActionRateLimitReset    Action = "rate_limit_reset"
	ActionSignatureAccepted Action = "signature_accepted"
	ActionSignatureRejected Action = "signature_rejected"
	ActionInputRejected     Action = "input_rejected"
	ActionCapabilityDenied  Action = "capability_denied"

	// Behavioral layer
	ActionSpamWarned      Action = "spam_warned"
	ActionSpamRestricted  Action = "spam_restricted"
	ActionSpamDenied      Action = "spam_denied"
	ActionSpamCleared     Action = "spam_cleared"
	ActionJoinAdmitted    Action = "join_admitted"
	ActionJoinHeld        Action = "join_held"
	ActionJoinRejected    Action = "join_rejected"
	ActionLockdownStarted Action = "lockdown_started"
	ActionLockdownCleared Action = "lockdown_cleared"

	// Recovery
	ActionSnapshotTaken   Action = "snapshot_taken"
	ActionSnapshotFailed  Action = "snapshot_failed"
	ActionRestoreApplied  Action = "restore_applied"
	ActionRestoreFailed   Action = "restore_failed"
	ActionRestoreCanceled Action = "restore_canceled"
)

// Entry is one immutable audit record. SequenceID defines the total order.
type Entry struct {
	SequenceID uint64    `json:"sequence_id"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	GuildID    string    `json:"guild_id,omitempty"`
	Action     Action    `json:"action"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Record carries the caller-supplied fields of an entry. The logger assigns
// SequenceID and, when zero, Timestamp.
type Record struct {
	Timestamp time.Time
	ActorID   string
	GuildID   string
	Action    Action
	Outcome   Outcome
	Detail    string
	RequestID string
}

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	ActorID       string
	GuildID       string
	Action        Action
	Outcome       Outcome
	Since         time.Time // inclusive
	Until         time.Time // exclusive
	AfterSequence uint64
	Limit         int
}

// Matches reports whether e passes every set criterion of f. Limit is not
// considered.
func (f Filter) Matches(e Entry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.GuildID != "" && e.GuildID != f.GuildID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if e.SequenceID <= f.AfterSequence {
		return false
	}
	return true
}

// Sink is the durable log collaborator. Append receives entries in sequence
// order and must be idempotent per SequenceID so batches can be retried.
// Query yields matching entries ordered by SequenceID ascending.
type Sink interface {
	Append(ctx context.Context, entries ...Entry) error
	Query(ctx context.Context, filter Filter) iter.Seq2[Entry, error]
}

// Recorder is the write side consumed by guards.
type Recorder interface {
	Record(ctx context.Context, r Record) Entry
}
