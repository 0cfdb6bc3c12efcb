// Package requestcontext provides transport-independent context accessors for
// values that belong to a single inbound event.
//
// Event sources (gateway handlers, webhook ingress, schedulers) set values;
// guards read them. Keeping this package free of transport imports lets every
// layer depend on it.
//
// Usage in guards (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	guildIDKey     struct{}
	actorIDKey     struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyGuildID     = guildIDKey{}
	ContextKeyActorID     = actorIDKey{}
)

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// EnsureRequestID returns ctx with a fresh request id if none is set.
func EnsureRequestID(ctx context.Context) context.Context {
	if RequestID(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}

// GuildID retrieves the guild the current event belongs to.
func GuildID(ctx context.Context) string {
	if g, ok := ctx.Value(ContextKeyGuildID).(string); ok {
		return g
	}
	return ""
}

// ActorID retrieves the actor that triggered the current event.
func ActorID(ctx context.Context) string {
	if a, ok := ctx.Value(ContextKeyActorID).(string); ok {
		return a
	}
	return ""
}

// WithEventScope injects actor and guild ids into the context.
func WithEventScope(ctx context.Context, actorID, guildID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyActorID, actorID)
	return context.WithValue(ctx, ContextKeyGuildID, guildID)
}

// Now retrieves the event-scoped time from context.
// Falls back to time.Now() if not set (schedulers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Guard unit tests that need deterministic clocks
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// WithActorID injects the acting principal without touching the guild scope.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}
