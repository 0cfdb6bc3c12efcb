package audit

import (
	"context"
	"log/slog"

	"warden/pkg/requestcontext"
)

// Log writes a structured audit line and records the entry. Actor and guild
// fall back to the event scope carried by ctx. A nil recorder only logs.
func Log(ctx context.Context, logger *slog.Logger, recorder Recorder, r Record) {
	if r.ActorID == "" {
		r.ActorID = requestcontext.ActorID(ctx)
	}
	if r.GuildID == "" {
		r.GuildID = requestcontext.GuildID(ctx)
	}
	if r.RequestID == "" {
		r.RequestID = requestcontext.RequestID(ctx)
	}

	args := []any{
		"actor_id", r.ActorID,
		"outcome", string(r.Outcome),
		"log_type", "audit",
	}
	if r.GuildID != "" {
		args = append(args, "guild_id", r.GuildID)
	}
	if r.Detail != "" {
		args = append(args, "detail", r.Detail)
	}
	if r.RequestID != "" {
		args = append(args, "request_id", r.RequestID)
	}

	if recorder != nil {
		e := recorder.Record(ctx, r)
		args = append(args, "sequence_id", e.SequenceID)
	}
	if logger != nil {
		logger.InfoContext(ctx, string(r.Action), args...)
	}
}
