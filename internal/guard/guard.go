// Package guard composes the admission and behavioral layers for each kind of
// inbound event. Every event passes the rate limiter first; only admitted
// events reach signature checks, spam scoring or input validation.
package guard

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/antispam"
	"warden/internal/joingate"
	rlmodels "warden/internal/ratelimit/models"
	"warden/internal/signature"
	"warden/internal/validation"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

const tracerName = "warden/guard"

// Components are the layers the guard dispatches to. All are required.
type Components struct {
	Limiter   RateLimiter
	Verifier  SignatureVerifier
	Spam      SpamEngine
	Joins     JoinGate
	Validator CommandValidator
}

type Guard struct {
	limiter   RateLimiter
	verifier  SignatureVerifier
	spam      SpamEngine
	joins     JoinGate
	validator CommandValidator

	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

func New(c Components, opts ...Option) (*Guard, error) {
	switch {
	case c.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	case c.Verifier == nil:
		return nil, errors.New("signature verifier is required")
	case c.Spam == nil:
		return nil, errors.New("spam engine is required")
	case c.Joins == nil:
		return nil, errors.New("join gate is required")
	case c.Validator == nil:
		return nil, errors.New("validator is required")
	}
	g := &Guard{
		limiter:   c.Limiter,
		verifier:  c.Verifier,
		spam:      c.Spam,
		joins:     c.Joins,
		validator: c.Validator,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g, nil
}

// HandleWebhook throttles deliveries per source and then authenticates them.
// A throttled delivery is not verified, so it never consumes its replay slot.
func (g *Guard) HandleWebhook(ctx context.Context, payload signature.SignedPayload) (Verdict, error) {
	ctx = requestcontext.EnsureRequestID(ctx)
	ctx, span := g.tracer.Start(ctx, "HandleWebhook", trace.WithAttributes(
		attribute.String("webhook.source", payload.Source),
		attribute.Int("webhook.bytes", len(payload.RawBody)),
	))
	defer span.End()

	verdict, err := g.admit(ctx, "source:"+payload.Source, rlmodels.CategoryWebhook, payload.Source)
	if err != nil || !verdict.Allowed {
		return g.finish(ctx, span, "webhook", verdict, err)
	}

	if err := g.verifier.Verify(ctx, payload); err != nil {
		verdict = Verdict{Allowed: false, Reason: signature.Reason(err), Degraded: verdict.Degraded}
		return g.finish(ctx, span, "webhook", verdict, err)
	}
	return g.finish(ctx, span, "webhook", verdict, nil)
}

// HandleMessage throttles per actor and guild and scores admitted messages.
// The verdict is allowed only when the spam engine also allows the message.
func (g *Guard) HandleMessage(ctx context.Context, ev antispam.MessageEvent) (MessageVerdict, error) {
	ctx = requestcontext.EnsureRequestID(ctx)
	ctx = requestcontext.WithEventScope(ctx, ev.ActorID, ev.GuildID)
	if !ev.Timestamp.IsZero() {
		ctx = requestcontext.WithTime(ctx, ev.Timestamp)
	}
	ctx, span := g.tracer.Start(ctx, "HandleMessage", trace.WithAttributes(
		attribute.String("guild.id", ev.GuildID),
		attribute.String("actor.id", ev.ActorID),
	))
	defer span.End()

	verdict, err := g.admit(ctx, ev.ActorID, rlmodels.CategoryMessage, ev.GuildID)
	if err != nil || !verdict.Allowed {
		v, err := g.finish(ctx, span, "message", verdict, err)
		return MessageVerdict{Verdict: v}, err
	}

	decision := g.spam.Observe(ctx, ev)
	span.SetAttributes(
		attribute.String("spam.action", string(decision.Action)),
		attribute.Float64("spam.score", decision.Score),
	)
	verdict.Allowed = decision.Action == antispam.ActionAllow
	verdict.Reason = string(decision.Action)
	v, err := g.finish(ctx, span, "message", verdict, nil)
	return MessageVerdict{Verdict: v, Spam: decision}, err
}

// HandleJoin evaluates a member join. Joins are not rate limited: burst
// detection is the join gate's own job and throttling would hide the burst.
func (g *Guard) HandleJoin(ctx context.Context, ev joingate.JoinEvent) joingate.GateDecision {
	ctx = requestcontext.EnsureRequestID(ctx)
	ctx = requestcontext.WithEventScope(ctx, ev.UserID, ev.GuildID)
	ctx, span := g.tracer.Start(ctx, "HandleJoin", trace.WithAttributes(
		attribute.String("guild.id", ev.GuildID),
	))
	defer span.End()

	decision := g.joins.OnJoin(ctx, ev)
	span.SetAttributes(
		attribute.String("join.action", string(decision.Action)),
		attribute.Bool("join.lockdown", decision.Lockdown),
	)
	if g.metrics != nil {
		g.metrics.IncEvent("join", string(decision.Action))
	}
	return decision
}

// HandleCommand throttles per actor and guild, then checks the capability and
// validates every field. Values are returned only when all of them pass.
func (g *Guard) HandleCommand(ctx context.Context, req validation.Request) (CommandVerdict, error) {
	ctx = requestcontext.EnsureRequestID(ctx)
	ctx = requestcontext.WithEventScope(ctx, req.ActorID, req.GuildID)
	ctx, span := g.tracer.Start(ctx, "HandleCommand", trace.WithAttributes(
		attribute.String("guild.id", req.GuildID),
		attribute.String("command.capability", req.Capability),
		attribute.Int("command.fields", len(req.Fields)),
	))
	defer span.End()

	verdict, err := g.admit(ctx, req.ActorID, rlmodels.CategoryCommand, req.GuildID)
	if err != nil || !verdict.Allowed {
		v, err := g.finish(ctx, span, "command", verdict, err)
		return CommandVerdict{Verdict: v}, err
	}

	values, err := g.validator.ValidateAll(ctx, req)
	if err != nil {
		verdict.Allowed = false
		verdict.Reason = ReasonInvalid
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			verdict.Reason = ReasonForbidden
		}
		v, err := g.finish(ctx, span, "command", verdict, err)
		return CommandVerdict{Verdict: v}, err
	}
	v, err := g.finish(ctx, span, "command", verdict, nil)
	return CommandVerdict{Verdict: v, Values: values}, err
}

func (g *Guard) admit(ctx context.Context, actorID string, category rlmodels.Category, scopeID string) (Verdict, error) {
	key, err := rlmodels.NewRateKey(actorID, category, scopeID)
	if err != nil {
		return Verdict{Allowed: false, Reason: ReasonInvalid}, err
	}
	res := g.limiter.Check(ctx, key, 1, requestcontext.Now(ctx))
	if !res.Allowed {
		return Verdict{Allowed: false, Reason: ReasonRateLimited, RetryAfter: res.RetryAfter, Degraded: res.Degraded}, nil
	}
	return Verdict{Allowed: true, Reason: ReasonOK, Degraded: res.Degraded}, nil
}

func (g *Guard) finish(ctx context.Context, span trace.Span, kind string, v Verdict, err error) (Verdict, error) {
	span.SetAttributes(
		attribute.Bool("guard.allowed", v.Allowed),
		attribute.String("guard.reason", v.Reason),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, v.Reason)
		if dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeInternal) {
			g.logger.ErrorContext(ctx, "guard dependency failed", "kind", kind, "error", err)
		}
	}
	if g.metrics != nil {
		g.metrics.IncEvent(kind, v.Reason)
	}
	return v, err
}
