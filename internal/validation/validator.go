// Package validation normalizes and checks administrative inputs before any
// mutation is attempted. Validation is pure; the only collaborator is the
// permission lookup used for capability checks.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"warden/internal/audit"
	dErrors "warden/pkg/domain-errors"
)

// ErrCapabilityDenied marks a request whose actor lacks the required capability.
var ErrCapabilityDenied = errors.New("capability denied")

type Validator struct {
	permissions PermissionLookup
	recorder    audit.Recorder
	logger      *slog.Logger
}

type Option func(*Validator)

func WithPermissionLookup(p PermissionLookup) Option {
	return func(v *Validator) {
		v.permissions = p
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(v *Validator) {
		v.recorder = recorder
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.DiscardHandler)
	}
	return v
}

// Validate normalizes a single field. Failures are *ValidationError.
func (v *Validator) Validate(_ context.Context, f Field) (Value, error) {
	var (
		val Value
		ve  *ValidationError
	)
	switch f.Kind {
	case KindName:
		val, ve = normalizeName(f)
	case KindChannel:
		val, ve = normalizeReference(f, channelMention)
	case KindRole:
		val, ve = normalizeReference(f, roleMention)
	case KindUser:
		val, ve = normalizeReference(f, userMention)
	case KindInt:
		val, ve = normalizeInt(f)
	case KindDuration:
		val, ve = normalizeDuration(f)
	case KindEnum:
		val, ve = normalizeEnum(f)
	default:
		ve = invalid(f.Name, "unknown kind %q", f.Kind)
	}
	if ve != nil {
		return Value{}, ve
	}
	val.Field = f.Name
	val.Kind = f.Kind
	return val, nil
}

// Authorize checks that actorID holds capability in guildID. A denial is
// CodeForbidden wrapping a *ValidationError on the "capability" field; a
// lookup failure is CodeUnavailable and also denies.
func (v *Validator) Authorize(ctx context.Context, actorID, guildID, capability string) error {
	if v.permissions == nil {
		return dErrors.New(dErrors.CodeInternal, "permission lookup not configured")
	}
	ok, err := v.permissions.HasCapability(ctx, actorID, guildID, capability)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "permission lookup failed")
	}
	if !ok {
		audit.Log(ctx, v.logger, v.recorder, audit.Record{
			ActorID: actorID,
			GuildID: guildID,
			Action:  audit.ActionCapabilityDenied,
			Outcome: audit.OutcomeDenied,
			Detail:  "capability=" + capability,
		})
		ve := &ValidationError{Field: "capability", Reason: "actor lacks " + capability}
		return dErrors.Wrap(errors.Join(ErrCapabilityDenied, ve), dErrors.CodeForbidden, "capability denied")
	}
	return nil
}

// ValidateAll checks the capability and then every field. It returns values
// only when everything passes; otherwise every field failure is reported via
// errors.Join under CodeValidation.
func (v *Validator) ValidateAll(ctx context.Context, req Request) (map[string]Value, error) {
	if req.Capability != "" {
		if err := v.Authorize(ctx, req.ActorID, req.GuildID, req.Capability); err != nil {
			return nil, err
		}
	}

	values := make(map[string]Value, len(req.Fields))
	var errs []error
	var failed []string
	for _, f := range req.Fields {
		if _, dup := values[f.Name]; dup {
			errs = append(errs, invalid(f.Name, "duplicate field"))
			failed = append(failed, f.Name)
			continue
		}
		val, err := v.Validate(ctx, f)
		if err != nil {
			errs = append(errs, err)
			failed = append(failed, f.Name)
			continue
		}
		values[f.Name] = val
	}
	if len(errs) > 0 {
		audit.Log(ctx, v.logger, v.recorder, audit.Record{
			ActorID: req.ActorID,
			GuildID: req.GuildID,
			Action:  audit.ActionInputRejected,
			Outcome: audit.OutcomeDenied,
			Detail:  fmt.Sprintf("fields=%s", strings.Join(failed, ",")),
		})
		return nil, dErrors.Wrap(errors.Join(errs...), dErrors.CodeValidation, "validation failed")
	}
	return values, nil
}

// FieldErrors extracts every *ValidationError carried by err.
func FieldErrors(err error) []*ValidationError {
	var out []*ValidationError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ve, ok := e.(*ValidationError); ok {
			out = append(out, ve)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
