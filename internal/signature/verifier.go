// Package signature authenticates inbound webhook payloads from stream
// platforms. A delivery carries a unix timestamp and an HMAC-SHA256 over
// "<timestamp>." + body; the verifier checks shape, freshness, digest and
// replay, in that order.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"warden/internal/audit"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

const versionPrefix = "v1="

// SignedPayload is one inbound webhook delivery as received.
type SignedPayload struct {
	Source    string
	RawBody   []byte
	Signature string
	Timestamp time.Time
}

type Verifier struct {
	secrets  SecretProvider
	replay   ReplayCache
	skew     time.Duration
	recorder audit.Recorder
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(v *Verifier) {
		v.recorder = recorder
	}
}

func WithMetrics(m *Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithSkew sets the accepted distance between the payload timestamp and now.
func WithSkew(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.skew = d
		}
	}
}

// WithReplayCache enables replay rejection.
func WithReplayCache(c ReplayCache) Option {
	return func(v *Verifier) {
		v.replay = c
	}
}

func New(secrets SecretProvider, opts ...Option) (*Verifier, error) {
	if secrets == nil {
		return nil, errors.New("secret provider is required")
	}
	v := &Verifier{
		secrets: secrets,
		skew:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.DiscardHandler)
	}
	return v, nil
}

// Verify authenticates payload. Rejections wrap one of the package sentinels
// with CodeUnauthorized and are always audited. On success the signature is
// remembered until its timestamp leaves the skew window.
func (v *Verifier) Verify(ctx context.Context, payload SignedPayload) error {
	err := v.verify(ctx, payload)
	v.observe(ctx, payload, err)
	return err
}

func (v *Verifier) verify(ctx context.Context, payload SignedPayload) error {
	secret, err := v.secrets.Secret(ctx, payload.Source)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && len(secret) == 0) {
		return dErrors.Wrap(ErrUnknownSource, dErrors.CodeUnauthorized, "no secret for source "+payload.Source)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "load webhook secret")
	}

	provided, err := parseSignature(payload.Signature)
	if err != nil || payload.Timestamp.IsZero() {
		return dErrors.Wrap(ErrMalformedSignature, dErrors.CodeUnauthorized, "signature rejected")
	}

	now := requestcontext.Now(ctx)
	if age := now.Sub(payload.Timestamp); age > v.skew || age < -v.skew {
		return dErrors.Wrap(ErrStaleTimestamp, dErrors.CodeUnauthorized, "signature rejected")
	}

	if !hmac.Equal(provided, digest(secret, payload.Timestamp, payload.RawBody)) {
		return dErrors.Wrap(ErrDigestMismatch, dErrors.CodeUnauthorized, "signature rejected")
	}

	if v.replay != nil {
		ttl := max(payload.Timestamp.Add(v.skew).Sub(now), time.Millisecond)
		first, err := v.replay.MarkSeen(ctx, replayKey(payload.Source, provided), now, ttl)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "replay cache unavailable")
		}
		if !first {
			return dErrors.Wrap(ErrReplayDetected, dErrors.CodeUnauthorized, "signature rejected")
		}
	}
	return nil
}

func (v *Verifier) observe(ctx context.Context, payload SignedPayload, err error) {
	reason := Reason(err)
	if v.metrics != nil {
		v.metrics.IncVerification(payload.Source, reason)
	}
	rec := audit.Record{
		ActorID: "source:" + payload.Source,
		Action:  audit.ActionSignatureAccepted,
		Outcome: audit.OutcomeAllowed,
	}
	if err != nil {
		rec.Action = audit.ActionSignatureRejected
		rec.Outcome = audit.OutcomeDenied
		rec.Detail = "reason=" + reason
	}
	audit.Log(ctx, v.logger, v.recorder, rec)
}

// Sign produces the signature header value for body at ts. Senders and tests
// use it; Verify accepts its output.
func Sign(secret []byte, ts time.Time, body []byte) string {
	return versionPrefix + hex.EncodeToString(digest(secret, ts, body))
}

func digest(secret []byte, ts time.Time, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, versionPrefix)
	if len(s) != hex.EncodedLen(sha256.Size) {
		return nil, fmt.Errorf("signature length %d", len(s))
	}
	return hex.DecodeString(s)
}

func replayKey(source string, sig []byte) string {
	h := blake2b.Sum256(append([]byte(source+"\x00"), sig...))
	return hex.EncodeToString(h[:])
}
