package signature_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/audit"
	"warden/internal/signature"
	"warden/internal/signature/mocks"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
	wtestutil "warden/pkg/testutil"
)

// =============================================================================
// Signature Verifier Test Suite
// =============================================================================
// Justification for unit tests: check ordering, replay windows and audit
// emission are pure functions of the injected clock and cache.

var secret = []byte("whsec_test")

type VerifierSuite struct {
	suite.Suite
	auditor  *wtestutil.RecordingAuditor
	metrics  *signature.Metrics
	cache    *signature.MemoryReplayCache
	verifier *signature.Verifier
	now      time.Time
	body     []byte
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.auditor = &wtestutil.RecordingAuditor{}
	s.metrics = signature.NewMetrics(prometheus.NewRegistry())
	s.cache = signature.NewMemoryReplayCache(128, time.Hour)
	s.now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.body = []byte(`{"event":"stream.online","channel":"42"}`)

	v, err := signature.New(signature.StaticSecrets{"twitch": secret},
		signature.WithReplayCache(s.cache),
		signature.WithSkew(5*time.Minute),
		signature.WithAuditRecorder(s.auditor),
		signature.WithMetrics(s.metrics),
		signature.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.verifier = v
}

func (s *VerifierSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *VerifierSuite) signed(ts time.Time) signature.SignedPayload {
	return signature.SignedPayload{
		Source:    "twitch",
		RawBody:   s.body,
		Signature: signature.Sign(secret, ts, s.body),
		Timestamp: ts,
	}
}

func (s *VerifierSuite) TestNew() {
	_, err := signature.New(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "secret provider is required")
}

func (s *VerifierSuite) TestAcceptsValidSignature() {
	err := s.verifier.Verify(s.at(s.now), s.signed(s.now))
	s.Require().NoError(err)

	last, ok := s.auditor.Last()
	s.Require().True(ok)
	s.Equal(audit.ActionSignatureAccepted, last.Action)
	s.Equal(audit.OutcomeAllowed, last.Outcome)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Verifications.WithLabelValues("twitch", "ok")))
}

func (s *VerifierSuite) TestAcceptsBareHex() {
	p := s.signed(s.now)
	p.Signature = p.Signature[len("v1="):]
	s.NoError(s.verifier.Verify(s.at(s.now), p))
}

func (s *VerifierSuite) TestRejections() {
	tests := []struct {
		name   string
		mutate func(p *signature.SignedPayload)
		want   error
	}{
		{
			name:   "unknown source",
			mutate: func(p *signature.SignedPayload) { p.Source = "kick" },
			want:   signature.ErrUnknownSource,
		},
		{
			name:   "garbage signature",
			mutate: func(p *signature.SignedPayload) { p.Signature = "v1=not-hex" },
			want:   signature.ErrMalformedSignature,
		},
		{
			name:   "truncated digest",
			mutate: func(p *signature.SignedPayload) { p.Signature = p.Signature[:20] },
			want:   signature.ErrMalformedSignature,
		},
		{
			name:   "missing timestamp",
			mutate: func(p *signature.SignedPayload) { p.Timestamp = time.Time{} },
			want:   signature.ErrMalformedSignature,
		},
		{
			name:   "tampered body",
			mutate: func(p *signature.SignedPayload) { p.RawBody = []byte(`{"event":"stream.offline"}`) },
			want:   signature.ErrDigestMismatch,
		},
		{
			name: "wrong secret",
			mutate: func(p *signature.SignedPayload) {
				p.Signature = signature.Sign([]byte("other"), p.Timestamp, p.RawBody)
			},
			want: signature.ErrDigestMismatch,
		},
		{
			name: "timestamp too old",
			mutate: func(p *signature.SignedPayload) {
				p.Timestamp = p.Timestamp.Add(-6 * time.Minute)
				p.Signature = signature.Sign(secret, p.Timestamp, p.RawBody)
			},
			want: signature.ErrStaleTimestamp,
		},
		{
			name: "timestamp too far ahead",
			mutate: func(p *signature.SignedPayload) {
				p.Timestamp = p.Timestamp.Add(6 * time.Minute)
				p.Signature = signature.Sign(secret, p.Timestamp, p.RawBody)
			},
			want: signature.ErrStaleTimestamp,
		},
		{
			name: "stale and tampered reports stale first",
			mutate: func(p *signature.SignedPayload) {
				p.Timestamp = p.Timestamp.Add(-time.Hour)
				p.RawBody = []byte("x")
			},
			want: signature.ErrStaleTimestamp,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.auditor.Reset()
			p := s.signed(s.now)
			tt.mutate(&p)

			err := s.verifier.Verify(s.at(s.now), p)
			s.Require().Error(err)
			s.ErrorIs(err, tt.want)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

			last, ok := s.auditor.Last()
			s.Require().True(ok, "rejection must be audited")
			s.Equal(audit.ActionSignatureRejected, last.Action)
			s.Equal(audit.OutcomeDenied, last.Outcome)
			s.Equal("reason="+signature.Reason(tt.want), last.Detail)
		})
	}
}

func (s *VerifierSuite) TestReplayWithinWindowRejected() {
	p := s.signed(s.now)
	s.Require().NoError(s.verifier.Verify(s.at(s.now), p))

	err := s.verifier.Verify(s.at(s.now.Add(2*time.Minute)), p)
	s.ErrorIs(err, signature.ErrReplayDetected)
	s.Equal(audit.ActionSignatureRejected, s.auditor.Actions()[1])
}

func (s *VerifierSuite) TestFreshSignatureAfterWindowAccepted() {
	p := s.signed(s.now)
	s.Require().NoError(s.verifier.Verify(s.at(s.now), p))

	later := s.now.Add(6 * time.Minute)
	s.ErrorIs(s.verifier.Verify(s.at(later), p), signature.ErrStaleTimestamp)
	s.NoError(s.verifier.Verify(s.at(later), s.signed(later)))
}

func (s *VerifierSuite) TestFutureTimestampStaysReplayProtected() {
	ahead := s.now.Add(4 * time.Minute)
	p := s.signed(ahead)
	s.Require().NoError(s.verifier.Verify(s.at(s.now), p))

	// Still inside the skew window eight minutes later.
	err := s.verifier.Verify(s.at(s.now.Add(8*time.Minute)), p)
	s.ErrorIs(err, signature.ErrReplayDetected)
}

func (s *VerifierSuite) TestConcurrentDeliveriesAcceptOnce() {
	p := s.signed(s.now)
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.verifier.Verify(s.at(s.now), p) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), accepted.Load())
}

func (s *VerifierSuite) TestWithoutReplayCacheAcceptsRepeats() {
	v, err := signature.New(signature.StaticSecrets{"twitch": secret})
	s.Require().NoError(err)
	p := s.signed(s.now)
	s.NoError(v.Verify(s.at(s.now), p))
	s.NoError(v.Verify(s.at(s.now), p))
}

func TestVerifierCollaboratorFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	body := []byte("{}")
	payload := signature.SignedPayload{
		Source:    "youtube",
		RawBody:   body,
		Signature: signature.Sign(secret, now, body),
		Timestamp: now,
	}

	t.Run("replay cache error rejects as unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cache := mocks.NewMockReplayCache(ctrl)
		cache.EXPECT().
			MarkSeen(gomock.Any(), gomock.Any(), now, 5*time.Minute).
			Return(false, errors.New("connection refused"))
		auditor := &wtestutil.RecordingAuditor{}

		v, err := signature.New(signature.StaticSecrets{"youtube": secret},
			signature.WithReplayCache(cache), signature.WithAuditRecorder(auditor))
		require.NoError(t, err)

		err = v.Verify(ctx, payload)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.Equal(t, []audit.Action{audit.ActionSignatureRejected}, auditor.Actions())
	})

	t.Run("secret lookup error is not an unknown source", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		secrets := mocks.NewMockSecretProvider(ctrl)
		secrets.EXPECT().Secret(gomock.Any(), "youtube").Return(nil, fmt.Errorf("vault: %w", context.DeadlineExceeded))

		v, err := signature.New(secrets)
		require.NoError(t, err)

		err = v.Verify(ctx, payload)
		require.Error(t, err)
		assert.NotErrorIs(t, err, signature.ErrUnknownSource)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestMemoryReplayCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := signature.NewMemoryReplayCache(2, time.Hour)

	first, err := c.MarkSeen(ctx, "a", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, _ = c.MarkSeen(ctx, "a", now.Add(30*time.Second), time.Minute)
	assert.False(t, first, "seen within ttl")

	first, _ = c.MarkSeen(ctx, "a", now.Add(time.Minute), time.Minute)
	assert.True(t, first, "expired at ttl")

	c.MarkSeen(ctx, "b", now, time.Minute)
	c.MarkSeen(ctx, "c", now, time.Minute)
	assert.Equal(t, 2, c.Len(), "bounded by size")
}
