package guard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/antispam"
	"warden/internal/guard"
	"warden/internal/guard/mocks"
	"warden/internal/joingate"
	rlmodels "warden/internal/ratelimit/models"
	"warden/internal/signature"
	"warden/internal/validation"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

// =============================================================================
// Guard Dispatch Test Suite
// =============================================================================
// Justification for unit tests: the guard owns only ordering between layers.
// Mocks make "this layer was never consulted" an assertion rather than an
// inference from side effects.

type GuardSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	limiter   *mocks.MockRateLimiter
	verifier  *mocks.MockSignatureVerifier
	spam      *mocks.MockSpamEngine
	joins     *mocks.MockJoinGate
	validator *mocks.MockCommandValidator
	metrics   *guard.Metrics
	guard     *guard.Guard
	ctx       context.Context
	now       time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.limiter = mocks.NewMockRateLimiter(s.ctrl)
	s.verifier = mocks.NewMockSignatureVerifier(s.ctrl)
	s.spam = mocks.NewMockSpamEngine(s.ctrl)
	s.joins = mocks.NewMockJoinGate(s.ctrl)
	s.validator = mocks.NewMockCommandValidator(s.ctrl)
	s.metrics = guard.NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	g, err := guard.New(guard.Components{
		Limiter:   s.limiter,
		Verifier:  s.verifier,
		Spam:      s.spam,
		Joins:     s.joins,
		Validator: s.validator,
	}, guard.WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.guard = g
}

func (s *GuardSuite) allow() rlmodels.Result {
	return rlmodels.Result{Allowed: true, Remaining: 2, Limit: 3}
}

func (s *GuardSuite) TestNewRequiresEveryLayer() {
	_, err := guard.New(guard.Components{Limiter: s.limiter})
	s.ErrorContains(err, "signature verifier is required")
	_, err = guard.New(guard.Components{})
	s.ErrorContains(err, "rate limiter is required")
}

func (s *GuardSuite) TestWebhook() {
	payload := signature.SignedPayload{Source: "twitch", RawBody: []byte(`{}`), Signature: "v1=00", Timestamp: s.now}

	s.Run("throttled deliveries are not verified", func() {
		s.limiter.EXPECT().Check(gomock.Any(), rlmodels.RateKey{
			ActorID: "source:twitch", Category: rlmodels.CategoryWebhook, ScopeID: "twitch",
		}, 1, s.now).Return(rlmodels.Result{Allowed: false, RetryAfter: 2 * time.Second})

		v, err := s.guard.HandleWebhook(s.ctx, payload)
		s.NoError(err)
		s.False(v.Allowed)
		s.Equal(guard.ReasonRateLimited, v.Reason)
		s.Equal(2*time.Second, v.RetryAfter)
	})

	s.Run("verification failure is returned with its reason", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, s.now).Return(s.allow())
		s.verifier.EXPECT().Verify(gomock.Any(), payload).
			Return(dErrors.Wrap(signature.ErrReplayDetected, dErrors.CodeUnauthorized, "signature rejected"))

		v, err := s.guard.HandleWebhook(s.ctx, payload)
		s.ErrorIs(err, signature.ErrReplayDetected)
		s.False(v.Allowed)
		s.Equal("replay_detected", v.Reason)
	})

	s.Run("verified deliveries are admitted", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, s.now).Return(s.allow())
		s.verifier.EXPECT().Verify(gomock.Any(), payload).Return(nil)

		v, err := s.guard.HandleWebhook(s.ctx, payload)
		s.NoError(err)
		s.True(v.Allowed)
	})

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Events.WithLabelValues("webhook", guard.ReasonRateLimited)))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Events.WithLabelValues("webhook", guard.ReasonOK)))
}

func (s *GuardSuite) TestMessage() {
	sent := s.now.Add(3 * time.Second)
	ev := antispam.MessageEvent{ActorID: "u1", GuildID: "g1", Content: "hello", Timestamp: sent}

	s.Run("rate limiter clock follows the event timestamp", func() {
		s.limiter.EXPECT().Check(gomock.Any(), rlmodels.RateKey{
			ActorID: "u1", Category: rlmodels.CategoryMessage, ScopeID: "g1",
		}, 1, sent).Return(s.allow())
		s.spam.EXPECT().Observe(gomock.Any(), ev).Return(antispam.Decision{Action: antispam.ActionAllow})

		v, err := s.guard.HandleMessage(s.ctx, ev)
		s.NoError(err)
		s.True(v.Allowed)
	})

	s.Run("throttled messages are not scored", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, sent).Return(rlmodels.Result{Allowed: false, RetryAfter: time.Second})

		v, err := s.guard.HandleMessage(s.ctx, ev)
		s.NoError(err)
		s.False(v.Allowed)
		s.Equal(guard.ReasonRateLimited, v.Reason)
		s.Equal(antispam.Decision{}, v.Spam)
	})

	s.Run("a warning does not admit the message", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, sent).Return(s.allow())
		s.spam.EXPECT().Observe(gomock.Any(), ev).Return(antispam.Decision{Action: antispam.ActionWarn, Score: 6})

		v, err := s.guard.HandleMessage(s.ctx, ev)
		s.NoError(err)
		s.False(v.Allowed)
		s.Equal("warn", v.Reason)
		s.Equal(antispam.ActionWarn, v.Spam.Action)
	})

	s.Run("an empty actor never reaches the limiter", func() {
		_, err := s.guard.HandleMessage(s.ctx, antispam.MessageEvent{GuildID: "g1", Timestamp: sent})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *GuardSuite) TestJoinIsNotThrottled() {
	ev := joingate.JoinEvent{UserID: "u1", GuildID: "g1", JoinedAt: s.now}
	s.joins.EXPECT().OnJoin(gomock.Any(), ev).Return(joingate.GateDecision{Action: joingate.ActionHold, Lockdown: true})

	d := s.guard.HandleJoin(s.ctx, ev)
	s.Equal(joingate.ActionHold, d.Action)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Events.WithLabelValues("join", "hold")))
}

func (s *GuardSuite) TestCommand() {
	req := validation.Request{
		ActorID:    "u1",
		GuildID:    "g1",
		Capability: "manage_config",
		Fields:     []validation.Field{{Name: "prefix", Kind: validation.KindName, Raw: "!"}},
	}

	s.Run("forbidden", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, s.now).Return(s.allow())
		s.validator.EXPECT().ValidateAll(gomock.Any(), req).
			Return(nil, dErrors.Wrap(validation.ErrCapabilityDenied, dErrors.CodeForbidden, "capability denied"))

		v, err := s.guard.HandleCommand(s.ctx, req)
		s.Error(err)
		s.False(v.Allowed)
		s.Equal(guard.ReasonForbidden, v.Reason)
		s.Nil(v.Values)
	})

	s.Run("invalid input", func() {
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, s.now).Return(s.allow())
		s.validator.EXPECT().ValidateAll(gomock.Any(), req).
			Return(nil, dErrors.Wrap(errors.New("prefix: too long"), dErrors.CodeValidation, "input rejected"))

		v, err := s.guard.HandleCommand(s.ctx, req)
		s.Error(err)
		s.Equal(guard.ReasonInvalid, v.Reason)
	})

	s.Run("accepted", func() {
		values := map[string]validation.Value{"prefix": {Field: "prefix", Kind: validation.KindName, Text: "!"}}
		s.limiter.EXPECT().Check(gomock.Any(), gomock.Any(), 1, s.now).Return(s.allow())
		s.validator.EXPECT().ValidateAll(gomock.Any(), req).Return(values, nil)

		v, err := s.guard.HandleCommand(s.ctx, req)
		s.NoError(err)
		s.True(v.Allowed)
		s.Equal(values, v.Values)
	})
}
