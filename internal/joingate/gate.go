// Package joingate watches per-guild join velocity, places a guild in
// lockdown when joins burst past a threshold, and gates low-trust accounts
// while the lockdown lasts.
package joingate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"warden/internal/audit"
	"warden/internal/platform/config"
	"warden/pkg/requestcontext"
)

type guildState struct {
	mu       sync.Mutex
	window   []JoinEvent // ordered by JoinedAt, oldest first
	lastSeen time.Time
	lockdown bool
	forced   bool
	since    time.Time
	until    time.Time
	evicted  bool
}

type Gate struct {
	cfg      config.JoinGate
	guilds   *xsync.MapOf[string, *guildState]
	recorder audit.Recorder
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(g *Gate) {
		g.recorder = recorder
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithConfig(cfg config.JoinGate) Option {
	return func(g *Gate) {
		g.cfg = cfg
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{
		cfg:    config.Default().JoinGate,
		guilds: xsync.NewMapOf[string, *guildState](),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// TrustScore rates an account in [0, 1] by age at join relative to the
// configured minimum. Unknown creation time scores 0.
func (g *Gate) TrustScore(ev JoinEvent) float64 {
	if ev.AccountCreatedAt.IsZero() {
		return 0
	}
	minAge := g.cfg.MinAccountAge()
	if minAge <= 0 {
		return 1
	}
	age := ev.JoinedAt.Sub(ev.AccountCreatedAt)
	if age <= 0 {
		return 0
	}
	return min(1, age.Seconds()/minAge.Seconds())
}

// OnJoin records ev in its guild's window and decides admission.
func (g *Gate) OnJoin(ctx context.Context, ev JoinEvent) GateDecision {
	if ev.JoinedAt.IsZero() {
		ev.JoinedAt = requestcontext.Now(ctx)
	}
	st := g.lockState(ev.GuildID, ev.JoinedAt)
	defer st.mu.Unlock()

	now := ev.JoinedAt
	if now.Before(st.lastSeen) {
		now = st.lastSeen
	}
	st.lastSeen = now

	g.expireLockdown(ctx, ev.GuildID, st, now)
	g.evict(st, now)
	inWindow := g.insert(st, ev, now)

	if count := len(st.window); inWindow && count > g.cfg.BurstThreshold {
		if !st.lockdown {
			g.startLockdown(st, now, false, g.cfg.LockdownCooldown())
			g.log(ctx, audit.Record{
				ActorID: "system",
				GuildID: ev.GuildID,
				Action:  audit.ActionLockdownStarted,
				Outcome: audit.OutcomeEscalated,
				Detail:  fmt.Sprintf("joins=%d window=%s threshold=%d", count, g.cfg.Window(), g.cfg.BurstThreshold),
			})
		} else if !st.until.IsZero() {
			// A burst during lockdown pushes expiry out without re-triggering.
			st.until = maxTime(st.until, now.Add(g.cfg.LockdownCooldown()))
		}
	}

	trust := g.TrustScore(ev)
	d := GateDecision{Action: ActionAdmit, TrustScore: trust, Lockdown: st.lockdown}
	switch {
	case !st.lockdown:
		d.Reason = "no lockdown"
	case trust >= g.cfg.MinTrustScore:
		d.Reason = fmt.Sprintf("trust %.2f meets minimum %.2f", trust, g.cfg.MinTrustScore)
	case Strictness(g.cfg.Strictness) == StrictnessReject:
		d.Action = ActionReject
		d.Reason = fmt.Sprintf("lockdown: trust %.2f below minimum %.2f", trust, g.cfg.MinTrustScore)
	default:
		d.Action = ActionHold
		d.Reason = fmt.Sprintf("lockdown: trust %.2f below minimum %.2f", trust, g.cfg.MinTrustScore)
	}

	rec := audit.Record{ActorID: ev.UserID, GuildID: ev.GuildID, Detail: d.Reason}
	switch d.Action {
	case ActionAdmit:
		rec.Action, rec.Outcome = audit.ActionJoinAdmitted, audit.OutcomeAllowed
	case ActionHold:
		rec.Action, rec.Outcome = audit.ActionJoinHeld, audit.OutcomeEscalated
	case ActionReject:
		rec.Action, rec.Outcome = audit.ActionJoinRejected, audit.OutcomeDenied
	}
	g.log(ctx, rec)
	if g.metrics != nil {
		g.metrics.IncDecision(d.Action)
	}
	return d
}

// lockState returns the locked state for guildID, creating it if needed.
func (g *Gate) lockState(guildID string, now time.Time) *guildState {
	for {
		st, _ := g.guilds.LoadOrCompute(guildID, func() *guildState {
			return &guildState{lastSeen: now}
		})
		st.mu.Lock()
		if !st.evicted {
			return st
		}
		st.mu.Unlock()
	}
}

// Must be called while holding st.mu.
func (g *Gate) evict(st *guildState, now time.Time) {
	cutoff := now.Add(-g.cfg.Window())
	i := 0
	for i < len(st.window) && !st.window[i].JoinedAt.After(cutoff) {
		i++
	}
	if i > 0 {
		st.window = append(st.window[:0], st.window[i:]...)
	}
}

// insert places ev in the window ordered by join time. A join that arrives
// after it has already left the horizon is decided but not counted.
// Must be called while holding st.mu.
func (g *Gate) insert(st *guildState, ev JoinEvent, now time.Time) bool {
	if !ev.JoinedAt.After(now.Add(-g.cfg.Window())) {
		return false
	}
	i := sort.Search(len(st.window), func(i int) bool {
		return st.window[i].JoinedAt.After(ev.JoinedAt)
	})
	st.window = slices.Insert(st.window, i, ev)
	return true
}

func (g *Gate) startLockdown(st *guildState, now time.Time, forced bool, d time.Duration) {
	if !st.lockdown {
		st.since = now
		if g.metrics != nil {
			g.metrics.LockdownStarted(forced)
		}
	}
	st.lockdown = true
	st.forced = forced
	st.until = time.Time{}
	if d > 0 {
		st.until = now.Add(d)
	}
}

// expireLockdown clears a lapsed lockdown. Must be called while holding st.mu.
func (g *Gate) expireLockdown(ctx context.Context, guildID string, st *guildState, now time.Time) bool {
	if !st.lockdown || st.until.IsZero() || now.Before(st.until) {
		return false
	}
	g.endLockdown(st)
	g.log(ctx, audit.Record{
		ActorID: "system",
		GuildID: guildID,
		Action:  audit.ActionLockdownCleared,
		Outcome: audit.OutcomeAllowed,
		Detail:  "cooldown elapsed",
	})
	return true
}

func (g *Gate) endLockdown(st *guildState) {
	if st.lockdown && g.metrics != nil {
		g.metrics.LockdownEnded()
	}
	st.lockdown = false
	st.forced = false
	st.since = time.Time{}
	st.until = time.Time{}
}

// Force places guildID in lockdown on an operator's behalf. A zero duration
// holds until Lift.
func (g *Gate) Force(ctx context.Context, guildID, operatorID string, d time.Duration) Status {
	now := requestcontext.Now(ctx)
	st := g.lockState(guildID, now)
	defer st.mu.Unlock()
	g.expireLockdown(ctx, guildID, st, now)
	g.startLockdown(st, now, true, d)
	detail := "forced by operator"
	if d > 0 {
		detail = fmt.Sprintf("forced by operator for %s", d)
	}
	g.log(ctx, audit.Record{
		ActorID: operatorID,
		GuildID: guildID,
		Action:  audit.ActionLockdownStarted,
		Outcome: audit.OutcomeEscalated,
		Detail:  detail,
	})
	return g.status(guildID, st, now)
}

// Lift ends any lockdown on guildID and reports whether one was active.
func (g *Gate) Lift(ctx context.Context, guildID, operatorID string) bool {
	st, ok := g.guilds.Load(guildID)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.evicted || !st.lockdown {
		return false
	}
	g.endLockdown(st)
	g.log(ctx, audit.Record{
		ActorID: operatorID,
		GuildID: guildID,
		Action:  audit.ActionLockdownCleared,
		Outcome: audit.OutcomeAllowed,
		Detail:  "lifted by operator",
	})
	return true
}

// Status reports guildID's gate as of now without changing it.
func (g *Gate) Status(guildID string, now time.Time) Status {
	st, ok := g.guilds.Load(guildID)
	if !ok {
		return Status{GuildID: guildID}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.evicted {
		return Status{GuildID: guildID}
	}
	return g.status(guildID, st, now)
}

func (g *Gate) status(guildID string, st *guildState, now time.Time) Status {
	s := Status{GuildID: guildID}
	cutoff := now.Add(-g.cfg.Window())
	for _, ev := range st.window {
		if ev.JoinedAt.After(cutoff) && !ev.JoinedAt.After(now) {
			s.RecentJoins++
		}
	}
	if st.lockdown && (st.until.IsZero() || now.Before(st.until)) {
		s.Lockdown = true
		s.Forced = st.forced
		s.Since = st.since
		s.Until = st.until
	}
	return s
}

// Sweep clears lapsed lockdowns and drops idle guilds. It returns the number
// of lockdowns cleared.
func (g *Gate) Sweep(ctx context.Context, now time.Time) int {
	cleared := 0
	active := 0
	g.guilds.Range(func(guildID string, st *guildState) bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.evicted {
			return true
		}
		if g.expireLockdown(ctx, guildID, st, now) {
			cleared++
		}
		g.evict(st, now)
		if st.lockdown {
			active++
		} else if len(st.window) == 0 {
			st.evicted = true
			g.guilds.Delete(guildID)
		}
		return true
	})
	if g.metrics != nil {
		g.metrics.SetActive(active)
	}
	return cleared
}

// Run sweeps every interval until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := g.Sweep(ctx, now); n > 0 {
				g.logger.InfoContext(ctx, "lockdowns cleared by sweeper", "count", n)
			}
		}
	}
}

func (g *Gate) log(ctx context.Context, r audit.Record) {
	audit.Log(ctx, g.logger, g.recorder, r)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
