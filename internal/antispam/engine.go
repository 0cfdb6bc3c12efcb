// Package antispam scores message activity per (actor, guild) and escalates
// through warn and restrict decisions. The engine never mutes anyone itself;
// callers apply the returned decision.
package antispam

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"warden/internal/audit"
	"warden/internal/platform/config"
	"warden/pkg/requestcontext"
)

// negligibleScore is the decayed score below which idle state may be dropped.
const negligibleScore = 0.01

type windowItem struct {
	record      ViolationRecord
	fingerprint uint64
}

type actorState struct {
	mu              sync.Mutex
	state           State
	score           float64
	lastUpdate      time.Time
	restrictedUntil time.Time
	window          []windowItem
	evicted         bool
}

type Engine struct {
	cfg      config.AntiSpam
	states   *xsync.MapOf[stateKey, *actorState]
	recorder audit.Recorder
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithConfig(cfg config.AntiSpam) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:    config.Default().AntiSpam,
		states: xsync.NewMapOf[stateKey, *actorState](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Observe scores ev and returns the decision for it. Events for the same
// actor and guild are applied one at a time in arrival order.
func (e *Engine) Observe(ctx context.Context, ev MessageEvent) Decision {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	key := stateKey{actorID: ev.ActorID, guildID: ev.GuildID}
	for {
		st, _ := e.states.LoadOrCompute(key, func() *actorState {
			return &actorState{lastUpdate: ev.Timestamp}
		})
		st.mu.Lock()
		if st.evicted {
			st.mu.Unlock()
			continue
		}
		d := e.observe(ctx, st, ev)
		st.mu.Unlock()
		if e.metrics != nil {
			e.metrics.IncDecision(d.Action)
		}
		return d
	}
}

// Must be called while holding st.mu.
func (e *Engine) observe(ctx context.Context, st *actorState, ev MessageEvent) Decision {
	now := ev.Timestamp
	if now.Before(st.lastUpdate) {
		now = st.lastUpdate
	}

	if st.state == StateRestricted {
		if now.Before(st.restrictedUntil) {
			d := Decision{
				Action:          ActionDeny,
				Reason:          "restricted until " + st.restrictedUntil.UTC().Format(time.RFC3339),
				Score:           st.score,
				State:           StateRestricted,
				RestrictedUntil: st.restrictedUntil,
			}
			e.audit(ctx, ev, audit.ActionSpamDenied, audit.OutcomeDenied, d.Reason)
			return d
		}
		e.clear(st, now)
		e.audit(ctx, ev, audit.ActionSpamCleared, audit.OutcomeAllowed, "restriction expired")
	}

	st.score = e.decayed(st, now)
	st.lastUpdate = now
	e.evict(st, now)

	fp := fingerprint(ev.Content)
	sig := Signals{Mentions: ev.Mentions + countMentions(ev.Content)}
	sig.Links, sig.LinkDensity = countLinks(ev.Content)
	for _, item := range st.window {
		if item.fingerprint == fp {
			sig.Duplicates++
		}
	}

	contribution, category := e.contribution(sig)
	st.score += contribution
	st.window = append(st.window, windowItem{
		fingerprint: fp,
		record: ViolationRecord{
			ActorID:   ev.ActorID,
			GuildID:   ev.GuildID,
			Category:  category,
			Severity:  int(math.Ceil(contribution)),
			Timestamp: now,
			Evidence:  sig.String(),
		},
	})

	evidence := fmt.Sprintf("score=%.2f events=%d %s", st.score, len(st.window), sig)
	switch {
	case st.score >= e.cfg.RestrictThreshold:
		st.state = StateRestricted
		st.restrictedUntil = now.Add(e.restrictFor(st.score))
		e.audit(ctx, ev, audit.ActionSpamRestricted, audit.OutcomeEscalated, evidence)
		return Decision{
			Action:          ActionRestrict,
			Reason:          fmt.Sprintf("score %.2f reached restrict threshold %.2f", st.score, e.cfg.RestrictThreshold),
			Score:           st.score,
			State:           StateRestricted,
			RestrictedUntil: st.restrictedUntil,
		}
	case st.score >= e.cfg.WarnThreshold:
		if st.state != StateWarned {
			st.state = StateWarned
			e.audit(ctx, ev, audit.ActionSpamWarned, audit.OutcomeEscalated, evidence)
		}
		return Decision{
			Action: ActionWarn,
			Reason: fmt.Sprintf("score %.2f reached warn threshold %.2f", st.score, e.cfg.WarnThreshold),
			Score:  st.score,
			State:  StateWarned,
		}
	}

	if st.state == StateWarned {
		st.state = StateClean
		e.audit(ctx, ev, audit.ActionSpamCleared, audit.OutcomeAllowed, evidence)
	}
	return Decision{Action: ActionAllow, Reason: "below thresholds", Score: st.score, State: StateClean}
}

// contribution weighs one event's signals. Frequency is carried by the
// decaying sum: each event adds the frequency weight, so sustained rates
// converge on weight / (1 - 2^(-interval/halfLife)).
func (e *Engine) contribution(sig Signals) (float64, Category) {
	w := e.cfg.Weights
	parts := []struct {
		category Category
		value    float64
	}{
		{CategoryFrequency, w.Frequency},
		{CategoryDuplicate, w.Duplicate * float64(sig.Duplicates)},
		{CategoryMention, w.Mention * float64(sig.Mentions)},
		{CategoryLink, w.Link * float64(sig.Links) * sig.LinkDensity},
	}
	total := 0.0
	dominant := parts[0]
	for _, p := range parts {
		total += p.value
		if p.value > dominant.value {
			dominant = p
		}
	}
	return total, dominant.category
}

func (e *Engine) decayed(st *actorState, now time.Time) float64 {
	halfLife := e.cfg.DecayHalfLife()
	idle := now.Sub(st.lastUpdate)
	if st.score == 0 || idle <= 0 || halfLife <= 0 {
		return st.score
	}
	return st.score * math.Exp2(-idle.Seconds()/halfLife.Seconds())
}

func (e *Engine) evict(st *actorState, now time.Time) {
	cutoff := now.Add(-e.cfg.Window())
	i := 0
	for i < len(st.window) && !st.window[i].record.Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		st.window = append(st.window[:0], st.window[i:]...)
	}
}

// restrictFor scales the base duration by how far score overshoots the
// threshold, capped at the configured maximum.
func (e *Engine) restrictFor(score float64) time.Duration {
	base := e.cfg.RestrictBase()
	d := time.Duration(float64(base) * score / e.cfg.RestrictThreshold)
	if maxD := e.cfg.RestrictMax(); maxD > 0 && d > maxD {
		d = maxD
	}
	return max(d, base)
}

func (e *Engine) clear(st *actorState, now time.Time) {
	st.state = StateClean
	st.score = 0
	st.window = nil
	st.restrictedUntil = time.Time{}
	st.lastUpdate = now
}

func (e *Engine) audit(ctx context.Context, ev MessageEvent, action audit.Action, outcome audit.Outcome, detail string) {
	audit.Log(ctx, e.logger, e.recorder, audit.Record{
		ActorID: ev.ActorID,
		GuildID: ev.GuildID,
		Action:  action,
		Outcome: outcome,
		Detail:  detail,
	})
}

// Status reports the state of an actor as of now without recording an event.
func (e *Engine) Status(actorID, guildID string, now time.Time) Decision {
	st, ok := e.states.Load(stateKey{actorID: actorID, guildID: guildID})
	if !ok {
		return Decision{Action: ActionAllow, State: StateClean}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.evicted || (st.state == StateRestricted && !now.Before(st.restrictedUntil)) {
		return Decision{Action: ActionAllow, State: StateClean}
	}
	d := Decision{Action: ActionAllow, Score: e.decayed(st, now), State: st.state}
	if st.state == StateRestricted {
		d.Action = ActionDeny
		d.RestrictedUntil = st.restrictedUntil
	}
	return d
}

// Window returns the violation records currently held for an actor.
func (e *Engine) Window(actorID, guildID string) []ViolationRecord {
	st, ok := e.states.Load(stateKey{actorID: actorID, guildID: guildID})
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]ViolationRecord, 0, len(st.window))
	for _, item := range st.window {
		out = append(out, item.record)
	}
	return out
}

// Pardon returns an actor to Clean immediately.
func (e *Engine) Pardon(ctx context.Context, actorID, guildID string) bool {
	st, ok := e.states.LoadAndDelete(stateKey{actorID: actorID, guildID: guildID})
	if !ok {
		return false
	}
	st.mu.Lock()
	st.evicted = true
	st.mu.Unlock()
	e.audit(ctx, MessageEvent{ActorID: actorID, GuildID: guildID}, audit.ActionSpamCleared, audit.OutcomeAllowed, "pardoned by operator")
	return true
}

// Sweep drops state that has decayed to nothing and clears expired
// restrictions. It returns the number of entries removed.
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	dropped := 0
	e.states.Range(func(key stateKey, st *actorState) bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.evicted {
			return true
		}
		switch st.state {
		case StateRestricted:
			if now.Before(st.restrictedUntil) {
				return true
			}
			e.audit(ctx, MessageEvent{ActorID: key.actorID, GuildID: key.guildID},
				audit.ActionSpamCleared, audit.OutcomeAllowed, "restriction expired")
		default:
			e.evict(st, now)
			if len(st.window) > 0 || e.decayed(st, now) >= negligibleScore {
				return true
			}
			if st.state == StateWarned {
				e.audit(ctx, MessageEvent{ActorID: key.actorID, GuildID: key.guildID},
					audit.ActionSpamCleared, audit.OutcomeAllowed, "warning decayed")
			}
		}
		st.evicted = true
		e.states.Delete(key)
		dropped++
		return true
	})
	if e.metrics != nil {
		e.metrics.SetTracked(e.states.Size())
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := e.Sweep(ctx, now); n > 0 {
				e.logger.DebugContext(ctx, "antispam state swept", "dropped", n)
			}
		}
	}
}

// Len returns the number of tracked (actor, guild) pairs.
func (e *Engine) Len() int {
	return e.states.Size()
}
