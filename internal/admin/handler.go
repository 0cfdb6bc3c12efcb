// Package admin is the operator HTTP surface: audit queries, snapshots and
// restores, and manual lockdown control. Every route except health and
// metrics requires an operator token.
package admin

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/internal/audit"
	"warden/internal/backup"
	"warden/internal/joingate"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// AuditLog is the read side of the audit logger.
type AuditLog interface {
	Flush(ctx context.Context) error
	Query(ctx context.Context, filter audit.Filter) iter.Seq2[audit.Entry, error]
}

type Backups interface {
	Snapshot(ctx context.Context, guildID string) (*backup.Snapshot, error)
	Restore(ctx context.Context, guildID, ref string) (*backup.Snapshot, error)
	List(ctx context.Context, guildID string) ([]*backup.Snapshot, error)
}

type Lockdowns interface {
	Status(guildID string, now time.Time) joingate.Status
	Force(ctx context.Context, guildID, operatorID string, d time.Duration) joingate.Status
	Lift(ctx context.Context, guildID, operatorID string) bool
}

type RateLimits interface {
	Reset(ctx context.Context, key rlmodels.RateKey) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	audit     AuditLog
	backups   Backups
	lockdowns Lockdowns
	limits    RateLimits
	checks    map[string]HealthCheck
	logger    *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHealthCheck adds a dependency probe to GET /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithRateLimits enables DELETE /ratelimits/{category}/{actorID}.
func WithRateLimits(limits RateLimits) Option {
	return func(h *Handler) {
		h.limits = limits
	}
}

func New(auditLog AuditLog, backups Backups, lockdowns Lockdowns, opts ...Option) (*Handler, error) {
	if auditLog == nil {
		return nil, errors.New("audit log is required")
	}
	if backups == nil {
		return nil, errors.New("backup service is required")
	}
	if lockdowns == nil {
		return nil, errors.New("lockdown controller is required")
	}
	h := &Handler{
		audit:     auditLog,
		backups:   backups,
		lockdowns: lockdowns,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h, nil
}

// Register mounts the operator endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleQueryAudit)
	r.Route("/backups/{guildID}", func(r chi.Router) {
		r.Get("/", h.HandleListSnapshots)
		r.Post("/", h.HandleTakeSnapshot)
		r.Post("/restore", h.HandleRestore)
	})
	r.Route("/guilds/{guildID}/lockdown", func(r chi.Router) {
		r.Get("/", h.HandleLockdownStatus)
		r.Post("/", h.HandleForceLockdown)
		r.Delete("/", h.HandleLiftLockdown)
	})
	if h.limits != nil {
		r.Delete("/ratelimits/{category}/{actorID}", h.HandleResetRateLimit)
	}
}

// HandleQueryAudit handles GET /audit.
func (h *Handler) HandleQueryAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := ParseAuditFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := h.audit.Flush(flushCtx); err != nil {
		h.logger.WarnContext(ctx, "audit flush before query incomplete",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	cancel()

	resp := AuditEntriesResponse{Entries: make([]audit.Entry, 0, min(filter.Limit, defaultPageSize))}
	for e, err := range h.audit.Query(ctx, filter) {
		if err != nil {
			h.logger.ErrorContext(ctx, "audit query failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit query failed"))
			return
		}
		resp.Entries = append(resp.Entries, e)
	}
	if n := len(resp.Entries); n > 0 && n == filter.Limit {
		resp.NextAfter = resp.Entries[n-1].SequenceID
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleListSnapshots handles GET /backups/{guildID}.
func (h *Handler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	snaps, err := h.backups.List(ctx, guildID)
	if err != nil {
		h.fail(ctx, w, "list snapshots failed", guildID, err)
		return
	}
	resp := SnapshotsListResponse{Snapshots: make([]SnapshotResponse, 0, len(snaps)), Total: len(snaps)}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, FromSnapshot(s))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleTakeSnapshot handles POST /backups/{guildID}.
func (h *Handler) HandleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	snap, err := h.backups.Snapshot(ctx, guildID)
	if err != nil {
		h.fail(ctx, w, "manual snapshot failed", guildID, err)
		return
	}
	h.logger.InfoContext(ctx, "manual snapshot taken",
		"request_id", requestcontext.RequestID(ctx),
		"operator", requestcontext.ActorID(ctx),
		"guild_id", guildID,
		"snapshot_id", snap.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromSnapshot(snap))
}

// HandleRestore handles POST /backups/{guildID}/restore. If the client goes
// away before the commit point the restore is abandoned with no change.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	req, err := httputil.DecodeJSON[RestoreRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Ref == "" {
		req.Ref = backup.LatestRef
	}
	snap, err := h.backups.Restore(ctx, guildID, req.Ref)
	if err != nil {
		h.fail(ctx, w, "restore failed", guildID, err)
		return
	}
	h.logger.InfoContext(ctx, "guild config restored",
		"request_id", requestcontext.RequestID(ctx),
		"operator", requestcontext.ActorID(ctx),
		"guild_id", guildID,
		"snapshot_id", snap.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(snap))
}

// HandleLockdownStatus handles GET /guilds/{guildID}/lockdown.
func (h *Handler) HandleLockdownStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	httputil.WriteJSON(w, http.StatusOK, LockdownResponse{Status: h.lockdowns.Status(guildID, requestcontext.Now(ctx))})
}

// HandleForceLockdown handles POST /guilds/{guildID}/lockdown.
func (h *Handler) HandleForceLockdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	req, err := httputil.DecodeJSON[ForceLockdownRequest](r)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := h.lockdowns.Force(ctx, guildID, requestcontext.ActorID(ctx), req.Duration())
	httputil.WriteJSON(w, http.StatusOK, LockdownResponse{Status: status})
}

// HandleLiftLockdown handles DELETE /guilds/{guildID}/lockdown. Lifting a
// guild that is not locked down succeeds with lifted=false.
func (h *Handler) HandleLiftLockdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guildID")
	lifted := h.lockdowns.Lift(ctx, guildID, requestcontext.ActorID(ctx))
	httputil.WriteJSON(w, http.StatusOK, LockdownResponse{
		Status: h.lockdowns.Status(guildID, requestcontext.Now(ctx)),
		Lifted: lifted,
	})
}

// HandleResetRateLimit handles DELETE /ratelimits/{category}/{actorID}. The
// optional scope query parameter selects the guild or source bucket.
func (h *Handler) HandleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := rlmodels.Category(chi.URLParam(r, "category"))
	scope := r.URL.Query().Get("scope")
	if !category.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown rate limit category"))
		return
	}
	key, err := rlmodels.NewRateKey(chi.URLParam(r, "actorID"), category, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.limits.Reset(ctx, key); err != nil {
		h.fail(ctx, w, "rate limit reset failed", scope, dErrors.Wrap(err, dErrors.CodeUnavailable, "reset rate limit"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RateLimitResetResponse{Key: key.String(), Reset: true})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg, guildID string, err error) {
	level := slog.LevelWarn
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"operator", requestcontext.ActorID(ctx),
		"guild_id", guildID,
		"error", err,
	)
	httputil.WriteError(w, err)
}
