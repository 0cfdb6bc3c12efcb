// Package backup snapshots guild configuration and restores it all or
// nothing. Snapshots are immutable; retention deletes whole snapshots and
// never rewrites one.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"warden/internal/audit"
	"warden/internal/platform/config"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

type Service struct {
	configs    ConfigStore
	snapshots  SnapshotStore
	validate   PayloadValidator
	cfg        config.Backup
	newBackOff func() backoff.BackOff
	recorder   audit.Recorder
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(recorder audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg config.Backup) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithValidator installs a payload check run when a snapshot is taken and
// again before it is restored. The default accepts any payload.
func WithValidator(v PayloadValidator) Option {
	return func(s *Service) {
		if v != nil {
			s.validate = v
		}
	}
}

// WithBackOff overrides the retry policy for configuration reads and
// snapshot saves.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

func New(configs ConfigStore, snapshots SnapshotStore, opts ...Option) (*Service, error) {
	if configs == nil {
		return nil, errors.New("config store is required")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	s := &Service{
		configs:   configs,
		snapshots: snapshots,
		validate:  AcceptAny,
		cfg:       config.Default().Backup,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// AcceptAny treats the payload as opaque bytes. Integrity is covered by the
// snapshot checksum.
func AcceptAny([]byte) error { return nil }

// ValidateJSON accepts any well-formed JSON document. Install it with
// WithValidator for guilds whose configuration is stored as JSON.
func ValidateJSON(payload []byte) error {
	if !json.Valid(payload) {
		return errors.New("payload is not valid JSON")
	}
	return nil
}

// Snapshot captures the current configuration of guildID. Reads and saves are
// retried with backoff; each attempt is bounded by the configured timeout.
func (s *Service) Snapshot(ctx context.Context, guildID string) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.snapshot(ctx, guildID)
	if s.metrics != nil {
		s.metrics.ObserveSnapshot(err, time.Since(start))
	}
	if err != nil {
		s.audit(ctx, audit.Record{
			GuildID: guildID,
			Action:  audit.ActionSnapshotFailed,
			Outcome: audit.OutcomeDenied,
			Detail:  err.Error(),
		})
		return nil, err
	}
	s.audit(ctx, audit.Record{
		GuildID: guildID,
		Action:  audit.ActionSnapshotTaken,
		Outcome: audit.OutcomeAllowed,
		Detail:  fmt.Sprintf("snapshot=%s version=%d bytes=%d", snap.ID, snap.ConfigVersion, len(snap.Payload)),
	})
	return snap, nil
}

func (s *Service) snapshot(ctx context.Context, guildID string) (*Snapshot, error) {
	var current GuildConfig
	err := s.retry(ctx, "read config", guildID, func(ctx context.Context) error {
		var err error
		current, err = s.configs.Read(ctx, guildID)
		return err
	})
	if err != nil {
		return nil, translate(err, "read guild config")
	}

	snap := &Snapshot{
		ID:            uuid.NewString(),
		GuildID:       guildID,
		TakenAt:       requestcontext.Now(ctx).UTC(),
		ConfigVersion: current.Version,
		Payload:       append([]byte(nil), current.Payload...),
	}
	snap.Checksum = Checksum(snap.Payload)
	if err := s.validate(snap.Payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "guild config cannot be restored")
	}

	err = s.retry(ctx, "save snapshot", guildID, func(ctx context.Context) error {
		return s.snapshots.Save(ctx, snap)
	})
	if err != nil {
		return nil, translate(err, "save snapshot")
	}

	if s.cfg.Retain > 0 {
		if n, err := s.snapshots.Prune(ctx, guildID, s.cfg.Retain); err != nil {
			s.logger.WarnContext(ctx, "snapshot retention failed", "guild_id", guildID, "error", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "old snapshots pruned", "guild_id", guildID, "deleted", n)
		}
	}
	return snap, nil
}

// retry runs op with a per-attempt timeout until it succeeds, the policy gives
// up, or ctx ends. Not-found is permanent.
func (s *Service) retry(ctx context.Context, what, guildID string, op func(context.Context) error) error {
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout())
		defer cancel()
		err := op(attemptCtx)
		if errors.Is(err, sentinel.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, what+" failed, retrying", "guild_id", guildID, "error", err, "wait", wait)
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(s.newBackOff(), ctx), notify)
}

func (s *Service) timeout() time.Duration {
	if t := s.cfg.Timeout(); t > 0 {
		return t
	}
	return 30 * time.Second
}

// Restore applies a snapshot to guildID. ref is a snapshot id or "latest".
// Everything up to the commit point (load, checksum, validation) can fail or
// be cancelled without touching the configuration; the commit is one Write
// that is no longer cancellable.
func (s *Service) Restore(ctx context.Context, guildID, ref string) (*Snapshot, error) {
	snap, err := s.load(ctx, guildID, ref)
	if err == nil {
		err = s.precommit(snap)
	}
	if err != nil {
		s.audit(ctx, audit.Record{
			GuildID: guildID,
			Action:  audit.ActionRestoreFailed,
			Outcome: audit.OutcomeDenied,
			Detail:  fmt.Sprintf("ref=%s: %v", ref, err),
		})
		s.observeRestore("failed")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		s.audit(ctx, audit.Record{
			GuildID: guildID,
			Action:  audit.ActionRestoreCanceled,
			Outcome: audit.OutcomeDenied,
			Detail:  "snapshot=" + snap.ID,
		})
		s.observeRestore("canceled")
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "restore canceled before commit")
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout())
	defer cancel()
	err = s.configs.Write(commitCtx, guildID, GuildConfig{
		Version: snap.ConfigVersion,
		Payload: append([]byte(nil), snap.Payload...),
	})
	if err != nil {
		s.audit(ctx, audit.Record{
			GuildID: guildID,
			Action:  audit.ActionRestoreFailed,
			Outcome: audit.OutcomeDenied,
			Detail:  fmt.Sprintf("snapshot=%s write: %v", snap.ID, err),
		})
		s.observeRestore("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "write guild config")
	}

	s.audit(ctx, audit.Record{
		GuildID: guildID,
		Action:  audit.ActionRestoreApplied,
		Outcome: audit.OutcomeAllowed,
		Detail:  fmt.Sprintf("snapshot=%s version=%d", snap.ID, snap.ConfigVersion),
	})
	s.observeRestore("applied")
	return snap, nil
}

func (s *Service) load(ctx context.Context, guildID, ref string) (*Snapshot, error) {
	var (
		snap *Snapshot
		err  error
	)
	if ref == "" || ref == LatestRef {
		snap, err = s.snapshots.Latest(ctx, guildID)
	} else {
		if _, perr := uuid.Parse(ref); perr != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "snapshot ref must be a snapshot id or latest")
		}
		snap, err = s.snapshots.Get(ctx, guildID, ref)
	}
	if err != nil {
		return nil, translate(err, "load snapshot")
	}
	if snap.GuildID != guildID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "snapshot belongs to another guild")
	}
	return snap, nil
}

func (s *Service) precommit(snap *Snapshot) error {
	if !snap.Verify() {
		return dErrors.New(dErrors.CodeInvariantViolation, "snapshot checksum mismatch")
	}
	if err := s.validate(snap.Payload); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "snapshot payload rejected")
	}
	return nil
}

// List returns guildID's snapshots, newest first.
func (s *Service) List(ctx context.Context, guildID string) ([]*Snapshot, error) {
	snaps, err := s.snapshots.List(ctx, guildID)
	if err != nil {
		return nil, translate(err, "list snapshots")
	}
	return snaps, nil
}

func (s *Service) audit(ctx context.Context, r audit.Record) {
	if r.ActorID == "" {
		r.ActorID = requestcontext.ActorID(ctx)
	}
	if r.ActorID == "" {
		r.ActorID = "system"
	}
	audit.Log(ctx, s.logger, s.recorder, r)
}

func (s *Service) observeRestore(result string) {
	if s.metrics != nil {
		s.metrics.IncRestore(result)
	}
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}
