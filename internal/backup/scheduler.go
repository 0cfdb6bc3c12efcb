package backup

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// GuildLister names the guilds the scheduler snapshots on each run.
type GuildLister interface {
	Guilds(ctx context.Context) ([]string, error)
}

// StaticGuilds is a fixed guild list.
type StaticGuilds []string

func (g StaticGuilds) Guilds(context.Context) ([]string, error) {
	return g, nil
}

// RunReport summarizes one scheduled pass.
type RunReport struct {
	Succeeded int
	Failed    int
}

// Scheduler snapshots every listed guild on a fixed interval. Failures are
// logged and audited by the service and never stop the schedule.
type Scheduler struct {
	service     *Service
	guilds      GuildLister
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithConcurrency bounds how many guilds are snapshotted at once.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewScheduler(service *Service, guilds GuildLister, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if service == nil {
		return nil, errors.New("backup service is required")
	}
	if guilds == nil {
		return nil, errors.New("guild lister is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Scheduler{
		service:     service,
		guilds:      guilds,
		interval:    interval,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// RunOnce snapshots every guild with bounded concurrency.
func (s *Scheduler) RunOnce(ctx context.Context) RunReport {
	guilds, err := s.guilds.Guilds(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list guilds for backup", "error", err)
		return RunReport{}
	}

	var ok, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, guildID := range guilds {
		g.Go(func() error {
			if _, err := s.service.Snapshot(ctx, guildID); err != nil {
				failed.Add(1)
				s.logger.ErrorContext(ctx, "scheduled snapshot failed", "guild_id", guildID, "error", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := RunReport{Succeeded: int(ok.Load()), Failed: int(failed.Load())}
	s.logger.InfoContext(ctx, "scheduled backup run finished", "succeeded", report.Succeeded, "failed", report.Failed)
	return report
}

// Run snapshots on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
