package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"warden/internal/admin"
	"warden/internal/antispam"
	"warden/internal/audit"
	auditmemory "warden/internal/audit/store/memory"
	auditpostgres "warden/internal/audit/store/postgres"
	"warden/internal/audit/stream"
	"warden/internal/backup"
	backupmemory "warden/internal/backup/store/memory"
	backuppostgres "warden/internal/backup/store/postgres"
	"warden/internal/guard"
	"warden/internal/joingate"
	jwttoken "warden/internal/jwt_token"
	"warden/internal/platform/config"
	"warden/internal/platform/httpserver"
	"warden/internal/platform/logger"
	"warden/internal/platform/metrics"
	redisclient "warden/internal/platform/redis"
	rlmetrics "warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/service"
	"warden/internal/ratelimit/store/bucket"
	"warden/internal/signature"
	"warden/internal/validation"
)

var version = "dev"

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 15 * time.Second
)

// main wires the trust and safety core, serves webhook ingress and the
// operator API, and runs the background sweepers and backup schedule until
// SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "warden:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwtSecret is required")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	reg := metrics.New(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	auditLog, closeSink, err := buildAudit(ctx, cfg, db, reg, log)
	if err != nil {
		return err
	}
	defer closeSink()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := auditLog.Close(drainCtx); err != nil {
			log.Error("audit drain failed", "error", err)
		}
	}()

	localBuckets := bucket.New(bucket.WithIdleTTL(cfg.RateLimit.IdleTTL()))
	limiterOpts := []service.Option{
		service.WithConfig(cfg.RateLimit),
		service.WithAuditRecorder(auditLog),
		service.WithLogger(log),
		service.WithMetrics(rlmetrics.New(reg)),
	}
	var buckets service.BucketStore = localBuckets
	if rdb != nil {
		buckets = bucket.NewRedis(rdb.Client, cfg.RateLimit.IdleTTL())
		limiterOpts = append(limiterOpts, service.WithFallback(localBuckets))
	}
	limiter, err := service.New(buckets, limiterOpts...)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var replay signature.ReplayCache = signature.NewMemoryReplayCache(cfg.Signature.ReplayCacheSize, 2*cfg.Signature.Skew())
	if rdb != nil {
		replay = signature.NewRedisReplayCache(rdb.Client)
	}
	verifier, err := signature.New(signature.NewStaticSecrets(cfg.Signature.Secrets),
		signature.WithSkew(cfg.Signature.Skew()),
		signature.WithReplayCache(replay),
		signature.WithAuditRecorder(auditLog),
		signature.WithLogger(log),
		signature.WithMetrics(signature.NewMetrics(reg)),
	)
	if err != nil {
		return fmt.Errorf("signature verifier: %w", err)
	}

	spam := antispam.New(
		antispam.WithConfig(cfg.AntiSpam),
		antispam.WithAuditRecorder(auditLog),
		antispam.WithLogger(log),
		antispam.WithMetrics(antispam.NewMetrics(reg)),
	)
	gate := joingate.New(
		joingate.WithConfig(cfg.JoinGate),
		joingate.WithAuditRecorder(auditLog),
		joingate.WithLogger(log),
		joingate.WithMetrics(joingate.NewMetrics(reg)),
	)
	// Embedders with a live role lookup pass their own PermissionLookup; the
	// server grants what permissions.grants lists.
	validator := validation.New(
		validation.WithPermissionLookup(validation.StaticGrants(cfg.Permissions.Grants)),
		validation.WithAuditRecorder(auditLog),
		validation.WithLogger(log),
	)

	g, err := guard.New(guard.Components{
		Limiter:   limiter,
		Verifier:  verifier,
		Spam:      spam,
		Joins:     gate,
		Validator: validator,
	}, guard.WithLogger(log), guard.WithMetrics(guard.NewMetrics(reg)))
	if err != nil {
		return fmt.Errorf("guard: %w", err)
	}

	backups, scheduler, err := buildBackups(ctx, cfg, db, auditLog, reg, log)
	if err != nil {
		return err
	}

	handlerOpts := []admin.Option{admin.WithLogger(log), admin.WithRateLimits(limiter)}
	if db != nil {
		handlerOpts = append(handlerOpts, admin.WithHealthCheck("postgres", db.PingContext))
	}
	if rdb != nil {
		handlerOpts = append(handlerOpts, admin.WithHealthCheck("redis", rdb.Health))
	}
	handler, err := admin.New(auditLog, backups, gate, handlerOpts...)
	if err != nil {
		return fmt.Errorf("admin handler: %w", err)
	}
	tokens := jwttoken.NewJWTService(cfg.Admin.JWTSecret, "warden", "warden-admin")
	srv := httpserver.New(cfg.Admin.Addr, admin.NewRouter(admin.RouterConfig{
		Handler:   handler,
		Public:    []admin.Registrar{guard.NewWebhookHandler(g, log)},
		Validator: jwttoken.NewJWTServiceAdapter(tokens),
		Gatherer:  reg,
		Metrics:   admin.NewMetrics(reg),
		Limiter:   limiter,
		Logger:    log,
	}))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("warden listening", "addr", cfg.Admin.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		localBuckets.Run(gctx, sweepInterval)
		return nil
	})
	group.Go(func() error {
		spam.Run(gctx, sweepInterval)
		return nil
	})
	group.Go(func() error {
		gate.Run(gctx, sweepInterval)
		return nil
	})
	group.Go(func() error {
		return scheduler.Run(gctx)
	})

	err = group.Wait()
	log.Info("warden stopped", "error", err)
	return err
}

func openPostgres(ctx context.Context, cfg config.Postgres) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// buildAudit selects the durable sink (Postgres when configured), optionally
// mirrors it to Kafka, and resumes numbering after the last stored entry.
func buildAudit(ctx context.Context, cfg *config.Config, db *sql.DB, reg *metrics.Registry, log *slog.Logger) (*audit.Logger, func(), error) {
	var (
		sink        audit.Sink = auditmemory.NewInMemoryStore()
		start       uint64
		closeClient = func() {}
	)
	if db != nil {
		store := auditpostgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("audit schema: %w", err)
		}
		last, err := store.LastSequence(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("audit last sequence: %w", err)
		}
		sink, start = store, last
	} else {
		log.Warn("postgres not configured, audit log is held in memory")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return nil, nil, fmt.Errorf("kafka client: %w", err)
		}
		if err := stream.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
			client.Close()
			return nil, nil, err
		}
		mirror, err := stream.NewMirror(sink, client, cfg.Kafka.AuditTopic, stream.WithLogger(log))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		sink, closeClient = mirror, client.Close
	}

	auditLog, err := audit.New(sink,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithStartSequence(start),
		audit.WithBatchSize(cfg.Audit.BatchSize),
		audit.WithBufferSize(cfg.Audit.BufferSize),
	)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("audit logger: %w", err)
	}
	return auditLog, closeClient, nil
}

func buildBackups(ctx context.Context, cfg *config.Config, db *sql.DB, recorder audit.Recorder, reg *metrics.Registry, log *slog.Logger) (*backup.Service, *backup.Scheduler, error) {
	var (
		configs   backup.ConfigStore
		snapshots backup.SnapshotStore
		guilds    backup.GuildLister
	)
	if db != nil {
		if err := backuppostgres.EnsureSchema(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("backup schema: %w", err)
		}
		cs := backuppostgres.NewConfigStore(db)
		configs, snapshots, guilds = cs, backuppostgres.NewSnapshotStore(db), cs
	} else {
		cs := backupmemory.NewInMemoryConfigStore()
		configs, snapshots, guilds = cs, backupmemory.NewInMemorySnapshotStore(), cs
	}
	if len(cfg.Backup.Guilds) > 0 {
		guilds = backup.StaticGuilds(cfg.Backup.Guilds)
	}

	svc, err := backup.New(configs, snapshots,
		backup.WithConfig(cfg.Backup),
		backup.WithAuditRecorder(recorder),
		backup.WithLogger(log),
		backup.WithMetrics(backup.NewMetrics(reg)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("backup service: %w", err)
	}
	scheduler, err := backup.NewScheduler(svc, guilds, cfg.Backup.Interval(),
		backup.WithSchedulerLogger(log),
		backup.WithConcurrency(cfg.Backup.Concurrency),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("backup scheduler: %w", err)
	}
	return svc, scheduler, nil
}
