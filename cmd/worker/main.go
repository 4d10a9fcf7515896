package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/roc-passaporte/backend-passaporte/internal/config"
	"github.com/roc-passaporte/backend-passaporte/internal/events"
	"github.com/roc-passaporte/backend-passaporte/internal/lock"
	"github.com/roc-passaporte/backend-passaporte/internal/notify"
	"github.com/roc-passaporte/backend-passaporte/internal/obs"
	"github.com/roc-passaporte/backend-passaporte/internal/voucher"
)

const (
	taskVoucherSweep    = "voucher:sweep"
	taskWebhookDispatch = "webhook:dispatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "passaporte"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	voucherStore := voucher.NewPGStore(pool)
	bus := &events.Bus{Store: &events.PGStore{Pool: pool}, Log: logger}
	dispatcher := &notify.Dispatcher{
		Store:              &notify.PGStore{Pool: pool},
		Client:             notify.HTTPClient(cfg.WebhookRequestTimeout, cfg.WebhookAllowInsecureTLS),
		BackoffBase:        time.Duration(cfg.WebhookBackoffBaseSec) * time.Second,
		DefaultMaxAttempts: cfg.WebhookDefaultMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskVoucherSweep, func(ctx context.Context, _ *asynq.Task) error {
		// One sweeper at a time across replicas; a contended lock means a
		// peer is already on it, so give up quickly instead of queueing.
		lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return locker.WithLock(lockCtx, "worker:voucher:sweep", cfg.LockTTL, func(ctx context.Context) error {
			cutoff := time.Now().UTC()
			n, err := voucherStore.ExpireBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if obs.VouchersExpiredTotal != nil {
				obs.VouchersExpiredTotal.Add(float64(n))
			}
			logger.Info().Int64("count", n).Time("cutoff", cutoff).Msg("vouchers expired")
			if err := bus.Emit(ctx, events.TopicVoucherExpired, "sweep", map[string]any{
				"count":  n,
				"cutoff": cutoff,
			}); err != nil {
				logger.Error().Err(err).Msg("emit expiry event")
			}
			return nil
		})
	})
	mux.HandleFunc(taskWebhookDispatch, func(ctx context.Context, _ *asynq.Task) error {
		lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return locker.WithLock(lockCtx, "worker:webhook:dispatch", cfg.LockTTL, func(ctx context.Context) error {
			return dispatcher.WorkOnce(ctx, envInt("WEBHOOK_DISPATCH_BATCH", 50))
		})
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register("@every "+cfg.SweepInterval.String(), asynq.NewTask(taskVoucherSweep, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}
	if cfg.WebhookDeliveryEnabled {
		interval := envOrDefault("WEBHOOK_DISPATCH_INTERVAL", "5s")
		if _, err := scheduler.Register("@every "+interval, asynq.NewTask(taskWebhookDispatch, nil)); err != nil {
			logger.Fatal().Err(err).Msg("register dispatch schedule")
		}
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 4),
	})

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "passaporte-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
