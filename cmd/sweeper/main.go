package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medicrew/clinic-slot-booking/internal/booking"
	"github.com/medicrew/clinic-slot-booking/internal/config"
	"github.com/medicrew/clinic-slot-booking/internal/db"
	"github.com/medicrew/clinic-slot-booking/internal/logging"
	"github.com/medicrew/clinic-slot-booking/internal/metrics"
	redisclient "github.com/medicrew/clinic-slot-booking/internal/redis"
)

const sweepLeaseName = "booking-sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "sweeper")
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Dur("pending_ttl", cfg.PendingTTL).
		Msg("sweeper starting up")

	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required for the sweeper")
	}

	metrics.Register()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, cfg, logger)
	leaser := redisclient.NewRedisLeaser(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, svc, leaser, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, leaser, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, leaser redisclient.Leaser, logger zerolog.Logger) {
	start := time.Now()

	err := leaser.WithLease(ctx, sweepLeaseName, func(leaseCtx context.Context) error {
		released, err := svc.ReclaimStale(leaseCtx)
		if err != nil {
			return err
		}
		logger.Info().
			Int("seats_released", released).
			Dur("duration", time.Since(start)).
			Msg("sweep run complete")
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLeaseNotAcquired) {
			logger.Debug().Msg("sweep lease held elsewhere, skipping run")
			return
		}
		logger.Error().Err(err).Msg("sweep run error")
	}
}
