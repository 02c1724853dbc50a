package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dealerhub/dealer-pricing/internal/pricing"
	"github.com/dealerhub/dealer-pricing/internal/promotions"
	"github.com/dealerhub/dealer-pricing/internal/sweep"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
	"github.com/dealerhub/dealer-pricing/pkg/migrate"
	"github.com/dealerhub/dealer-pricing/pkg/redis"
)

const lockKeyFormat = "dp:audit-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "audit-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "audit-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var lock sweep.RunLock = &sweep.LocalLock{}
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := sweep.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create audit lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	policy, err := validity.ParsePolicy(cfg.Pricing.ResolutionPolicy)
	if err != nil {
		logg.Error(context.Background(), "invalid resolution policy", err)
		os.Exit(1)
	}

	ruleMetrics := metrics.NewRuleMetrics(prometheus.DefaultRegisterer)
	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)

	pricingSvc, err := pricing.NewService(pricing.ServiceParams{
		DB:      dbClient,
		Locker:  validity.NewKeyedLocker(),
		Policy:  policy,
		Metrics: ruleMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}
	promotionSvc, err := promotions.NewService(promotions.ServiceParams{
		DB:      dbClient,
		Locker:  validity.NewKeyedLocker(),
		Policy:  policy,
		Metrics: ruleMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create promotion service", err)
		os.Exit(1)
	}

	registry := sweep.NewRegistry()
	for _, sweeper := range []sweep.Sweeper{pricingSvc, promotionSvc} {
		job, err := sweep.NewAuditJob(sweeper, sweepMetrics, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create audit job", err)
			os.Exit(1)
		}
		registry.Register(job)
	}

	service, err := sweep.NewService(sweep.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Pricing.AuditInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Pricing.AuditInterval.String(),
	})
	logg.Info(ctx, "starting audit worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "audit worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "audit worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
