package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/dealerhub/dealer-pricing/api/routes"
	"github.com/dealerhub/dealer-pricing/internal/pricing"
	"github.com/dealerhub/dealer-pricing/internal/promotions"
	"github.com/dealerhub/dealer-pricing/internal/repo"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
	"github.com/dealerhub/dealer-pricing/pkg/migrate"
	"github.com/dealerhub/dealer-pricing/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	deps := routes.Dependencies{DB: dbClient, Clock: time.Now}

	var pricingLock, promotionLock validity.ScopeLocker = validity.NewKeyedLocker(), validity.NewKeyedLocker()
	if cfg.Redis.Enabled {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()

		if pricingLock, err = repo.NewRedisLocker(redisClient, pricing.Kind, cfg.Pricing.ScopeLockTTL); err != nil {
			return err
		}
		if promotionLock, err = repo.NewRedisLocker(redisClient, promotions.Kind, cfg.Pricing.ScopeLockTTL); err != nil {
			return err
		}
		deps.Redis = redisClient
		deps.Idempotency = redisClient
	} else {
		logg.Warn(ctx, "redis disabled: scope locks are process-local and idempotency keys are ignored")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ruleMetrics := metrics.NewRuleMetrics(reg)
	deps.Gatherer = reg

	policy, err := validity.ParsePolicy(cfg.Pricing.ResolutionPolicy)
	if err != nil {
		return err
	}

	deps.Pricing, err = pricing.NewService(pricing.ServiceParams{
		DB:                 dbClient,
		Locker:             pricingLock,
		Policy:             policy,
		AdjustmentLeadDays: cfg.Pricing.AdjustmentLeadDays,
		Metrics:            ruleMetrics,
		Logger:             logg,
	})
	if err != nil {
		return err
	}
	deps.Promotions, err = promotions.NewService(promotions.ServiceParams{
		DB:                 dbClient,
		Locker:             promotionLock,
		Policy:             policy,
		AdjustmentLeadDays: cfg.Pricing.AdjustmentLeadDays,
		Metrics:            ruleMetrics,
		Logger:             logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":               cfg.App.Env,
		"addr":              addr,
		"resolution_policy": string(policy),
		"db_driver":         cfg.DB.Driver,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
