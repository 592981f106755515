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

	"github.com/angelmondragon/threadline-backend/internal/cron"
	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/redis"
)

const lockKeyFormat = "threadline:cron-worker:lock:%s"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(promRegistry)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(promRegistry)

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationService, err := notifications.NewService(notificationsRepo, redisClient, fulfillmentMetrics, logg)
	requireResource(ctx, logg, "notifications service", err)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), dbClient)
	requireResource(ctx, logg, "inventory service", err)

	outboxRetention, err := cron.NewOutboxRetentionJob(dbClient, outbox.NewRepository(dbClient.DB()), cfg.Cron.OutboxRetentionDays, cfg.Outbox.MaxAttempts)
	requireResource(ctx, logg, "outbox retention job", err)

	notificationCleanup, err := cron.NewNotificationCleanupJob(notificationsRepo, cfg.Cron.NotificationRetentionDays)
	requireResource(ctx, logg, "notification cleanup job", err)

	lowStock, err := cron.NewLowStockDigestJob(inventoryService, notificationService)
	requireResource(ctx, logg, "low stock digest job", err)

	// The lease outlives one interval so a slow cycle is not re-entered.
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.Interval+cfg.Cron.Interval/2)
	requireResource(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{outboxRetention, notificationCleanup, lowStock},
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if cfg.Service.MetricsPort != "" {
		go func() {
			if err := metrics.Serve(runCtx, ":"+cfg.Service.MetricsPort, promRegistry, logg); err != nil {
				logg.Error(runCtx, "metrics server stopped", err)
			}
		}()
	}

	logg.Info(runCtx, "starting cron worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
