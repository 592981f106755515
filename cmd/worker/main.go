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

	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/internal/sideeffects"
	"github.com/angelmondragon/threadline-backend/pkg/bigquery"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/angelmondragon/threadline-backend/pkg/pubsub"
	"github.com/angelmondragon/threadline-backend/pkg/redis"
	"github.com/angelmondragon/threadline-backend/pkg/sendgrid"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	// Email and analytics are optional sinks; their events are acknowledged
	// without work when the client is absent.
	var mailer sendgrid.Sender
	if sg, err := sendgrid.NewClient(cfg.Sendgrid, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "sendgrid disabled")
	} else {
		mailer = sg
	}

	var analytics interface {
		InsertOrderEvents(ctx context.Context, rows ...bigquery.OrderEventRow) error
	}
	var analyticsPinger pinger
	if bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "bigquery disabled")
	} else {
		analytics = bq
		analyticsPinger = bq
		defer func() {
			if err := bq.Close(); err != nil {
				logg.Error(ctx, "error closing bigquery client", err)
			}
		}()
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	promRegistry := prometheus.NewRegistry()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(promRegistry)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), redisClient, fulfillmentMetrics, logg)
	requireResource(ctx, logg, "notifications service", err)

	notificationConsumer, err := notifications.NewConsumer(notificationService, pubsubClient.NotificationSubscription(), eventRegistry.Decoders(), manager, logg)
	requireResource(ctx, logg, "notification consumer", err)

	paymentService, err := payments.NewService(payments.NewRepository(dbClient.DB()), dbClient)
	requireResource(ctx, logg, "payments service", err)

	sideEffects, err := sideeffects.NewConsumer(sideeffects.Deps{
		Payments:     paymentService,
		Mailer:       mailer,
		Analytics:    analytics,
		Templates:    map[string]string{"order_confirmation": cfg.Sendgrid.OrderConfirmationTemplate},
		Subscription: pubsubClient.OrdersSubscription(),
		Decoders:     eventRegistry.Decoders(),
		Idempotency:  manager,
		Logger:       logg,
	})
	requireResource(ctx, logg, "side effects consumer", err)

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		Dependencies: []dependency{
			{name: "database", pinger: dbClient},
			{name: "redis", pinger: redisClient},
			{name: "pubsub", pinger: pubsubClient},
			{name: "bigquery", pinger: analyticsPinger},
		},
		Consumers: map[string]consumer{
			"notifications": notificationConsumer,
			"side-effects":  sideEffects,
		},
	})
	requireResource(ctx, logg, "worker service", err)

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

	logg.Info(runCtx, "starting worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
