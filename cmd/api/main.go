package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/threadline-backend/api/controllers"
	"github.com/angelmondragon/threadline-backend/api/routes"
	"github.com/angelmondragon/threadline-backend/internal/fulfillment"
	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/internal/paymongo"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
	"github.com/angelmondragon/threadline-backend/pkg/migrate"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	provider "github.com/angelmondragon/threadline-backend/pkg/paymongo"
	"github.com/angelmondragon/threadline-backend/pkg/redis"
	"github.com/angelmondragon/threadline-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(ctx, "error closing gcs client", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(promRegistry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	dispatcher, err := fulfillment.NewDispatcher(outboxService, fulfillmentMetrics, logg)
	requireResource(ctx, logg, "dispatcher", err)

	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), cfg.Fulfillment.OrderNumberAttempts)
	requireResource(ctx, logg, "orders service", err)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), dbClient)
	requireResource(ctx, logg, "inventory service", err)

	paymentsService, err := payments.NewService(payments.NewRepository(dbClient.DB()), dbClient)
	requireResource(ctx, logg, "payments service", err)

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), redisClient, fulfillmentMetrics, logg)
	requireResource(ctx, logg, "notifications service", err)

	defaultMethod, err := enums.ParsePaymentMethod(cfg.Fulfillment.DefaultPaymentMethod)
	requireResource(ctx, logg, "default payment method", err)

	fulfillmentService, err := fulfillment.NewService(fulfillment.Deps{
		Tx:            dbClient,
		Orders:        ordersService,
		Inventory:     inventoryService,
		Payments:      paymentsService,
		Storage:       gcsClient,
		Dispatcher:    dispatcher,
		Metrics:       fulfillmentMetrics,
		Logger:        logg,
		DefaultMethod: defaultMethod,
	})
	requireResource(ctx, logg, "fulfillment service", err)

	// Without a secret key QR sources are refused; webhooks still verify
	// against the webhook secret.
	var paymongoService paymongo.Service
	confirmations := paymongo.NewRepository(dbClient.DB())
	if cfg.PayMongo.Configured() {
		client, err := provider.NewClient(ctx, cfg.PayMongo, logg)
		requireResource(ctx, logg, "paymongo client", err)
		paymongoService, err = paymongo.NewService(client, confirmations, dbClient, dispatcher, cfg.PayMongo.WebhookSecret, logg)
		requireResource(ctx, logg, "paymongo service", err)
	} else {
		logg.Warn(ctx, "paymongo secret key not set; qr sources disabled")
		paymongoService, err = paymongo.NewService(nil, confirmations, dbClient, dispatcher, cfg.PayMongo.WebhookSecret, logg)
		requireResource(ctx, logg, "paymongo service", err)
	}

	checks := []controllers.ReadinessCheck{
		{Name: "database", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
		{Name: "gcs", Pinger: gcsClient},
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("INSTANCE_ID")
	if id == "" {
		id = "local"
	}
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			promRegistry,
			redisClient,
			gcsClient,
			checks,
			fulfillmentService,
			ordersService,
			inventoryService,
			notificationsService,
			paymongoService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(runCtx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
