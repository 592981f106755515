package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/threadline-backend/api/controllers"
	"github.com/angelmondragon/threadline-backend/api/middleware"
	"github.com/angelmondragon/threadline-backend/internal/fulfillment"
	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/paymongo"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

// Store backs idempotency replay and rate limiting.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// URLSigner issues short-lived download links for stored artifacts.
type URLSigner interface {
	TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	store Store,
	signer URLSigner,
	checks []controllers.ReadinessCheck,
	fulfillmentSvc fulfillment.Service,
	ordersSvc orders.Service,
	inventorySvc inventory.Service,
	notificationsSvc notifications.Service,
	paymongoSvc paymongo.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	ordersPolicy := middleware.NewRateLimitPolicy("orders", cfg.RateLimit.Window, cfg.RateLimit.OrdersIPLimit, cfg.RateLimit.OrdersUserLimit)
	qrPolicy := middleware.NewRateLimitPolicy("qr_source", cfg.RateLimit.Window, 0, cfg.RateLimit.QRUserLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("paymongo_webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, store, logg)).
			Post("/paymongo", controllers.PaymongoWebhook(paymongoSvc, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RateLimit(ordersPolicy, store, logg)).
				Post("/", controllers.PlaceOrder(fulfillmentSvc, cfg.GCS.MaxUploadMB, logg))
			r.Get("/", controllers.ListOrders(ordersSvc, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersSvc, signer, cfg.GCS.DownloadURLExpiry, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsSvc, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsSvc, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsSvc, logg))
		})

		r.With(middleware.RateLimit(qrPolicy, store, logg)).
			Post("/payments/qr-source", controllers.CreateQRSource(paymongoSvc, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(ordersSvc, logg))
				r.Put("/{orderId}/status", controllers.AdminUpdateStatus(fulfillmentSvc, logg))
				r.Put("/{orderId}/action-date", controllers.AdminSetActionDate(fulfillmentSvc, logg))
				r.Get("/{orderId}/usage", controllers.AdminOrderUsage(inventorySvc, logg))
			})
			r.Post("/payments/{paymentId}/apply", controllers.AdminApplyPayment(fulfillmentSvc, logg))

			r.Route("/materials", func(r chi.Router) {
				r.Get("/", controllers.AdminListMaterials(inventorySvc, logg))
				r.Post("/{materialId}/restock", controllers.AdminRestockMaterial(inventorySvc, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.AdminListNotifications(notificationsSvc, logg))
				r.Post("/read-all", controllers.AdminMarkAllNotificationsRead(notificationsSvc, logg))
				r.Post("/{notificationId}/read", controllers.AdminMarkNotificationRead(notificationsSvc, logg))
			})
		})
	})

	return r
}
