package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/towndrop-backend/api/controllers"
	catalogcontrollers "github.com/angelmondragon/towndrop-backend/api/controllers/catalog"
	ordercontrollers "github.com/angelmondragon/towndrop-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/towndrop-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/towndrop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/towndrop-backend/api/middleware"
	"github.com/angelmondragon/towndrop-backend/internal/catalog"
	"github.com/angelmondragon/towndrop-backend/internal/orders"
	"github.com/angelmondragon/towndrop-backend/internal/payments"
	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/towndrop-backend/pkg/redis"
)

// Cache is the Redis surface the HTTP layer needs: idempotency records,
// delivery-code attempt counters, and a readiness ping.
type Cache interface {
	pkgredis.IdempotencyStore
	middleware.AttemptLimiter
	Ping(context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache Cache,
	gatherer prometheus.Gatherer,
	catalogService catalog.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	momoWebhookService webhookcontrollers.MomoWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		attemptLimiter   middleware.AttemptLimiter
	)
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if cache != nil {
		idempotencyStore = cache
		attemptLimiter = cache
		deps["redis"] = cache
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	idempotent := middleware.Idempotency(idempotencyStore, cfg.Redis.IdempotencyTTL, logg)
	codeAttempts := middleware.DeliveryCodeRateLimit(middleware.CodeAttemptPolicy{
		Limit:  cfg.Orders.CodeAttemptLimit,
		Window: cfg.Orders.CodeAttemptWindow,
	}, attemptLimiter, ordercontrollers.OrderIDParam, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/towns", func(r chi.Router) {
			r.Get("/", catalogcontrollers.ListTowns(catalogService, logg))
			r.Post("/", catalogcontrollers.CreateTown(catalogService, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalogcontrollers.ListProducts(catalogService, logg))
			r.Post("/", catalogcontrollers.CreateProduct(catalogService, logg))
		})

		r.Route("/town-products", func(r chi.Router) {
			r.Get("/", catalogcontrollers.ListTownProducts(catalogService, logg))
			r.Post("/", catalogcontrollers.CreateTownProduct(catalogService, logg))
			r.Get("/{townProductId}", catalogcontrollers.GetTownProduct(catalogService, logg))
			r.Patch("/{townProductId}", catalogcontrollers.UpdateTownProduct(catalogService, logg))
			r.Delete("/{townProductId}", catalogcontrollers.DeleteTownProduct(catalogService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(idempotent).Post("/", ordercontrollers.Create(ordersService, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Get(ordersService, logg))
				r.Patch("/", ordercontrollers.Update(ordersService, logg))
				r.With(idempotent).Post("/items", ordercontrollers.AddItem(ordersService, logg))
				r.Patch("/confirm", ordercontrollers.Confirm(ordersService, logg))
				r.With(codeAttempts).Patch("/complete", ordercontrollers.Complete(ordersService, logg))
				r.Patch("/cod-collected", ordercontrollers.CodCollected(ordersService, logg))
				r.Post("/pay-goods", paymentcontrollers.PayGoods(paymentsService, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/status", paymentcontrollers.Status(paymentsService, logg))
			r.With(middleware.WebhookSecret(cfg.Processor.WebhookSecret, logg)).
				Post("/webhooks/momo", webhookcontrollers.MomoWebhook(momoWebhookService, logg))
		})
	})

	return r
}
