package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/towndrop-backend/api/routes"
	"github.com/angelmondragon/towndrop-backend/internal/catalog"
	"github.com/angelmondragon/towndrop-backend/internal/deliverycode"
	"github.com/angelmondragon/towndrop-backend/internal/orders"
	"github.com/angelmondragon/towndrop-backend/internal/payments"
	momowebhook "github.com/angelmondragon/towndrop-backend/internal/webhooks/momo"
	"github.com/angelmondragon/towndrop-backend/pkg/bootstrap"
	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/momo"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/redis"
)

const (
	serviceName       = "api"
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceName)
	if err != nil {
		bootstrap.Fatal(serviceName, "startup failed", err)
	}
	defer rt.Shutdown(context.Background())
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		return
	}
	rt.OnClose(redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	handler, err := buildHandler(cfg, logg, rt.DB, redisClient, registry, paymentMetrics)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		return
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ctx = logg.WithField(ctx, "addr", server.Addr)

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api.start")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api.stopped", err)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api.shutdown_failed", err)
		return
	}
	logg.Info(ctx, "api.shutdown")
}

func buildHandler(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	paymentMetrics *metrics.PaymentMetrics,
) (http.Handler, error) {
	gdb := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	ledger := payments.NewRepository(gdb)

	catalogService, err := catalog.NewService(catalog.NewRepository(gdb))
	if err != nil {
		return nil, err
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(gdb),
		ledger,
		dbClient,
		outboxService,
		deliverycode.NewAuthority(cfg.Orders.DeliveryCodeTTL),
		paymentMetrics,
		logg,
		cfg.Orders.Currency,
	)
	if err != nil {
		return nil, err
	}

	processor := momo.NewClient(momo.Config{
		ClientID:        cfg.Processor.ClientID,
		ClientSecret:    cfg.Processor.ClientSecret,
		ReceiveMoneyURL: cfg.Processor.ReceiveMoneyURL,
		Timeout:         cfg.Processor.Timeout,
	}, nil, paymentMetrics)

	paymentsService, err := payments.NewService(ledger, dbClient, outboxService, processor, logg, payments.Options{
		Currency:    cfg.Orders.Currency,
		Provider:    cfg.Orders.MomoPaymentProvider,
		CallbackURL: cfg.Processor.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	webhookService, err := momowebhook.NewService(momowebhook.ServiceParams{
		Ledger:            ledger,
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		registry,
		catalogService,
		ordersService,
		paymentsService,
		webhookService,
	), nil
}
