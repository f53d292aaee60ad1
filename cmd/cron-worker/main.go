package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/towndrop-backend/internal/cron"
	"github.com/angelmondragon/towndrop-backend/pkg/bootstrap"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceName)
	if err != nil {
		bootstrap.Fatal(serviceName, "startup failed", err)
	}
	defer rt.Shutdown(context.Background())

	service, err := buildService(ctx, rt)
	if err != nil {
		rt.Logger.Error(ctx, "failed to wire cron worker", err)
		return
	}

	ctx = rt.Logger.WithField(ctx, "interval", rt.Config.Cron.Interval.String())
	rt.Logger.Info(ctx, "cron-worker.start")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(ctx, "cron-worker.stopped", err)
		return
	}
	rt.Logger.Info(ctx, "cron-worker.shutdown")
}

func buildService(ctx context.Context, rt *bootstrap.Runtime) (*cron.Service, error) {
	cfg := rt.Config

	redisClient, err := redis.New(ctx, cfg.Redis, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.OnClose(redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           rt.Logger,
		DB:               rt.DB,
		Repository:       outbox.NewRepository(rt.DB.DB()),
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(retention)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:     rt.Logger,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
}
