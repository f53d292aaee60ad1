package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/towndrop-backend/pkg/bootstrap"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceName)
	if err != nil {
		bootstrap.Fatal(serviceName, "startup failed", err)
	}
	defer rt.Shutdown(context.Background())
	logg := rt.Logger

	pubsubClient, err := pubsub.NewClient(ctx, rt.Config.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		return
	}
	rt.OnClose(pubsubClient.Close)

	service, err := NewService(ServiceParams{
		Config:     rt.Config,
		Logger:     logg,
		DB:         rt.DB,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(rt.DB.DB()),
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		return
	}

	ctx = logg.WithField(ctx, "topic", pubsubClient.Topic())
	logg.Info(ctx, "outbox-publisher.start")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox-publisher.stopped", err)
		return
	}
	logg.Info(ctx, "outbox-publisher.shutdown")
}
