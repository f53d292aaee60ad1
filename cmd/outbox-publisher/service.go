package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
	"github.com/angelmondragon/towndrop-backend/pkg/pubsub"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	batchPublishTimeout = 15 * time.Second
	maxBackoff          = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Topic() string
	Publish(context.Context, *gcppubsub.Message) *gcppubsub.PublishResult
	ResumePublish(orderingKey string)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Metrics    *metrics.OutboxMetrics
	// Publisher and Retryable default to the Pub/Sub client and
	// pubsub.IsRetryable.
	Publisher publisher
	Retryable func(error) bool
}

// Service drains the outbox table onto the orders topic. Rows are claimed
// with SKIP LOCKED inside one transaction per batch, so several publishers
// can run side by side.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	metrics     *metrics.OutboxMetrics
	publisher   publisher
	retryable   func(error) bool
	batchSize   int
	maxAttempts int
	interval    time.Duration
}

// permanentError marks failures that no retry will fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// delivery is one row moving through a batch.
type delivery struct {
	event    models.OutboxEvent
	envelope outbox.PayloadEnvelope
	result   publishResult
	err      error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("outbox publisher: config required")
	case params.Logger == nil:
		return nil, errors.New("outbox publisher: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox publisher: database required")
	case params.PubSub == nil:
		return nil, errors.New("outbox publisher: pubsub client required")
	case params.Repository == nil:
		return nil, errors.New("outbox publisher: repository required")
	}

	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		metrics:     params.Metrics,
		publisher:   params.Publisher,
		retryable:   params.Retryable,
		batchSize:   params.Config.Outbox.BatchSize,
		maxAttempts: params.Config.Outbox.MaxAttempts,
		interval:    time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.publisher == nil {
		s.publisher = topicPublisher{client: params.PubSub}
	}
	if s.retryable == nil {
		s.retryable = pubsub.IsRetryable
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.interval <= 0 {
		s.interval = defaultPollInterval
	}
	return s, nil
}

// Run polls until ctx ends. A full batch is followed immediately by the
// next one; an empty poll waits one interval; a failed batch backs off
// exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := s.interval
	for ctx.Err() == nil {
		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = nextBackoff(wait, s.interval, maxBackoff)
		case busy:
			wait = s.interval
			continue
		default:
			wait = s.interval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// processBatch claims up to batchSize rows, hands them all to the publisher
// before waiting on any result, then records each outcome. It reports
// whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		claimed = true

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		batch := make([]*delivery, len(events))
		for i, event := range events {
			batch[i] = s.send(publishCtx, event)
		}

		var errs error
		for _, d := range batch {
			if d.err == nil {
				_, d.err = d.result.Get(publishCtx)
			}
			errs = multierr.Append(errs, s.record(ctx, tx, d))
		}
		return errs
	})
	return claimed, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	switch {
	case err != nil:
		d.err = permanentError{fmt.Errorf("decode envelope: %w", err)}
		return d
	case !event.EventType.IsValid():
		d.err = permanentError{fmt.Errorf("unknown event type %q", event.EventType)}
		return d
	}
	d.envelope = envelope

	d.result = s.publisher.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	})
	if d.result == nil {
		d.err = permanentError{errors.New("publisher unavailable")}
	}
	return d
}

// record writes the outcome of one delivery. Only bookkeeping failures are
// returned; publish failures end up on the row.
func (s *Service) record(ctx context.Context, tx *gorm.DB, d *delivery) error {
	event := d.event
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_id":      d.envelope.EventID,
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount + 1,
	})

	if d.err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Debug(ctx, "outbox.event_published")
		return nil
	}

	s.pubsub.ResumePublish(event.AggregateID.String())

	reason, terminal := s.classify(d.err, event.AttemptCount+1)
	s.metrics.IncFailed(string(event.EventType), terminal)
	ctx = s.logg.WithField(ctx, "error", d.err.Error())
	if !terminal {
		s.logg.Warn(ctx, "outbox.publish_failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		return nil
	}

	s.logg.Warn(s.logg.WithField(ctx, "terminal_reason", reason), "outbox.event_abandoned")
	if err := s.repo.MarkTerminalTx(tx, event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) classify(err error, attempt int) (reason string, terminal bool) {
	var permanent permanentError
	switch {
	case errors.As(err, &permanent), !s.retryable(err):
		return "non_retryable", true
	case attempt >= s.maxAttempts:
		return "max_attempts", true
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}

// topicPublisher adapts the concrete Pub/Sub result to publishResult.
type topicPublisher struct {
	client pubSubClient
}

func (p topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	result := p.client.Publish(ctx, msg)
	if result == nil {
		return nil
	}
	return result
}
