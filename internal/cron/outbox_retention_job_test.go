package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/towndrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/outbox"
)

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.called)
	assert.True(t, repo.lastCutoff.Equal(now.Add(-defaultOutboxRetention)))
	assert.Equal(t, defaultTerminalAttempts, repo.terminal)
	assert.Equal(t, defaultRetentionChunk, repo.limit)
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestOutboxRetentionJobHonorsParams(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{
		Retention:        72 * time.Hour,
		TerminalAttempts: 4,
	})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, repo.lastCutoff.Equal(now.Add(-72*time.Hour)))
	assert.Equal(t, 4, repo.terminal)
}

func TestOutboxRetentionJobDeletesInChunks(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{chunks: []int64{5, 5, 2}}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{ChunkSize: 5})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, repo.called)
	assert.Equal(t, 5, repo.limit)
}

func TestOutboxRetentionJobStopsWhenCanceled(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{chunks: []int64{5, 5, 5}}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{ChunkSize: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Equal(t, 1, repo.called)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOutboxRetentionJobRequiresDependencies(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	require.Error(t, err)
}

func TestOutboxRetentionJobAgainstRepository(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	now := time.Now().UTC()
	old := now.Add(-45 * 24 * time.Hour)

	published := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderSettled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     old,
		PublishedAt:   &old,
	}
	pending := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     old,
	}
	require.NoError(t, repo.Insert(conn, published))
	require.NoError(t, repo.Insert(conn, pending))

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         gormRunner{db: conn},
		Repository: repo,
	})
	require.NoError(t, err)
	require.NoError(t, jobIface.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test"})
	params.DB = fakeTxRunner{}
	params.Repository = repo
	jobIface, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "expected *outboxRetentionJob, got %T", jobIface)
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	terminal   int
	limit      int
	called     int
	err        error
	// chunks are returned in order; 7 once they run out
	chunks []int64
}

func (f *fakeOutboxRetentionRepo) DeleteSettledBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, terminalAttempts, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.terminal = terminalAttempts
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.chunks) > 0 {
		n := f.chunks[0]
		f.chunks = f.chunks[1:]
		return n, nil
	}
	return 7, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type gormRunner struct {
	db *gorm.DB
}

func (g gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}
