package outbox

import (
	"context"
	"encoding/json"
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
	"github.com/angelmondragon/towndrop-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	orderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Source:        "orders",
			Data:          payloads.OrderFulfilledEvent{OrderID: orderID, ItemCount: 2},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderFulfilled, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, envelope.Version)
	assert.Equal(t, "orders", envelope.Source)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.Equal(t, string(enums.EventOrderFulfilled), envelope.EventType)

	var data payloads.OrderFulfilledEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, 2, data.ItemCount)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderSettled})
	require.ErrorIs(t, err, ErrTxRequired)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "order.exploded", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventOrderSettled, AggregateType: "cart", AggregateID: uuid.New()},
		"missing id":        {EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder},
		"unencodable data":  {EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Data: make(chan int)},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := conn.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			assert.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRolledBackWithCaller(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	third := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventPaymentInitiated, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	for _, event := range []models.OutboxEvent{first, second, third} {
		require.NoError(t, repo.Insert(conn, event))
	}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, first.ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, second.ID, errors.New("transient")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, third.ID, errors.New("fatal"), 3)
	}))

	var pending []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "transient", *pending[0].LastError)
	assert.False(t, pending[0].Parked(3))

	var parked models.OutboxEvent
	require.NoError(t, conn.First(&parked, "id = ?", third.ID).Error)
	assert.True(t, parked.Parked(3))
}

func TestDeleteSettledBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * time.Hour)

	event := func(createdAt time.Time, publishedAt *time.Time, attempts int) models.OutboxEvent {
		return models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			CreatedAt:     createdAt,
			PublishedAt:   publishedAt,
			AttemptCount:  attempts,
		}
	}
	oldPublished := event(old, &old, 0)
	recentPublished := event(recent, &recent, 0)
	oldParked := event(old, nil, 10)
	oldPending := event(old, nil, 2)
	for _, e := range []models.OutboxEvent{oldPublished, recentPublished, oldParked, oldPending} {
		require.NoError(t, repo.Insert(conn, e))
	}

	cutoff := now.Add(-30 * 24 * time.Hour)
	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeleteSettledBefore(context.Background(), tx, cutoff, 10, 1)
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeleteSettledBefore(context.Background(), tx, cutoff, 10, 0)
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&remaining).Error)
	ids := []uuid.UUID{}
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{recentPublished.ID, oldPending.ID}, ids)
}

func TestTruncateError(t *testing.T) {
	long := make([]byte, maxLastErrorLen+10)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateError(errors.New(string(long))), maxLastErrorLen)
	assert.Equal(t, "", truncateError(nil))
}
