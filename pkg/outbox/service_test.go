package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

func TestEmitPersistsEnvelope(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventNewOrder,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "7",
			Actor:         &ActorRef{UserID: 3, Role: "buyer"},
			Data:          map[string]int{"order_id": 7},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "7", rows[0].AggregateID)
	require.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, int64(3), envelope.Actor.UserID)
	require.JSONEq(t, `{"order_id":7}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventImportFailed,
			AggregateType: enums.AggregateImportTask,
			AggregateID:   "task",
			Data:          map[string]string{"reason": "x"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	_, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventNewOrder, AggregateID: "1"}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus", AggregateID: "1"}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventNewOrder}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			EventType:     enums.EventNewOrder,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "1",
			Payload:       json.RawMessage(`{}`),
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		return repo.MarkFailedTx(tx, batch[1].ID, errors.New("broker down"))
	}))
	require.Len(t, batch, 3)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), pending)

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", batch[1].ID).Error)
	require.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)

	// rows at the attempt ceiling are skipped
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 1)
		require.Len(t, rows, 1)
		require.Equal(t, batch[2].ID, rows[0].ID)
		return err
	}))

	deleted, err := repo.DeletePublishedBefore(ctx, nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestDLQRepositoryRequeue(t *testing.T) {
	_, conn := dbtest.Client(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	event := models.OutboxEvent{
		EventType:     enums.EventImportCompleted,
		AggregateType: enums.AggregateImportTask,
		AggregateID:   "task-1",
		Payload:       json.RawMessage(`{"version":1}`),
	}
	require.NoError(t, conn.Create(&event).Error)

	msg := strings.Repeat("x", 2000)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := dlq.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	listed, err := dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable})
	require.NoError(t, err)
	require.Empty(t, listed)
	listed, err = dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	freshID, err := dlq.Requeue(ctx, event.ID)
	require.NoError(t, err)
	require.NotEqual(t, event.ID, freshID)
	found, err = dlq.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.Nil(t, found)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", "task-1").Count(&count).Error)
	require.Equal(t, int64(2), count)

	_, err = dlq.Requeue(ctx, event.ID)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestClipUTF8KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "ab", clipUTF8("abé", 3))
	require.Equal(t, "abé", clipUTF8("abé", 4))
}

func TestOpenEnvelope(t *testing.T) {
	env, err := OpenEnvelope([]byte(`{"eventId":"e-1","data":{"order_id":3}}`))
	require.NoError(t, err)
	require.Equal(t, 1, env.Version)
	require.Equal(t, "e-1", env.EventID)

	_, err = OpenEnvelope([]byte(`{"version":2,"data":null}`))
	require.ErrorIs(t, err, errEmptyData)

	_, err = OpenEnvelope([]byte(`[]`))
	require.Error(t, err)
}

func TestDLQRepositoryDeleteFailedBefore(t *testing.T) {
	_, conn := dbtest.Client(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, failedAt := range []time.Time{now.Add(-48 * time.Hour), now} {
		require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventNewOrder,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "9",
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      failedAt,
		}))
	}

	deleted, err := dlq.DeleteFailedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	left, err := dlq.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
}
