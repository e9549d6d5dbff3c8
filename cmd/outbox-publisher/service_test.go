package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/kafka"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/registry"
)

func TestDeliverOutcomes(t *testing.T) {
	transient := errors.New("broker unavailable")
	tests := []struct {
		name        string
		attempts    int
		resolveErr  error
		publishErr  error
		wantPublish bool
		wantFailed  bool
		wantReason  enums.OutboxDLQErrorReason
	}{
		{name: "published", wantPublish: true},
		{name: "transient failure is retried", publishErr: transient, wantFailed: true},
		{name: "last attempt is dead-lettered", attempts: 4, publishErr: transient, wantReason: enums.OutboxDLQReasonMaxAttempts},
		{name: "broker rejects for good", publishErr: registry.NewNonRetryableError(errors.New("too large")), wantReason: enums.OutboxDLQReasonNonRetryable},
		{name: "unresolvable row", resolveErr: registry.NewNonRetryableError(errors.New("bad payload")), wantReason: enums.OutboxDLQReasonNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := orderEvent(t, "21")
			event.AttemptCount = tt.attempts
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dlq := &fakeDLQRepo{}
			reg := &fakeRegistry{resolved: orderResolved()}
			if tt.resolveErr != nil {
				reg = &fakeRegistry{err: tt.resolveErr}
			}
			svc := newTestService(t, repo, &fakeProducer{errs: []error{tt.publishErr}}, reg, dlq, nil)

			processed, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, processed)

			require.Equal(t, tt.wantPublish, len(repo.published) == 1, "published")
			require.Equal(t, tt.wantFailed, len(repo.failed) == 1, "failed")
			if tt.wantReason == "" {
				require.Empty(t, dlq.entries)
				require.Empty(t, repo.terminal)
				return
			}
			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			require.Equal(t, event.ID, entry.EventID)
			require.Equal(t, tt.wantReason, entry.ErrorReason)
			require.JSONEq(t, string(event.Payload), string(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
			require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
		})
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first, second := orderEvent(t, "17"), orderEvent(t, "18")
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	prod := &fakeProducer{errs: []error{errors.New("transient"), nil}}
	svc := newTestService(t, repo, prod, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestProcessBatchAbortsOnBookkeepingError(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, "3")}, markErr: errors.New("db gone")}
	svc := newTestService(t, repo, &fakeProducer{}, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)

	_, err := svc.processBatch(context.Background())
	require.ErrorContains(t, err, "mark published")
}

func TestPublishKeysByAggregateAndSetsHeaders(t *testing.T) {
	event := orderEvent(t, "")
	event.EventType = enums.EventImportCompleted
	event.AggregateType = enums.AggregateImportTask
	event.AggregateID = uuid.NewString()
	resolved := orderResolved()
	resolved.Payload = &payloads.ImportCompletedEvent{}
	prod := &fakeProducer{}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, prod, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, prod.sent, 1)

	msg := prod.sent[0]
	require.Equal(t, "events-topic", msg.Topic)
	require.Equal(t, "import_task:"+event.AggregateID, msg.Key)
	require.Equal(t, string(enums.EventImportCompleted), msg.Headers[kafka.HeaderEventType])
	require.Equal(t, event.ID.String(), msg.Headers[kafka.HeaderEventID])
	require.Equal(t, event.AggregateID, msg.Headers["aggregate_id"])
	require.Equal(t, []byte(event.Payload), msg.Value)
}

func TestProcessBatchIdleWhenEmpty(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeProducer{}, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)
	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeProducer{}, &fakeRegistry{}, &fakeDLQRepo{}, &config.OutboxConfig{})
	require.Equal(t, defaultBatchSize, svc.batchSize)
	require.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	require.Equal(t, defaultPollMs*time.Millisecond, svc.pollInterval)
}

func TestBackoffAndJitter(t *testing.T) {
	require.Equal(t, 2*time.Second, nextBackoff(0, time.Second, 10*time.Second))
	require.Equal(t, 10*time.Second, nextBackoff(8*time.Second, time.Second, 10*time.Second))

	for range 20 {
		got := withJitter(time.Second)
		require.GreaterOrEqual(t, got, time.Second)
		require.Less(t, got, time.Second+jitterWindow)
	}
	require.Zero(t, withJitter(0))
}

func TestRunStopsWhenCanceled(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeProducer{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
}

func orderEvent(tb testing.TB, aggregateID string) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventNewOrder,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       payload,
	}
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "events-topic", AggregateType: enums.AggregateOrder},
		Payload:    &payloads.NewOrderEvent{},
	}
}

func newTestService(t *testing.T, repo outboxRepository, prod producer, reg registryResolver, dlq dlqRepository, outboxCfg *config.OutboxConfig) *Service {
	t.Helper()
	cfg := &config.Config{Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 10, MaxAttempts: 5}}
	if outboxCfg != nil {
		cfg.Outbox = *outboxCfg
	}
	svc, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logger.Nop(),
		DB:            fakeDB{},
		Producer:      prod,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
	})
	require.NoError(t, err)
	return svc
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeProducer struct {
	errs []error
	sent []kafka.Message
}

func (f *fakeProducer) Ping(context.Context) error { return nil }

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return err
}

// fakeRegistry echoes the row's identity into the resolved envelope.
type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
