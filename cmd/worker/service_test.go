package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type blockingRunner struct{ stopped chan struct{} }

func (b *blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	close(b.stopped)
	return ctx.Err()
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context) error { return f.err }

func newWorkerService(t *testing.T, db pinger, importer, consumer runner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:               logger.Nop(),
		DB:                   db,
		Redis:                fakePinger{},
		ImportWorker:         importer,
		NotificationConsumer: consumer,
	})
	require.NoError(t, err)
	return svc
}

func TestServiceComponentFailureStopsSiblings(t *testing.T) {
	sibling := &blockingRunner{stopped: make(chan struct{})}
	boom := errors.New("kafka gone")
	svc := newWorkerService(t, fakePinger{}, sibling, failingRunner{err: boom})

	err := svc.Run(context.Background())
	require.ErrorIs(t, err, boom)
	select {
	case <-sibling.stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling kept running")
	}
}

func TestServiceStopsOnCancel(t *testing.T) {
	a := &blockingRunner{stopped: make(chan struct{})}
	b := &blockingRunner{stopped: make(chan struct{})}
	svc := newWorkerService(t, fakePinger{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestServiceRefusesToStartWithoutDatabase(t *testing.T) {
	runner := &blockingRunner{stopped: make(chan struct{})}
	svc := newWorkerService(t, fakePinger{err: errors.New("refused")}, runner, runner)

	require.ErrorContains(t, svc.Run(context.Background()), "database ping failed")
}

func TestNewServiceRequiresComponents(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), DB: fakePinger{}, Redis: fakePinger{}})
	require.Error(t, err)
}
