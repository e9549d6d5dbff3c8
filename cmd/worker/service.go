package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	ImportWorker         runner
	NotificationConsumer runner
}

// Service supervises the import pool and the notification consumer in one
// process.
type Service struct {
	logg       *logger.Logger
	deps       map[string]pinger
	components map[string]runner
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.ImportWorker == nil:
		return nil, errors.New("import worker is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: map[string]pinger{
			"database": params.DB,
			"redis":    params.Redis,
		},
		components: map[string]runner{
			"importer":      params.ImportWorker,
			"notifications": params.NotificationConsumer,
		},
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", name), "worker.dependency.unavailable", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "worker.dependencies.ready")
	return nil
}

// Run starts every component. The first one to stop with a real error
// cancels the others; that error is returned once all have returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for name, component := range s.components {
		group.Go(func() error {
			err := component.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(s.logg.WithField(ctx, "component", name), "worker.component.failed", err)
				return fmt.Errorf("%s: %w", name, err)
			}
			// a clean return still ends the process
			return context.Canceled
		})
	}

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logg.Info(ctx, "worker.stopped")
	return ctx.Err()
}
