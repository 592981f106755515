package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

// dependency is probed once before the consumers start. A nil Pinger is
// skipped so optional sinks do not block startup.
type dependency struct {
	name   string
	pinger pinger
}

type ServiceParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Dependencies []dependency
	Consumers    map[string]consumer
}

type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	dependencies []dependency
	consumers    map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("%s consumer is required", name)
		}
	}
	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		dependencies: params.Dependencies,
		consumers:    params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	var err error
	for _, dep := range s.dependencies {
		if dep.pinger == nil {
			continue
		}
		if pingErr := dep.pinger.Ping(ctx); pingErr != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), pingErr)
			err = multierr.Append(err, fmt.Errorf("%s ping failed: %w", dep.name, pingErr))
		}
	}
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run starts every consumer and blocks until all of them return. The first
// consumer to fail cancels the rest.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for name, c := range s.consumers {
		wg.Add(1)
		go func(name string, c consumer) {
			defer wg.Done()
			consumerCtx := s.logg.WithField(runCtx, "consumer", name)
			s.logg.Info(consumerCtx, "consumer.started")
			err := c.Run(consumerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(consumerCtx, "consumer stopped unexpectedly", err)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
				return
			}
			s.logg.Info(consumerCtx, "consumer.stopped")
		}(name, c)
	}
	wg.Wait()

	if errs != nil {
		return errs
	}
	return ctx.Err()
}
