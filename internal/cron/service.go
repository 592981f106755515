// Package cron runs periodic maintenance jobs: outbox retention, read
// notification cleanup and the low-stock digest for staff.
package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

const defaultInterval = 24 * time.Hour

// Job is one maintenance task. Run returns the number of rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type jobMetrics interface {
	ObserveRun(job string, duration time.Duration, err error)
	AddAffected(job string, rows int64)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  jobMetrics
	Interval time.Duration
}

// Service runs every job once per interval while holding the cluster lock.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  jobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, errors.New("at least one job is required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron.lock_failed", err)
		return
	}
	if !locked {
		s.logg.Info(ctx, "cron.cycle_skipped")
		return
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.unlock_failed", err)
		}
	}()

	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
}

// runJob never propagates a job failure; the next job still runs.
func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	rows, err := job.Run(jobCtx)
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveRun(job.Name(), duration, err)
	}
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": duration.Milliseconds(),
		"rows":        rows,
	})
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.AddAffected(job.Name(), rows)
	}
	s.logg.Info(jobCtx, "cron.job_completed")
}

func retentionCutoff(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}
