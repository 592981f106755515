package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxRetryDelay      = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type store interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type publishMetrics interface {
	ObserveBatch(duration time.Duration, err error)
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLettered(eventType, reason string)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// ServiceParams wires the publisher loop. Metrics and PublisherFactory are
// optional; the factory defaults to the Pub/Sub client's topic publishers.
type ServiceParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               store
	PubSub           topicSource
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          publishMetrics
	PublisherFactory func(topic string) publisher
}

// Service drains outbox_events into Pub/Sub. Each poll claims a batch of rows,
// publishes them one by one, and records every row's outcome in the claiming
// transaction so a crash mid-batch re-delivers instead of losing events.
type Service struct {
	logg         *logger.Logger
	db           store
	pubsub       topicSource
	repo         outboxRepository
	registry     registryResolver
	dlq          dlqRepository
	metrics      publishMetrics
	publishers   *topicPublishers
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	open := params.PublisherFactory
	if open == nil {
		open = func(topic string) publisher {
			if p := params.PubSub.Publisher(topic); p != nil {
				return gcpPublisher{p: p}
			}
			return nil
		}
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		publishers:   newTopicPublishers(open),
		batchSize:    positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(params.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		now:          time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next claim; a short one waits a poll interval. Consecutive batch failures
// double the wait up to maxRetryDelay.
func (s *Service) Run(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	defer s.publishers.stop()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.publisher_stopped")
			return err
		}

		claimed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			failures++
			wait = retryDelay(s.pollInterval, failures)
			s.logg.Error(s.logg.WithField(ctx, "consecutive_failures", failures), "outbox.batch_failed", err)
		case claimed >= s.batchSize:
			failures = 0
			continue
		default:
			failures = 0
			wait = s.pollInterval
		}
		if err := sleepCtx(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows and settles each one. It returns the
// number of rows claimed.
func (s *Service) processBatch(ctx context.Context) (claimed int, err error) {
	started := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveBatch(s.now().Sub(started), err)
		}
	}()

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.settle(ctx, tx, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// delivery is what happened to one outbox row and what must be recorded for it.
type delivery struct {
	event   models.OutboxEvent
	topic   string
	eventID string
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
}

// deliver resolves and publishes one row, then classifies the result. It does
// not touch the database.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		return d
	}
	d.topic, d.eventID = resolved.Descriptor.Topic, resolved.Envelope.EventID

	err = s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		d.outcome = outcomePublished
	case errors.As(err, &nonRetryable):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= s.maxAttempts:
		d.outcome, d.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("gave up after %d publish attempts: %w", event.AttemptCount+1, err)
	default:
		d.outcome, d.err = outcomeRetry, err
	}
	return d
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %s returned no publish result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// settle records a delivery on the claiming transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	eventType := string(d.event.EventType)
	logCtx := s.logg.WithFields(ctx, d.fields())

	switch d.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncPublished(eventType)
		}
		s.logg.Info(logCtx, "outbox.published")

	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox.publish_failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", d.event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncFailed(eventType)
		}

	case outcomeDeadLetter:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox.dead_lettered")
		message := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       d.event.ID,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &message,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      s.now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncDeadLettered(eventType, string(d.reason))
		}
	}
	return nil
}

func (d delivery) fields() map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if d.topic != "" {
		fields["topic"] = d.topic
	}
	if d.eventID != "" {
		fields["event_id"] = d.eventID
	}
	if d.reason != "" {
		fields["error_reason"] = d.reason
	}
	return fields
}

// topicPublishers opens one publisher per topic and keeps it for the life of
// the loop so batching and flow control span polls.
type topicPublishers struct {
	mu      sync.Mutex
	open    func(topic string) publisher
	byTopic map[string]publisher
}

func newTopicPublishers(open func(topic string) publisher) *topicPublishers {
	return &topicPublishers{open: open, byTopic: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byTopic[topic]; ok {
		return p
	}
	p := t.open(topic)
	if p != nil {
		t.byTopic[topic] = p
	}
	return p
}

// stop flushes every publisher that supports it and forgets them all.
func (t *topicPublishers) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, p := range t.byTopic {
		if stopper, ok := p.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(t.byTopic, topic)
	}
}

func retryDelay(base time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func jitter() time.Duration {
	return time.Duration(rand.Int64N(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gcpPublisher adapts *pubsub.Publisher, whose Publish returns a concrete
// result type, to the publisher interface.
type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) Stop() {
	g.p.Stop()
}
