package fulfillment

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dispatchMetrics interface {
	IncSideEffect(eventType string)
	IncSideEffectFailure(eventType string)
}

// Dispatcher writes the side effects of an operation to the outbox inside the
// operation's own transaction. The publisher only ever sees rows whose
// business change committed, and a rollback leaves no events behind.
type Dispatcher struct {
	outbox  outboxPublisher
	metrics dispatchMetrics
	logg    *logger.Logger
}

// NewDispatcher wires the dispatcher. metrics may be nil.
func NewDispatcher(publisher outboxPublisher, metrics dispatchMetrics, logg *logger.Logger) (*Dispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{outbox: publisher, metrics: metrics, logg: logg}, nil
}

// Enqueue emits every event on tx. The first failure is returned so the
// caller's transaction rolls back together with the change it describes.
func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error {
	for _, event := range events {
		eventType := string(event.EventType)
		if err := d.outbox.Emit(ctx, tx, event); err != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"event_id":     event.EventID.String(),
				"event_type":   eventType,
				"aggregate_id": event.AggregateID.String(),
			})
			d.logg.Error(logCtx, "side effect enqueue failed", err)
			if d.metrics != nil {
				d.metrics.IncSideEffectFailure(eventType)
			}
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue "+eventType)
		}
	}
	if d.metrics != nil {
		for _, event := range events {
			d.metrics.IncSideEffect(string(event.EventType))
		}
	}
	return nil
}
