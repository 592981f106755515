package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const notificationConsumer = "notification-requests"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns notification_requested events into persisted, broadcast notifications.
type Consumer struct {
	svc          Service
	subscription receiver
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a notification request consumer.
func NewConsumer(svc Service, subscription *pubsub.Subscriber, decoders *registry.DecoderRegistry, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:          svc,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	envelope, decoded, err := c.decoders.DecodeMessage(enums.EventNotificationRequested, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode notification request", err)
		return processResult{ack: true}
	}
	payload, ok := decoded.(*payloads.NotificationRequestedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("%T", decoded))
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": eventID.String(),
		"audience": string(payload.Audience),
	})

	skipped, err := c.idempotency.Once(ctx, notificationConsumer, eventID, func(ctx context.Context) error {
		return c.handle(ctx, eventID, payload)
	})
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if pkgerrors.CodeOf(err) == pkgerrors.CodeValidation {
			return processResult{ack: true}
		}
		return processResult{nack: true}
	}
	if skipped {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "notification delivered")
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventID uuid.UUID, payload *payloads.NotificationRequestedEvent) error {
	switch payload.Audience {
	case enums.AudienceUser:
		if payload.UserID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user id missing")
		}
		_, err := c.svc.NotifyUser(ctx, UserNotification{
			UserID:  *payload.UserID,
			OrderID: payload.OrderID,
			Status:  payload.Status,
			Title:   payload.Title,
			Message: payload.Message,
			EventID: &eventID,
		})
		return err
	case enums.AudienceAdmin:
		_, err := c.svc.NotifyAdmin(ctx, AdminNotification{
			Type:    payload.AdminType,
			OrderID: payload.OrderID,
			Message: payload.Message,
			EventID: &eventID,
		})
		return err
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown audience %q", payload.Audience))
	}
}
