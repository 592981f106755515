// Package sideeffects executes the post-commit work of order placement and
// staff actions: registering the submitted payment, sending email, and
// recording analytics rows.
package sideeffects

import (
	"context"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/bigquery"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const consumerName = "order-side-effects"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type paymentRecorder interface {
	RecordPayment(ctx context.Context, params payments.RecordParams) (*models.OrderPayment, error)
}

type mailer interface {
	Send(ctx context.Context, to, templateID string, data map[string]any) error
}

type analyticsSink interface {
	InsertOrderEvents(ctx context.Context, rows ...bigquery.OrderEventRow) error
}

// Deps groups the consumer collaborators. Mailer and Analytics are optional;
// events for an absent sink are acknowledged without work.
type Deps struct {
	Payments     paymentRecorder
	Mailer       mailer
	Analytics    analyticsSink
	Templates    map[string]string
	Subscription *pubsub.Subscriber
	Decoders     *registry.DecoderRegistry
	Idempotency  *idempotency.Manager
	Logger       *logger.Logger
}

// Consumer handles events published on the orders topic.
type Consumer struct {
	payments     paymentRecorder
	mailer       mailer
	analytics    analyticsSink
	templates    map[string]string
	subscription receiver
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer validates deps and builds the consumer.
func NewConsumer(deps Deps) (*Consumer, error) {
	if deps.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if deps.Subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if deps.Decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if deps.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	c := &Consumer{
		payments:     deps.Payments,
		mailer:       deps.Mailer,
		analytics:    deps.Analytics,
		templates:    deps.Templates,
		subscription: deps.Subscription,
		decoders:     deps.Decoders,
		idempotency:  deps.Idempotency,
		logg:         deps.Logger,
	}
	return c, nil
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

func (c *Consumer) handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventPaymentProofSubmitted, enums.EventEmailRequested:
		return true
	case enums.EventOrderPlaced, enums.EventOrderStatusChanged, enums.EventPaymentApplied:
		return c.analytics != nil
	default:
		return false
	}
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if !c.handles(eventType) {
		c.logg.Info(logCtx, "event not handled by side effect consumer")
		return processResult{ack: true}
	}

	envelope, decoded, err := c.decoders.DecodeMessage(eventType, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	skipped, err := c.idempotency.Once(ctx, consumerName, eventID, func(ctx context.Context) error {
		return c.handle(ctx, eventType, eventID, envelope, decoded)
	})
	if err != nil {
		c.logg.Error(logCtx, "side effect failed", err)
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
			return processResult{ack: true}
		default:
			return processResult{nack: true}
		}
	}
	if skipped {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "side effect completed")
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, eventID uuid.UUID, envelope outbox.PayloadEnvelope, decoded any) error {
	switch payload := decoded.(type) {
	case *payloads.PaymentProofSubmittedEvent:
		return c.recordPayment(ctx, eventID, payload)
	case *payloads.EmailRequestedEvent:
		return c.sendEmail(ctx, payload)
	case *payloads.OrderPlacedEvent:
		return c.insert(ctx, placedRow(eventID, envelope, payload))
	case *payloads.OrderStatusChangedEvent:
		return c.insert(ctx, statusRow(eventID, envelope, payload))
	case *payloads.PaymentAppliedEvent:
		return c.insert(ctx, paymentRow(eventID, envelope, payload))
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unexpected payload %T for %s", decoded, eventType))
	}
}

// recordPayment registers the first payment of an order from the proof the
// customer uploaded at checkout.
func (c *Consumer) recordPayment(ctx context.Context, eventID uuid.UUID, payload *payloads.PaymentProofSubmittedEvent) error {
	payment, err := c.payments.RecordPayment(ctx, payments.RecordParams{
		OrderID:  payload.OrderID,
		PayerID:  payload.UserID,
		Method:   payload.PaymentMethod,
		ProofKey: payload.ProofKey,
		EventID:  &eventID,
	})
	if err != nil {
		return err
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"order_id":       payload.OrderID.String(),
		"payment_number": payment.PaymentNumber,
	})
	c.logg.Info(logCtx, "payment recorded from proof")
	return nil
}

func (c *Consumer) sendEmail(ctx context.Context, payload *payloads.EmailRequestedEvent) error {
	if c.mailer == nil {
		c.logg.Warn(ctx, "email sender not configured; dropping email request")
		return nil
	}
	templateID := strings.TrimSpace(c.templates[payload.Template])
	if templateID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no template configured for %q", payload.Template))
	}
	data := map[string]any{"subject": payload.Subject}
	for k, v := range payload.Data {
		data[k] = v
	}
	return c.mailer.Send(ctx, payload.To, templateID, data)
}

func (c *Consumer) insert(ctx context.Context, row bigquery.OrderEventRow) error {
	if err := c.analytics.InsertOrderEvents(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order event")
	}
	return nil
}
