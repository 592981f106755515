package sideeffects

import (
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/bigquery"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func occurredAt(envelope outbox.PayloadEnvelope, fallback time.Time) time.Time {
	if !envelope.OccurredAt.IsZero() {
		return envelope.OccurredAt.UTC()
	}
	return fallback.UTC()
}

func placedRow(eventID uuid.UUID, envelope outbox.PayloadEnvelope, p *payloads.OrderPlacedEvent) bigquery.OrderEventRow {
	return bigquery.OrderEventRow{
		EventID:     eventID.String(),
		EventType:   string(enums.EventOrderPlaced),
		OrderID:     p.OrderID.String(),
		OrderNumber: p.OrderNumber,
		UserID:      p.UserID.String(),
		Status:      string(enums.OrderStatusPending),
		DesignType:  string(p.DesignType),
		OrderOption: string(p.OrderOption),
		Quantity:    int64(p.TotalQuantity),
		TotalPrice:  p.TotalPrice.StringFixed(2),
		OccurredAt:  occurredAt(envelope, p.PlacedAt),
	}
}

func statusRow(eventID uuid.UUID, envelope outbox.PayloadEnvelope, p *payloads.OrderStatusChangedEvent) bigquery.OrderEventRow {
	return bigquery.OrderEventRow{
		EventID:     eventID.String(),
		EventType:   string(enums.EventOrderStatusChanged),
		OrderID:     p.OrderID.String(),
		OrderNumber: p.OrderNumber,
		UserID:      p.UserID.String(),
		Status:      string(p.To),
		OrderOption: string(p.OrderOption),
		OccurredAt:  occurredAt(envelope, p.ChangedAt),
	}
}

func paymentRow(eventID uuid.UUID, envelope outbox.PayloadEnvelope, p *payloads.PaymentAppliedEvent) bigquery.OrderEventRow {
	return bigquery.OrderEventRow{
		EventID:    eventID.String(),
		EventType:  string(enums.EventPaymentApplied),
		OrderID:    p.OrderID.String(),
		UserID:     p.UserID.String(),
		Status:     string(p.Status),
		TotalPrice: p.TotalApplied.StringFixed(2),
		OccurredAt: occurredAt(envelope, time.Now()),
	}
}
