package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// OrderPlacedEvent is published once per committed order for analytics.
type OrderPlacedEvent struct {
	OrderID          uuid.UUID               `json:"order_id"`
	OrderNumber      string                  `json:"order_number"`
	UserID           uuid.UUID               `json:"user_id"`
	ProductID        uuid.UUID               `json:"product_id"`
	DesignType       enums.DesignType        `json:"design_type"`
	OrderOption      enums.FulfillmentOption `json:"order_option"`
	TotalQuantity    int                     `json:"total_quantity"`
	TotalPrice       decimal.Decimal         `json:"total_price"`
	Sizes            map[string]int          `json:"sizes,omitempty"`
	MaterialID       *uuid.UUID              `json:"material_id,omitempty"`
	QuantityDeducted *decimal.Decimal        `json:"quantity_deducted,omitempty"`
	PlacedAt         time.Time               `json:"placed_at"`
}

// OrderStatusChangedEvent records a staff transition on an order.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID               `json:"order_id"`
	OrderNumber string                  `json:"order_number"`
	UserID      uuid.UUID               `json:"user_id"`
	OrderOption enums.FulfillmentOption `json:"order_option"`
	From        enums.OrderStatus       `json:"from"`
	To          enums.OrderStatus       `json:"to"`
	ActionDate  *time.Time              `json:"action_date,omitempty"`
	ChangedAt   time.Time               `json:"changed_at"`
}

// PaymentProofSubmittedEvent asks the worker to register the first payment of an order.
type PaymentProofSubmittedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ProofKey      string              `json:"proof_key"`
}

// PaymentAppliedEvent is emitted after staff apply an amount and the status is recomputed.
type PaymentAppliedEvent struct {
	PaymentID    uuid.UUID           `json:"payment_id"`
	OrderID      uuid.UUID           `json:"order_id"`
	UserID       uuid.UUID           `json:"user_id"`
	Amount       decimal.Decimal     `json:"amount"`
	TotalApplied decimal.Decimal     `json:"total_applied"`
	OrderTotal   decimal.Decimal     `json:"order_total"`
	Status       enums.PaymentStatus `json:"status"`
}

// QRPaymentConfirmedEvent carries a provider confirmation for staff correlation.
type QRPaymentConfirmedEvent struct {
	ConfirmationID    uuid.UUID         `json:"confirmation_id"`
	ProviderPaymentID string            `json:"provider_payment_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// NotificationRequestedEvent asks the notification worker to persist and broadcast a message.
type NotificationRequestedEvent struct {
	Audience  enums.NotificationAudience  `json:"audience"`
	UserID    *uuid.UUID                  `json:"user_id,omitempty"`
	OrderID   *uuid.UUID                  `json:"order_id,omitempty"`
	Status    string                      `json:"status,omitempty"`
	AdminType enums.AdminNotificationType `json:"admin_type,omitempty"`
	Title     string                      `json:"title,omitempty"`
	Message   string                      `json:"message"`
}

// EmailRequestedEvent asks the worker to send a templated email.
type EmailRequestedEvent struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Subject  string         `json:"subject"`
	Data     map[string]any `json:"data,omitempty"`
}
