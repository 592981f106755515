package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentConfirmation records a provider-side paid event for staff correlation.
type PaymentConfirmation struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderPaymentID string          `gorm:"column:provider_payment_id;not null;uniqueIndex"`
	ProviderEventID   string          `gorm:"column:provider_event_id;not null"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency          string          `gorm:"column:currency;not null"`
	Status            string          `gorm:"column:status;not null"`
	Metadata          json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
