package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// OrderPayment is one payment submitted against an order. AmountApplied is
// set by staff; Status is recomputed from the sum of all payments of the order.
type OrderPayment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentNumber string              `gorm:"column:payment_number;not null;uniqueIndex"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	AmountApplied decimal.Decimal     `gorm:"column:amount_applied;type:numeric(10,2);not null;default:0"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'in_review'"`
	Attachments   []PaymentAttachment `gorm:"foreignKey:OrderPaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentAttachment references a stored proof-of-payment artifact.
type PaymentAttachment struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderPaymentID uuid.UUID `gorm:"column:order_payment_id;type:uuid;not null"`
	StorageKey     string    `gorm:"column:storage_key;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
