package fulfillment

import (
	"io"
	"time"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller driving an operation.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

// File is an artifact supplied with an order submission.
type File struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// PlaceOrderInput carries a customer submission. Proof is required; DesignFile
// is only read for own-design orders.
type PlaceOrderInput struct {
	Actor         Actor
	Spec          orders.Spec
	PaymentMethod enums.PaymentMethod
	Proof         *File
	DesignFile    *File
}

// PlaceOrderResult is returned once the order has committed.
type PlaceOrderResult struct {
	Order     *models.Order           `json:"order"`
	Deduction *inventory.DeductResult `json:"deduction,omitempty"`
	ProofKey  string                  `json:"proof_key"`
	DesignKey string                  `json:"design_key,omitempty"`
}

// StatusInput is a staff transition request.
type StatusInput struct {
	Actor   Actor
	OrderID uuid.UUID
	Status  enums.OrderStatus
}

// ActionDateInput schedules delivery or pickup for an order.
type ActionDateInput struct {
	Actor   Actor
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Date    time.Time
}

// ApplyPaymentInput records the amount staff verified for a payment.
type ApplyPaymentInput struct {
	Actor     Actor
	PaymentID uuid.UUID
	Amount    decimal.Decimal
}

// ApplyPaymentResult mirrors payments.ApplyResult for the HTTP layer.
type ApplyPaymentResult = payments.ApplyResult
