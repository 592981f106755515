package orders

import (
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Spec is everything a customer submits to place an order.
type Spec struct {
	UserID            uuid.UUID               `json:"user_id" validate:"required"`
	CustomerEmail     *string                 `json:"customer_email,omitempty" validate:"omitempty,email"`
	Color             string                  `json:"color" validate:"required,max=64"`
	PhoneNumber       string                  `json:"phone_number" validate:"required,max=32"`
	Address           string                  `json:"address" validate:"required,max=500"`
	ProductID         uuid.UUID               `json:"product_id" validate:"required"`
	ProductUnitPrice  decimal.Decimal         `json:"product_unit_price"`
	DesignType        enums.DesignType        `json:"design_type" validate:"required"`
	OrderOption       enums.FulfillmentOption `json:"order_option" validate:"required"`
	TotalQuantity     int                     `json:"total_quantity" validate:"min=1"`
	TotalPrice        decimal.Decimal         `json:"total_price"`
	SoloQuantity      int                     `json:"solo_quantity" validate:"min=0"`
	Sizes             map[string]int          `json:"sizes,omitempty"`
	OwnDesignKey      *string                 `json:"own_design_key,omitempty"`
	BusinessDesignURL *string                 `json:"business_design_url,omitempty" validate:"omitempty,max=2048"`
	AIDesignRef       *string                 `json:"ai_design_ref,omitempty"`
	FabricTypeID      *uuid.UUID              `json:"fabric_type_id,omitempty"`
	UploadedAssetID   *uuid.UUID              `json:"uploaded_asset_id,omitempty"`
}

// ListParams filters order reads. A nil UserID lists every order (staff view).
type ListParams struct {
	UserID     *uuid.UUID
	Status     *enums.OrderStatus
	Pagination pagination.Params
}

// OrderList wraps a page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// StatusChange reports the row after a transition and the status it left.
type StatusChange struct {
	Order *models.Order
	From  enums.OrderStatus
}

// StatusUpdate is a requested lifecycle move. ActionDate, when set, is
// written in the same statement as the status.
type StatusUpdate struct {
	OrderID    uuid.UUID
	Status     enums.OrderStatus
	ActionDate *time.Time
}
