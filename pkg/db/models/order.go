package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Order is the header row of a customer print order.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string                  `gorm:"column:order_number;not null;uniqueIndex"`
	UserID            uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	CustomerEmail     *string                 `gorm:"column:customer_email"`
	Color             string                  `gorm:"column:color;not null"`
	PhoneNumber       string                  `gorm:"column:phone_number;not null"`
	Address           string                  `gorm:"column:address;not null"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	ProductUnitPrice  decimal.Decimal         `gorm:"column:product_unit_price;type:numeric(10,2);not null"`
	DesignType        enums.DesignType        `gorm:"column:design_type;type:text;not null"`
	OrderOption       enums.FulfillmentOption `gorm:"column:order_option;type:text;not null"`
	TotalQuantity     int                     `gorm:"column:total_quantity;not null"`
	TotalPrice        decimal.Decimal         `gorm:"column:total_price;type:numeric(10,2);not null"`
	SoloQuantity      int                     `gorm:"column:solo_quantity;not null;default:0"`
	OwnDesignKey      *string                 `gorm:"column:own_design_key"`
	BusinessDesignURL *string                 `gorm:"column:business_design_url"`
	AIDesignRef       *string                 `gorm:"column:ai_design_ref"`
	FabricTypeID      *uuid.UUID              `gorm:"column:fabric_type_id;type:uuid"`
	UploadedAssetID   *uuid.UUID              `gorm:"column:uploaded_asset_id;type:uuid"`
	Status            enums.OrderStatus       `gorm:"column:status;type:text;not null;default:'pending'"`
	ActionDate        *time.Time              `gorm:"column:action_date"`
	Sizes             []OrderSize             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments          []OrderPayment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderSize is one row of an order's size breakdown.
type OrderSize struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	Size      string    `gorm:"column:size;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
