package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Material is a raw stock item (fabric, ink) consumed by orders.
type Material struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	Unit             string          `gorm:"column:unit;not null"`
	Category         *string         `gorm:"column:category"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:numeric(14,4);not null;default:0"`
	ReorderThreshold decimal.Decimal `gorm:"column:reorder_threshold;type:numeric(14,4);not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BelowThreshold reports whether stock reached the reorder point.
func (m Material) BelowThreshold() bool {
	return m.ReorderThreshold.IsPositive() && m.Quantity.LessThanOrEqual(m.ReorderThreshold)
}
