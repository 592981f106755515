package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// MaterialUsageLog is the append-only audit row written for every deduction.
type MaterialUsageLog struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	MaterialID        uuid.UUID         `gorm:"column:material_id;type:uuid;not null"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	SubjectKind       enums.SubjectKind `gorm:"column:subject_kind;type:text;not null"`
	SubjectID         uuid.UUID         `gorm:"column:subject_id;type:uuid;not null"`
	MaterialName      string            `gorm:"column:material_name;not null"`
	Unit              string            `gorm:"column:unit;not null"`
	TotalQuantityUsed decimal.Decimal   `gorm:"column:total_quantity_used;type:numeric(14,4);not null"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
}
