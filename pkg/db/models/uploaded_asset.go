package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UploadedAsset is a customer-supplied design with its own material rates.
type UploadedAsset struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	Name       string                  `gorm:"column:name;not null"`
	StorageKey string                  `gorm:"column:storage_key;not null"`
	Materials  []UploadedAssetMaterial `gorm:"foreignKey:UploadedAssetID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// UploadedAssetMaterial binds an uploaded design to a material and its per-unit rate.
type UploadedAssetMaterial struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UploadedAssetID uuid.UUID       `gorm:"column:uploaded_asset_id;type:uuid;not null"`
	MaterialID      uuid.UUID       `gorm:"column:material_id;type:uuid;not null"`
	Rate            decimal.Decimal `gorm:"column:rate;type:numeric(10,4);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
