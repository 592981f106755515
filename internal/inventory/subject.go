package inventory

import (
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subject identifies what owns a consumption rate: a catalog product or a
// customer-uploaded design.
type Subject struct {
	Kind enums.SubjectKind `json:"kind"`
	ID   uuid.UUID         `json:"id"`
}

func ProductSubject(id uuid.UUID) Subject {
	return Subject{Kind: enums.SubjectProduct, ID: id}
}

func UploadedAssetSubject(id uuid.UUID) Subject {
	return Subject{Kind: enums.SubjectUploadedAsset, ID: id}
}

// Consumption is the material used per ordered unit. MaterialID may be nil
// when the subject carries a rate without naming a material; callers supply
// the fabric chosen at checkout in that case.
type Consumption struct {
	MaterialID uuid.UUID       `json:"material_id"`
	Rate       decimal.Decimal `json:"rate"`
}

// DeductRequest removes Quantity × Rate of a material for one order.
type DeductRequest struct {
	MaterialID uuid.UUID
	Quantity   int
	Rate       decimal.Decimal
	Subject    Subject
	OrderID    uuid.UUID
	ActorID    uuid.UUID
}

type DeductResult struct {
	MaterialID     uuid.UUID       `json:"material_id"`
	MaterialName   string          `json:"material_name"`
	Deducted       decimal.Decimal `json:"deducted"`
	Remaining      decimal.Decimal `json:"remaining"`
	BelowThreshold bool            `json:"below_threshold"`
	UsageLogID     uuid.UUID       `json:"usage_log_id"`
}
