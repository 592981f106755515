package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// quantityScale matches the numeric(14,4) stock and usage columns, so a
// deduction never stores a rounded amount.
const quantityScale = 4

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the material ledger.
type Service interface {
	// Deduct must run inside the caller's transaction; tx carries the lock.
	Deduct(ctx context.Context, tx *gorm.DB, req DeductRequest) (*DeductResult, error)
	// RateFor returns nil when the subject consumes no tracked material.
	RateFor(ctx context.Context, tx *gorm.DB, subject Subject) (*Consumption, error)
	FindProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	FindMaterial(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Material, error)
	ListUsage(ctx context.Context, orderID uuid.UUID) ([]models.MaterialUsageLog, error)
	ListMaterials(ctx context.Context) ([]models.Material, error)
	Restock(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal) (*models.Material, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires the ledger to its repository and transaction runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) repoFor(tx *gorm.DB) Repository {
	if tx == nil {
		return s.repo
	}
	return s.repo.WithTx(tx)
}

func (s *service) Deduct(ctx context.Context, tx *gorm.DB, req DeductRequest) (*DeductResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "deduct requires a transaction")
	}
	if err := validateDeduct(req); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	required := req.Rate.Mul(decimal.NewFromInt(int64(req.Quantity)))

	material, err := repo.LockMaterial(ctx, req.MaterialID)
	if err != nil {
		return nil, db.Classify(err, "load material")
	}
	if material.Quantity.LessThan(required) {
		return nil, insufficient(material.ID, material.Quantity, required)
	}

	now := s.now().UTC()
	affected, err := repo.DecrementIfAvailable(ctx, material.ID, required, now)
	if err != nil {
		if db.IsCheckViolation(err) {
			return nil, insufficient(material.ID, material.Quantity, required)
		}
		return nil, db.Classify(err, "decrement material")
	}
	if affected == 0 {
		return nil, insufficient(material.ID, material.Quantity, required)
	}

	entry := &models.MaterialUsageLog{
		OrderID:           req.OrderID,
		MaterialID:        material.ID,
		UserID:            req.ActorID,
		SubjectKind:       req.Subject.Kind,
		SubjectID:         req.Subject.ID,
		MaterialName:      material.Name,
		Unit:              material.Unit,
		TotalQuantityUsed: required,
	}
	if err := repo.CreateUsageLog(ctx, entry); err != nil {
		return nil, db.Classify(err, "write material usage log")
	}

	remaining := material.Quantity.Sub(required)
	after := *material
	after.Quantity = remaining

	return &DeductResult{
		MaterialID:     material.ID,
		MaterialName:   material.Name,
		Deducted:       required,
		Remaining:      remaining,
		BelowThreshold: after.BelowThreshold(),
		UsageLogID:     entry.ID,
	}, nil
}

func validateDeduct(req DeductRequest) error {
	switch {
	case req.MaterialID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "material id is required")
	case req.OrderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case req.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	case !req.Rate.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "consumption rate must be positive")
	case !req.Rate.Equal(req.Rate.Truncate(quantityScale)):
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("consumption rate allows at most %d decimal places", quantityScale))
	case !req.Subject.Kind.IsValid() || req.Subject.ID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "consumption subject is invalid")
	}
	return nil
}

func insufficient(materialID uuid.UUID, available, required decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient material stock").
		WithDetails(map[string]any{
			"material_id": materialID.String(),
			"available":   available.String(),
			"required":    required.String(),
		})
}

func (s *service) RateFor(ctx context.Context, tx *gorm.DB, subject Subject) (*Consumption, error) {
	if subject.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required")
	}
	repo := s.repoFor(tx)

	switch subject.Kind {
	case enums.SubjectProduct:
		product, err := repo.FindProduct(ctx, subject.ID)
		if err != nil {
			return nil, db.Classify(err, "load product")
		}
		if !product.FabricQuantity.IsPositive() {
			return nil, nil
		}
		consumption := &Consumption{Rate: product.FabricQuantity}
		if product.MaterialID != nil {
			consumption.MaterialID = *product.MaterialID
		}
		return consumption, nil
	case enums.SubjectUploadedAsset:
		rows, err := repo.ListAssetMaterials(ctx, subject.ID)
		if err != nil {
			return nil, db.Classify(err, "load asset materials")
		}
		for _, row := range rows {
			if row.Rate.IsPositive() {
				return &Consumption{MaterialID: row.MaterialID, Rate: row.Rate}, nil
			}
		}
		return nil, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown subject kind %q", subject.Kind))
	}
}

func (s *service) FindProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repoFor(tx).FindProduct(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "load product")
	}
	return product, nil
}

func (s *service) FindMaterial(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Material, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id is required")
	}
	material, err := s.repoFor(tx).FindMaterial(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "load material")
	}
	return material, nil
}

func (s *service) ListUsage(ctx context.Context, orderID uuid.UUID) ([]models.MaterialUsageLog, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	logs, err := s.repo.ListUsageByOrder(ctx, orderID)
	if err != nil {
		return nil, db.Classify(err, "list material usage")
	}
	return logs, nil
}

func (s *service) ListMaterials(ctx context.Context) ([]models.Material, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, db.Classify(err, "list materials")
	}
	return materials, nil
}

func (s *service) Restock(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal) (*models.Material, error) {
	if materialID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id is required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock amount must be positive")
	}

	var updated *models.Material
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockMaterial(ctx, materialID); err != nil {
			return db.Classify(err, "load material")
		}
		if _, err := repo.Increment(ctx, materialID, amount, s.now().UTC()); err != nil {
			return db.Classify(err, "restock material")
		}
		material, err := repo.FindMaterial(ctx, materialID)
		if err != nil {
			return db.Classify(err, "reload material")
		}
		updated = material
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
