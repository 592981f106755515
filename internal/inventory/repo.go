package inventory

import (
	"context"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages materials, consumption rates, and the usage log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	FindMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	ListMaterials(ctx context.Context) ([]models.Material, error)
	DecrementIfAvailable(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error)
	Increment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error)
	CreateUsageLog(ctx context.Context, entry *models.MaterialUsageLog) error
	ListUsageByOrder(ctx context.Context, orderID uuid.UUID) ([]models.MaterialUsageLog, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListAssetMaterials(ctx context.Context, assetID uuid.UUID) ([]models.UploadedAssetMaterial, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockMaterial reads the row with FOR UPDATE so concurrent deductions queue.
func (r *repository) LockMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&material).Error
	if err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repository) FindMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&material).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repository) ListMaterials(ctx context.Context) ([]models.Material, error) {
	var materials []models.Material
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

// DecrementIfAvailable is a compare-and-decrement: zero rows affected means
// the stock was no longer sufficient when the update ran.
func (r *repository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Material{}).
		Where("id = ? AND quantity >= ?", id, amount).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", amount),
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Increment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Material{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", amount),
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateUsageLog(ctx context.Context, entry *models.MaterialUsageLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListUsageByOrder(ctx context.Context, orderID uuid.UUID) ([]models.MaterialUsageLog, error) {
	var logs []models.MaterialUsageLog
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListAssetMaterials(ctx context.Context, assetID uuid.UUID) ([]models.UploadedAssetMaterial, error) {
	var rows []models.UploadedAssetMaterial
	if err := r.db.WithContext(ctx).
		Where("uploaded_asset_id = ?", assetID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
