package paymongo

import (
	"context"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists provider payment confirmations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// InsertConfirmation reports false when the provider payment was already stored.
	InsertConfirmation(ctx context.Context, row *models.PaymentConfirmation) (bool, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentConfirmation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertConfirmation(ctx context.Context, row *models.PaymentConfirmation) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_payment_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentConfirmation, error) {
	var row models.PaymentConfirmation
	if err := r.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
