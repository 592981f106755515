package payments

import (
	"context"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages order payments and their proof attachments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CreatePayment(ctx context.Context, payment *models.OrderPayment) error
	CreateAttachment(ctx context.Context, attachment *models.PaymentAttachment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.OrderPayment, error)
	FindPaymentByNumber(ctx context.Context, number string) (*models.OrderPayment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error)
	SetAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) error
	SetStatusForOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockOrder takes the order row lock that serializes every payment write for
// the order.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.OrderPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payment).Error
}

func (r *repository) CreateAttachment(ctx context.Context, attachment *models.PaymentAttachment) error {
	if attachment.ID == uuid.Nil {
		attachment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.OrderPayment, error) {
	var payment models.OrderPayment
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentByNumber(ctx context.Context, number string) (*models.OrderPayment, error) {
	var payment models.OrderPayment
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("payment_number = ?", number).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error) {
	var payments []models.OrderPayment
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) SetAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderPayment{}).
		Where("id = ?", id).
		Updates(map[string]any{"amount_applied": amount, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetStatusForOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderPayment{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}
