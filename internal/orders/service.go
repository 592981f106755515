package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultNumberAttempts = 5
	orderNumberConstraint = "order_number"
)

// Service defines the order aggregate operations.
type Service interface {
	// Create validates spec and inserts the order and its size rows inside tx.
	Create(ctx context.Context, tx *gorm.DB, spec Spec) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*OrderList, error)
	// UpdateStatus locks the order row, checks the lifecycle, and writes the
	// new status (and action date when given) inside tx.
	UpdateStatus(ctx context.Context, tx *gorm.DB, update StatusUpdate) (*StatusChange, error)
}

type service struct {
	repo     Repository
	attempts int
	numbers  func(time.Time) string
	now      func() time.Time
}

// NewService builds the order aggregate. attempts bounds order-number
// regeneration on collisions; values below one fall back to the default.
func NewService(repo Repository, attempts int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if attempts < 1 {
		attempts = defaultNumberAttempts
	}
	return &service{
		repo:     repo,
		attempts: attempts,
		numbers:  NewOrderNumber,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, spec Spec) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if err := Validate(spec); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	order := buildOrder(spec)

	if err := s.insertWithUniqueNumber(ctx, tx, repo, order, now); err != nil {
		return nil, err
	}

	sizes := buildSizes(order.ID, spec.Sizes)
	if err := repo.CreateSizes(ctx, sizes); err != nil {
		return nil, db.Classify(err, "create order sizes")
	}
	order.Sizes = sizes
	return order, nil
}

// insertWithUniqueNumber wraps each insert in a savepoint so a collision on
// the order number leaves the outer transaction usable for the next attempt.
func (s *service) insertWithUniqueNumber(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, now time.Time) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		order.OrderNumber = s.numbers(now)
		savepoint := fmt.Sprintf("order_number_%d", attempt)
		if err := tx.SavePoint(savepoint).Error; err != nil {
			return db.Classify(err, "create savepoint")
		}
		err := repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, orderNumberConstraint) {
			return db.Classify(err, "create order")
		}
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return db.Classify(rbErr, "rollback savepoint")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number").
		WithDetails(map[string]any{"attempts": s.attempts})
}

func buildOrder(spec Spec) *models.Order {
	return &models.Order{
		ID:                uuid.New(),
		UserID:            spec.UserID,
		CustomerEmail:     spec.CustomerEmail,
		Color:             spec.Color,
		PhoneNumber:       spec.PhoneNumber,
		Address:           spec.Address,
		ProductID:         spec.ProductID,
		ProductUnitPrice:  spec.ProductUnitPrice,
		DesignType:        spec.DesignType,
		OrderOption:       spec.OrderOption,
		TotalQuantity:     spec.TotalQuantity,
		TotalPrice:        spec.TotalPrice,
		SoloQuantity:      spec.SoloQuantity,
		OwnDesignKey:      spec.OwnDesignKey,
		BusinessDesignURL: spec.BusinessDesignURL,
		AIDesignRef:       spec.AIDesignRef,
		FabricTypeID:      spec.FabricTypeID,
		UploadedAssetID:   spec.UploadedAssetID,
		Status:            enums.OrderStatusPending,
	}
}

// buildSizes keeps only positive quantities, ordered by size label.
func buildSizes(orderID uuid.UUID, sizes map[string]int) []models.OrderSize {
	labels := make([]string, 0, len(sizes))
	for label, qty := range sizes {
		if qty > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	rows := make([]models.OrderSize, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, models.OrderSize{
			ID:       uuid.New(),
			OrderID:  orderID,
			Size:     label,
			Quantity: sizes[label],
		})
	}
	return rows
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindOrderDetail(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*OrderList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	if _, err := pagination.ParseCursor(params.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOrders(ctx, params)
	if err != nil {
		return nil, db.Classify(err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Pagination.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (s *service) UpdateStatus(ctx context.Context, tx *gorm.DB, update StatusUpdate) (*StatusChange, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status update requires a transaction")
	}
	if update.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !update.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]string{"status": string(update.Status)})
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.LockOrder(ctx, update.OrderID)
	if err != nil {
		return nil, db.Classify(err, "load order")
	}

	from := order.Status
	reschedule := from == update.Status && update.ActionDate != nil && !from.IsTerminal()
	if !reschedule && !CanTransition(order.OrderOption, from, update.Status) {
		return nil, transitionError(order.OrderOption, from, update.Status)
	}

	now := s.now().UTC()
	if err := repo.UpdateStatus(ctx, order.ID, update.Status, update.ActionDate, now); err != nil {
		return nil, db.Classify(err, "update order status")
	}

	order.Status = update.Status
	order.UpdatedAt = now
	if update.ActionDate != nil {
		date := update.ActionDate.UTC()
		order.ActionDate = &date
	}
	return &StatusChange{Order: order, From: from}, nil
}
