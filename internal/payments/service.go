package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	paymentNumberPrefix   = "PAY-"
	paymentNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	paymentSuffixLength   = 10
	// Bytes at or above this bound are rejected to keep the alphabet unbiased.
	paymentByteLimit = 256 - 256%len(paymentNumberAlphabet)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordParams describes a submitted payment awaiting staff verification.
type RecordParams struct {
	OrderID  uuid.UUID
	PayerID  uuid.UUID
	Method   enums.PaymentMethod
	ProofKey string
	// EventID makes recording idempotent for replays of the same source event.
	EventID *uuid.UUID
}

// ApplyResult is the outcome of a staff verification.
type ApplyResult struct {
	Payment      *models.OrderPayment `json:"payment"`
	Order        *models.Order        `json:"-"`
	TotalApplied decimal.Decimal      `json:"total_applied"`
	OrderTotal   decimal.Decimal      `json:"order_total"`
	Status       enums.PaymentStatus  `json:"status"`
}

// Service records payments and reconciles an order's payment status.
type Service interface {
	RecordPayment(ctx context.Context, params RecordParams) (*models.OrderPayment, error)
	ApplyAmount(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (*ApplyResult, error)
	// ApplyAmountTx is ApplyAmount inside the caller's transaction.
	ApplyAmountTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, amount decimal.Decimal) (*ApplyResult, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires payment reconciliation to its repository and transaction runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) RecordPayment(ctx context.Context, params RecordParams) (*models.OrderPayment, error) {
	if err := validateRecord(params); err != nil {
		return nil, err
	}
	number := paymentNumber(s.now().UTC(), params.EventID)

	var recorded *models.OrderPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockOrder(ctx, params.OrderID); err != nil {
			return db.Classify(err, "load order")
		}

		if params.EventID != nil {
			existing, err := repo.FindPaymentByNumber(ctx, number)
			switch {
			case err == nil:
				recorded = existing
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return db.Classify(err, "load payment")
			}
		}

		payment := &models.OrderPayment{
			ID:            uuid.New(),
			PaymentNumber: number,
			OrderID:       params.OrderID,
			UserID:        params.PayerID,
			PaymentMethod: params.Method,
			AmountApplied: decimal.Zero,
			Status:        enums.PaymentStatusInReview,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return db.Classify(err, "create payment")
		}
		attachment := models.PaymentAttachment{
			ID:             uuid.New(),
			OrderPaymentID: payment.ID,
			StorageKey:     params.ProofKey,
		}
		if err := repo.CreateAttachment(ctx, &attachment); err != nil {
			return db.Classify(err, "create payment attachment")
		}
		payment.Attachments = []models.PaymentAttachment{attachment}
		recorded = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func validateRecord(params RecordParams) error {
	details := map[string]string{}
	if params.OrderID == uuid.Nil {
		details["order_id"] = "is required"
	}
	if params.PayerID == uuid.Nil {
		details["payer_id"] = "is required"
	}
	if !params.Method.IsValid() {
		details["payment_method"] = "is invalid"
	}
	if strings.TrimSpace(params.ProofKey) == "" {
		details["proof"] = "is required"
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// paymentNumber derives the number from the source event when there is one so
// a replayed event maps onto the row it already produced.
func paymentNumber(now time.Time, eventID *uuid.UUID) string {
	return paymentNumberFrom(now, eventID, rand.Reader)
}

func paymentNumberFrom(now time.Time, eventID *uuid.UUID, src io.Reader) string {
	if eventID != nil && *eventID != uuid.Nil {
		return paymentNumberPrefix + strings.ToUpper(strings.ReplaceAll(eventID.String(), "-", ""))
	}
	out := make([]byte, 0, paymentSuffixLength)
	buf := make([]byte, paymentSuffixLength)
	for len(out) < paymentSuffixLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			panic("payments: random source failed: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= paymentByteLimit || len(out) == paymentSuffixLength {
				continue
			}
			out = append(out, paymentNumberAlphabet[int(b)%len(paymentNumberAlphabet)])
		}
	}
	return paymentNumberPrefix + now.Format("20060102") + "-" + string(out)
}

func (s *service) ApplyAmount(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (*ApplyResult, error) {
	var result *ApplyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.ApplyAmountTx(ctx, tx, paymentID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ApplyAmountTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, amount decimal.Decimal) (*ApplyResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applying a payment requires a transaction")
	}
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	repo := s.repo.WithTx(tx)
	payment, err := repo.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, db.Classify(err, "load payment")
	}
	order, err := repo.LockOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, db.Classify(err, "load order")
	}

	now := s.now().UTC()
	if err := repo.SetAmount(ctx, payment.ID, amount, now); err != nil {
		return nil, db.Classify(err, "apply payment amount")
	}

	rows, err := repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, db.Classify(err, "list order payments")
	}
	total := Sum(rows)
	status := Classify(total, order.TotalPrice)
	if err := repo.SetStatusForOrder(ctx, order.ID, status, now); err != nil {
		return nil, db.Classify(err, "update payment status")
	}

	payment.AmountApplied = amount
	payment.Status = status
	payment.UpdatedAt = now
	return &ApplyResult{
		Payment:      payment,
		Order:        order,
		TotalApplied: total,
		OrderTotal:   order.TotalPrice,
		Status:       status,
	}, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, db.Classify(err, "list order payments")
	}
	return rows, nil
}
