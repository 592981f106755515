package payments

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, "payments")
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn, time.Second))
	require.NoError(t, err)
	return svc, conn
}

func seedOrder(t *testing.T, conn *gorm.DB, total string) models.Order {
	t.Helper()
	order := models.Order{
		ID:               uuid.New(),
		OrderNumber:      "ORD-20250401-" + uuid.NewString()[:10],
		UserID:           uuid.New(),
		Color:            "white",
		PhoneNumber:      "09170000000",
		Address:          "Cebu City",
		ProductID:        uuid.New(),
		ProductUnitPrice: decimal.NewFromInt(250),
		DesignType:       enums.DesignTypeBusiness,
		OrderOption:      enums.FulfillmentPickup,
		TotalQuantity:    4,
		TotalPrice:       decimal.RequireFromString(total),
		Status:           enums.OrderStatusPending,
	}
	require.NoError(t, conn.Omit("Sizes", "Payments").Create(&order).Error)
	return order
}

func record(t *testing.T, svc Service, order models.Order) *models.OrderPayment {
	t.Helper()
	payment, err := svc.RecordPayment(context.Background(), RecordParams{
		OrderID:  order.ID,
		PayerID:  order.UserID,
		Method:   enums.PaymentMethodGCash,
		ProofKey: "payment/" + order.UserID.String() + "/proof.png",
	})
	require.NoError(t, err)
	return payment
}

func statuses(t *testing.T, conn *gorm.DB, orderID uuid.UUID) []enums.PaymentStatus {
	t.Helper()
	var rows []models.OrderPayment
	require.NoError(t, conn.Where("order_id = ?", orderID).Find(&rows).Error)
	out := make([]enums.PaymentStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Status)
	}
	return out
}

func TestRecordPaymentStartsInReview(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")

	payment := record(t, svc, order)
	assert.Equal(t, enums.PaymentStatusInReview, payment.Status)
	assert.True(t, payment.AmountApplied.IsZero())
	assert.Regexp(t, `^PAY-\d{8}-[0-9A-Z]{10}$`, payment.PaymentNumber)

	rows, err := svc.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Attachments, 1)
	assert.Contains(t, rows[0].Attachments[0].StorageKey, "proof.png")
}

func TestRecordPaymentIsIdempotentPerEvent(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")
	eventID := uuid.New()
	params := RecordParams{
		OrderID:  order.ID,
		PayerID:  order.UserID,
		Method:   enums.PaymentMethodGCash,
		ProofKey: "payment/proof.png",
		EventID:  &eventID,
	}

	first, err := svc.RecordPayment(context.Background(), params)
	require.NoError(t, err)
	second, err := svc.RecordPayment(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&models.PaymentAttachment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")

	_, err := svc.RecordPayment(context.Background(), RecordParams{OrderID: order.ID, PayerID: order.UserID, Method: "barter", ProofKey: " "})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Contains(t, details, "payment_method")
	assert.Contains(t, details, "proof")

	_, err = svc.RecordPayment(context.Background(), RecordParams{OrderID: uuid.New(), PayerID: uuid.New(), Method: enums.PaymentMethodCash, ProofKey: "k"})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestApplyAmountPartialThenFull(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")
	first := record(t, svc, order)
	second := record(t, svc, order)

	result, err := svc.ApplyAmount(context.Background(), first.ID, decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, result.Status)
	assert.True(t, result.TotalApplied.Equal(decimal.NewFromInt(400)))
	assert.True(t, result.OrderTotal.Equal(decimal.NewFromInt(1000)))

	result, err = svc.ApplyAmount(context.Background(), second.ID, decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFullyPaid, result.Status)
	assert.True(t, result.TotalApplied.Equal(decimal.NewFromInt(1000)))

	for _, status := range statuses(t, conn, order.ID) {
		assert.Equal(t, enums.PaymentStatusFullyPaid, status)
	}
}

func TestApplyAmountNonPositiveSumStaysInReview(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")
	first := record(t, svc, order)
	second := record(t, svc, order)

	result, err := svc.ApplyAmount(context.Background(), first.ID, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusInReview, result.Status)

	result, err = svc.ApplyAmount(context.Background(), second.ID, decimal.NewFromInt(-50))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusInReview, result.Status)
	assert.True(t, result.TotalApplied.Equal(decimal.NewFromInt(-50)))

	for _, status := range statuses(t, conn, order.ID) {
		assert.Equal(t, enums.PaymentStatusInReview, status)
	}
}

func TestApplyAmountOrderDoesNotMatter(t *testing.T) {
	amounts := []decimal.Decimal{
		decimal.RequireFromString("250.50"),
		decimal.RequireFromString("300"),
		decimal.RequireFromString("-20.50"),
	}
	run := func(order []int) (enums.PaymentStatus, decimal.Decimal) {
		svc, conn := newTestService(t)
		o := seedOrder(t, conn, "530")
		rows := []*models.OrderPayment{record(t, svc, o), record(t, svc, o), record(t, svc, o)}
		var last *ApplyResult
		for _, i := range order {
			var err error
			last, err = svc.ApplyAmount(context.Background(), rows[i].ID, amounts[i])
			require.NoError(t, err)
		}
		return last.Status, last.TotalApplied
	}

	statusA, sumA := run([]int{0, 1, 2})
	statusB, sumB := run([]int{2, 0, 1})
	assert.Equal(t, statusA, statusB)
	assert.True(t, sumA.Equal(sumB))
	assert.Equal(t, enums.PaymentStatusFullyPaid, statusA)
}

func TestApplyAmountIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")
	payment := record(t, svc, order)

	for i := 0; i < 2; i++ {
		result, err := svc.ApplyAmount(context.Background(), payment.ID, decimal.NewFromInt(500))
		require.NoError(t, err)
		assert.Equal(t, enums.PaymentStatusPartiallyPaid, result.Status)
		assert.True(t, result.TotalApplied.Equal(decimal.NewFromInt(500)))
	}
}

func TestApplyAmountUnknownPayment(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApplyAmount(context.Background(), uuid.New(), decimal.NewFromInt(1))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestClassify(t *testing.T) {
	total := decimal.NewFromInt(1000)
	cases := map[string]enums.PaymentStatus{
		"-1":      enums.PaymentStatusInReview,
		"0":       enums.PaymentStatusInReview,
		"0.01":    enums.PaymentStatusPartiallyPaid,
		"999.99":  enums.PaymentStatusPartiallyPaid,
		"1000":    enums.PaymentStatusFullyPaid,
		"1000.01": enums.PaymentStatusFullyPaid,
	}
	for sum, want := range cases {
		assert.Equal(t, want, Classify(decimal.RequireFromString(sum), total), "sum %s", sum)
	}
}

func TestApplyAmountTxRollsBackWithCaller(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, "1000")
	payment := record(t, svc, order)

	client := db.NewFromConn(conn, time.Second)
	aborted := errors.New("caller aborted")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		result, err := svc.ApplyAmountTx(context.Background(), tx, payment.ID, decimal.NewFromInt(1000))
		require.NoError(t, err)
		assert.Equal(t, enums.PaymentStatusFullyPaid, result.Status)
		return aborted
	})
	require.ErrorIs(t, err, aborted)

	for _, status := range statuses(t, conn, order.ID) {
		assert.Equal(t, enums.PaymentStatusInReview, status)
	}
	_, err = svc.ApplyAmountTx(context.Background(), nil, payment.ID, decimal.NewFromInt(1))
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
}

func TestPaymentNumberSuffixDiscardsBiasedBytes(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	src := bytes.NewReader([]byte{
		255, 0, 252, 35, 36, 251, 1, 2, 3, 4,
		253, 5, 6, 7, 8, 9, 10, 11, 12, 13,
	})
	assert.Equal(t, "PAY-20260102-0Z0Z123456", paymentNumberFrom(now, nil, src))

	eventID := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, "PAY-0F8FAD5BD9CB469FA16570867728950E", paymentNumberFrom(now, &eventID, bytes.NewReader(nil)))
}
