package orders

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func validSpec() Spec {
	email := "buyer@example.com"
	return Spec{
		UserID:           uuid.New(),
		CustomerEmail:    &email,
		Color:            "black",
		PhoneNumber:      "09171234567",
		Address:          "12 Mabini St, Quezon City",
		ProductID:        uuid.New(),
		ProductUnitPrice: decimal.NewFromInt(250),
		DesignType:       enums.DesignTypeOwn,
		OrderOption:      enums.FulfillmentDelivery,
		TotalQuantity:    4,
		TotalPrice:       decimal.NewFromInt(1000),
		Sizes:            map[string]int{"M": 3, "L": 1, "XL": 0},
	}
}

func newTestService(t *testing.T) (*service, *gorm.DB, *db.Client) {
	t.Helper()
	conn := dbtest.Open(t, "orders")
	svc, err := NewService(NewRepository(conn), 3)
	require.NoError(t, err)
	return svc.(*service), conn, db.NewFromConn(conn, time.Second)
}

func create(t *testing.T, svc Service, client *db.Client, spec Spec) (*models.Order, error) {
	t.Helper()
	var order *models.Order
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		order, err = svc.Create(context.Background(), tx, spec)
		return err
	})
	return order, err
}

func TestCreatePersistsOrderAndPositiveSizes(t *testing.T) {
	svc, conn, client := newTestService(t)

	order, err := create(t, svc, client, validSpec())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-Z]{10}$`), order.OrderNumber)

	loaded, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Sizes, 2)
	assert.Equal(t, "L", loaded.Sizes[0].Size)
	assert.Equal(t, 3, loaded.Sizes[1].Quantity)
	assert.True(t, loaded.TotalPrice.Equal(decimal.NewFromInt(1000)))

	var count int64
	require.NoError(t, conn.Model(&models.OrderSize{}).Where("size = ?", "XL").Count(&count).Error)
	assert.Zero(t, count)
}

func TestValidateReportsFieldDetails(t *testing.T) {
	spec := validSpec()
	spec.Color = ""
	spec.DesignType = "clipart"
	spec.TotalQuantity = 0
	spec.TotalPrice = decimal.RequireFromString("0.5")
	spec.Sizes = map[string]int{"S": -1}

	err := Validate(spec)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	for _, field := range []string{"color", "design_type", "total_quantity", "total_price", "sizes.S"} {
		assert.Contains(t, details, field)
	}
}

func TestValidateSizeSumMustMatchTotal(t *testing.T) {
	spec := validSpec()
	spec.Sizes = map[string]int{"M": 2}

	err := Validate(spec)
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Contains(t, details["sizes"], "expected 4")

	spec.Sizes = nil
	assert.NoError(t, Validate(spec))
}

func TestCreateRejectsInvalidSpecWithoutWrites(t *testing.T) {
	svc, conn, client := newTestService(t)
	spec := validSpec()
	spec.Address = ""

	_, err := create(t, svc, client, spec)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRetriesOrderNumberCollision(t *testing.T) {
	svc, conn, client := newTestService(t)

	first, err := create(t, svc, client, validSpec())
	require.NoError(t, err)

	numbers := []string{first.OrderNumber, "ORD-20250401-FRESHNUMB1"}
	calls := 0
	svc.numbers = func(time.Time) string {
		n := numbers[calls]
		calls++
		return n
	}

	second, err := create(t, svc, client, validSpec())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ORD-20250401-FRESHNUMB1", second.OrderNumber)

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateGivesUpAfterBoundedAttempts(t *testing.T) {
	svc, _, client := newTestService(t)

	first, err := create(t, svc, client, validSpec())
	require.NoError(t, err)
	svc.numbers = func(time.Time) string { return first.OrderNumber }

	_, err = create(t, svc, client, validSpec())
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		option enums.FulfillmentOption
		from   enums.OrderStatus
		to     enums.OrderStatus
		want   bool
	}{
		{enums.FulfillmentDelivery, enums.OrderStatusPending, enums.OrderStatusForDelivery, true},
		{enums.FulfillmentDelivery, enums.OrderStatusPending, enums.OrderStatusForPickup, false},
		{enums.FulfillmentPickup, enums.OrderStatusPending, enums.OrderStatusForPickup, true},
		{enums.FulfillmentPickup, enums.OrderStatusPending, enums.OrderStatusForDelivery, false},
		{enums.FulfillmentDelivery, enums.OrderStatusForDelivery, enums.OrderStatusCompleted, true},
		{enums.FulfillmentPickup, enums.OrderStatusForPickup, enums.OrderStatusCompleted, true},
		{enums.FulfillmentDelivery, enums.OrderStatusPending, enums.OrderStatusCompleted, false},
		{enums.FulfillmentDelivery, enums.OrderStatusPending, enums.OrderStatusCancelled, true},
		{enums.FulfillmentPickup, enums.OrderStatusForPickup, enums.OrderStatusCancelled, true},
		{enums.FulfillmentDelivery, enums.OrderStatusCompleted, enums.OrderStatusCancelled, false},
		{enums.FulfillmentDelivery, enums.OrderStatusCancelled, enums.OrderStatusPending, false},
		{enums.FulfillmentDelivery, enums.OrderStatusForDelivery, enums.OrderStatusPending, false},
		{enums.FulfillmentDelivery, enums.OrderStatusPending, enums.OrderStatusPending, false},
		{enums.FulfillmentDelivery, enums.OrderStatusPending, "shipped", false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.option, tc.from, tc.to)
		assert.Equal(t, tc.want, got, "%s: %s -> %s", tc.option, tc.from, tc.to)
	}
}

func updateStatus(t *testing.T, svc Service, client *db.Client, update StatusUpdate) (*StatusChange, error) {
	t.Helper()
	var change *StatusChange
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		change, err = svc.UpdateStatus(context.Background(), tx, update)
		return err
	})
	return change, err
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	svc, _, client := newTestService(t)
	order, err := create(t, svc, client, validSpec())
	require.NoError(t, err)

	_, err = updateStatus(t, svc, client, StatusUpdate{OrderID: order.ID, Status: enums.OrderStatusForPickup})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	date := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	change, err := updateStatus(t, svc, client, StatusUpdate{OrderID: order.ID, Status: enums.OrderStatusForDelivery, ActionDate: &date})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, change.From)
	assert.Equal(t, enums.OrderStatusForDelivery, change.Order.Status)

	later := date.AddDate(0, 0, 3)
	change, err = updateStatus(t, svc, client, StatusUpdate{OrderID: order.ID, Status: enums.OrderStatusForDelivery, ActionDate: &later})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusForDelivery, change.From)

	loaded, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ActionDate)
	assert.True(t, loaded.ActionDate.Equal(later))

	_, err = updateStatus(t, svc, client, StatusUpdate{OrderID: order.ID, Status: enums.OrderStatusCompleted})
	require.NoError(t, err)
	_, err = updateStatus(t, svc, client, StatusUpdate{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc, _, client := newTestService(t)
	_, err := updateStatus(t, svc, client, StatusUpdate{OrderID: uuid.New(), Status: enums.OrderStatusCancelled})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestListPaginatesPerUser(t *testing.T) {
	svc, conn, _ := newTestService(t)
	userID := uuid.New()
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		order := buildOrder(validSpec())
		order.UserID = userID
		order.OrderNumber = NewOrderNumber(base)
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, conn.Omit("Sizes", "Payments").Create(order).Error)
	}
	other := buildOrder(validSpec())
	other.OrderNumber = NewOrderNumber(base)
	other.CreatedAt = base
	require.NoError(t, conn.Omit("Sizes", "Payments").Create(other).Error)

	page, err := svc.List(context.Background(), ListParams{UserID: &userID, Pagination: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].CreatedAt.After(page.Orders[1].CreatedAt))

	rest, err := svc.List(context.Background(), ListParams{UserID: &userID, Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)

	all, err := svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 4)

	_, err = svc.List(context.Background(), ListParams{Pagination: pagination.Params{Cursor: "%%%"}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestOrderNumberFormat(t *testing.T) {
	n := NewOrderNumber(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^ORD-20251231-[0-9A-Z]{10}$`, n)
	assert.NotEqual(t, n, NewOrderNumber(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestOrderNumberSuffixDiscardsBiasedBytes(t *testing.T) {
	src := bytes.NewReader([]byte{
		252, 253, 254, 255, 0, 35, 36, 251, 71, 72,
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
	})
	n := orderNumberFrom(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), src)
	assert.Equal(t, "ORD-20260102-0Z0ZZ01234", n)
}

func TestOrderNumberSuffixIsUniform(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	suffix := randomSuffix(bytes.NewReader(all), suffixByteLimit)
	counts := map[rune]int{}
	for _, r := range suffix {
		counts[r]++
	}
	require.Len(t, counts, len(suffixAlphabet))
	for _, r := range suffixAlphabet {
		assert.Equal(t, suffixByteLimit/len(suffixAlphabet), counts[r], "symbol %c", r)
	}
}

func TestOrderNumberPanicsOnExhaustedSource(t *testing.T) {
	assert.Panics(t, func() {
		orderNumberFrom(time.Now(), bytes.NewReader([]byte{255, 255, 255, 255, 255, 255, 255, 255, 255, 255}))
	})
}
