package inventory

import (
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

type fixture struct {
	conn   *gorm.DB
	client *db.Client
	svc    Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t, "inventory")
	client := db.NewFromConn(conn, time.Second)
	svc, err := NewService(NewRepository(conn), client)
	require.NoError(t, err)
	return fixture{conn: conn, client: client, svc: svc}
}

func seedMaterial(t *testing.T, conn *gorm.DB, qty, threshold string) models.Material {
	t.Helper()
	m := models.Material{
		ID:               uuid.New(),
		Name:             "Cotton Jersey",
		Unit:             "yard",
		Quantity:         decimal.RequireFromString(qty),
		ReorderThreshold: decimal.RequireFromString(threshold),
	}
	require.NoError(t, conn.Create(&m).Error)
	return m
}

func loadQuantity(t *testing.T, conn *gorm.DB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var m models.Material
	require.NoError(t, conn.Where("id = ?", id).First(&m).Error)
	return m.Quantity
}

func countUsage(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.MaterialUsageLog{}).Count(&n).Error)
	return n
}

func deduct(t *testing.T, f fixture, req DeductRequest) (*DeductResult, error) {
	t.Helper()
	var result *DeductResult
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.Deduct(context.Background(), tx, req)
		return err
	})
	return result, err
}

func request(materialID uuid.UUID, qty int, rate string) DeductRequest {
	return DeductRequest{
		MaterialID: materialID,
		Quantity:   qty,
		Rate:       decimal.RequireFromString(rate),
		Subject:    ProductSubject(uuid.New()),
		OrderID:    uuid.New(),
		ActorID:    uuid.New(),
	}
}

func TestDeductLeavesRemainder(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "100", "10")

	req := request(material.ID, 40, "2")
	result, err := deduct(t, f, req)
	require.NoError(t, err)

	assert.True(t, result.Deducted.Equal(decimal.NewFromInt(80)), "deducted %s", result.Deducted)
	assert.True(t, result.Remaining.Equal(decimal.NewFromInt(20)), "remaining %s", result.Remaining)
	assert.False(t, result.BelowThreshold)
	assert.True(t, loadQuantity(t, f.conn, material.ID).Equal(decimal.NewFromInt(20)))

	logs, err := f.svc.ListUsage(context.Background(), req.OrderID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, result.UsageLogID, logs[0].ID)
	assert.Equal(t, material.ID, logs[0].MaterialID)
	assert.Equal(t, req.ActorID, logs[0].UserID)
	assert.Equal(t, enums.SubjectProduct, logs[0].SubjectKind)
	assert.Equal(t, req.Subject.ID, logs[0].SubjectID)
	assert.Equal(t, "Cotton Jersey", logs[0].MaterialName)
	assert.True(t, logs[0].TotalQuantityUsed.Equal(decimal.NewFromInt(80)))
}

func TestDeductInsufficientChangesNothing(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "50", "0")

	_, err := deduct(t, f, request(material.ID, 40, "2"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.CodeOf(err))

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "50", details["available"])
	assert.Equal(t, "80", details["required"])

	assert.True(t, loadQuantity(t, f.conn, material.ID).Equal(decimal.NewFromInt(50)))
	assert.Zero(t, countUsage(t, f.conn))
}

func TestDeductExactStockReachesZero(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "12.5", "5")

	result, err := deduct(t, f, request(material.ID, 5, "2.5"))
	require.NoError(t, err)
	assert.True(t, result.Remaining.IsZero())
	assert.True(t, result.BelowThreshold)
}

func TestDeductFractionalRates(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "10", "0")

	for i := 0; i < 3; i++ {
		_, err := deduct(t, f, request(material.ID, 1, "0.25"))
		require.NoError(t, err)
	}
	assert.True(t, loadQuantity(t, f.conn, material.ID).Equal(decimal.RequireFromString("9.25")))
}

func TestDeductOrderDoesNotMatter(t *testing.T) {
	run := func(first, second DeductRequest) decimal.Decimal {
		f := newFixture(t)
		material := seedMaterial(t, f.conn, "100", "0")
		first.MaterialID = material.ID
		second.MaterialID = material.ID
		_, err := deduct(t, f, first)
		require.NoError(t, err)
		_, err = deduct(t, f, second)
		require.NoError(t, err)
		return loadQuantity(t, f.conn, material.ID)
	}

	a := request(uuid.Nil, 7, "1.5")
	b := request(uuid.Nil, 12, "3.25")
	assert.True(t, run(a, b).Equal(run(b, a)))
}

func TestDeductRolledBackWithCaller(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "100", "0")
	boom := errors.New("later step failed")

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := f.svc.Deduct(context.Background(), tx, request(material.ID, 10, "1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, loadQuantity(t, f.conn, material.ID).Equal(decimal.NewFromInt(100)))
	assert.Zero(t, countUsage(t, f.conn))
}

func TestDeductValidation(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "100", "0")

	cases := map[string]func(*DeductRequest){
		"missing material": func(r *DeductRequest) { r.MaterialID = uuid.Nil },
		"zero quantity":    func(r *DeductRequest) { r.Quantity = 0 },
		"zero rate":        func(r *DeductRequest) { r.Rate = decimal.Zero },
		"missing order":    func(r *DeductRequest) { r.OrderID = uuid.Nil },
		"bad subject":      func(r *DeductRequest) { r.Subject = Subject{Kind: "bundle", ID: uuid.New()} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := request(material.ID, 1, "1")
			mutate(&req)
			_, err := deduct(t, f, req)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

func TestDeductUnknownMaterial(t *testing.T) {
	f := newFixture(t)
	_, err := deduct(t, f, request(uuid.New(), 1, "1"))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRateForProduct(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "100", "0")
	product := models.Product{
		ID:             uuid.New(),
		Name:           "Classic Tee",
		UnitPrice:      decimal.NewFromInt(250),
		MaterialID:     &material.ID,
		FabricQuantity: decimal.RequireFromString("1.25"),
	}
	require.NoError(t, f.conn.Create(&product).Error)

	consumption, err := f.svc.RateFor(context.Background(), nil, ProductSubject(product.ID))
	require.NoError(t, err)
	require.NotNil(t, consumption)
	assert.Equal(t, material.ID, consumption.MaterialID)
	assert.True(t, consumption.Rate.Equal(decimal.RequireFromString("1.25")))

	bare := models.Product{ID: uuid.New(), Name: "Sticker", UnitPrice: decimal.NewFromInt(20)}
	require.NoError(t, f.conn.Create(&bare).Error)
	consumption, err = f.svc.RateFor(context.Background(), nil, ProductSubject(bare.ID))
	require.NoError(t, err)
	assert.Nil(t, consumption)

	_, err = f.svc.RateFor(context.Background(), nil, ProductSubject(uuid.New()))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRateForUploadedAsset(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "100", "0")
	assetID := uuid.New()
	require.NoError(t, f.conn.Create(&models.UploadedAssetMaterial{
		ID:              uuid.New(),
		UploadedAssetID: assetID,
		MaterialID:      material.ID,
		Rate:            decimal.RequireFromString("0.75"),
	}).Error)

	consumption, err := f.svc.RateFor(context.Background(), nil, UploadedAssetSubject(assetID))
	require.NoError(t, err)
	require.NotNil(t, consumption)
	assert.Equal(t, material.ID, consumption.MaterialID)
	assert.True(t, consumption.Rate.Equal(decimal.RequireFromString("0.75")))

	consumption, err = f.svc.RateFor(context.Background(), nil, UploadedAssetSubject(uuid.New()))
	require.NoError(t, err)
	assert.Nil(t, consumption)
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "5", "10")

	updated, err := f.svc.Restock(context.Background(), material.ID, decimal.RequireFromString("20.5"))
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(decimal.RequireFromString("25.5")))
	assert.False(t, updated.BelowThreshold())

	_, err = f.svc.Restock(context.Background(), material.ID, decimal.Zero)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.Restock(context.Background(), uuid.New(), decimal.NewFromInt(1))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestListMaterialsOrdersByName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Polyester", "Canvas"} {
		require.NoError(t, f.conn.Create(&models.Material{
			ID:       uuid.New(),
			Name:     name,
			Unit:     "yard",
			Quantity: decimal.NewFromInt(1),
		}).Error)
	}
	materials, err := f.svc.ListMaterials(context.Background())
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, "Canvas", materials[0].Name)
}

func TestDeductKeepsFourDecimalRates(t *testing.T) {
	cases := []struct {
		name      string
		stock     string
		qty       int
		rate      string
		used      string
		remaining string
	}{
		{name: "quarter of a hundredth", stock: "1", qty: 1, rate: "0.0025", used: "0.0025", remaining: "0.9975"},
		{name: "thirds", stock: "10", qty: 3, rate: "0.3333", used: "0.9999", remaining: "9.0001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			material := seedMaterial(t, f.conn, tc.stock, "0")

			result, err := deduct(t, f, request(material.ID, tc.qty, tc.rate))
			require.NoError(t, err)
			assert.True(t, result.Deducted.Equal(decimal.RequireFromString(tc.used)), "deducted %s", result.Deducted)
			assert.True(t, result.Remaining.Equal(decimal.RequireFromString(tc.remaining)), "remaining %s", result.Remaining)

			stored := loadQuantity(t, f.conn, material.ID)
			assert.True(t, stored.Equal(result.Remaining), "stored %s, reported %s", stored, result.Remaining)

			var entry models.MaterialUsageLog
			require.NoError(t, f.conn.Where("id = ?", result.UsageLogID).First(&entry).Error)
			assert.True(t, entry.TotalQuantityUsed.Equal(result.Deducted), "logged %s", entry.TotalQuantityUsed)
		})
	}
}

func TestDeductRejectsRateFinerThanStock(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "10", "0")

	_, err := deduct(t, f, request(material.ID, 1, "0.00005"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.True(t, loadQuantity(t, f.conn, material.ID).Equal(decimal.NewFromInt(10)))
	assert.Zero(t, countUsage(t, f.conn))
}

func TestFindProductAndMaterialNotFound(t *testing.T) {
	f := newFixture(t)
	material := seedMaterial(t, f.conn, "10", "0")

	found, err := f.svc.FindMaterial(context.Background(), nil, material.ID)
	require.NoError(t, err)
	assert.Equal(t, material.Name, found.Name)

	_, err = f.svc.FindMaterial(context.Background(), nil, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = f.svc.FindProduct(context.Background(), nil, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = f.svc.FindProduct(context.Background(), nil, uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
