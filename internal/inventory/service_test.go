package inventory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newFixture(t *testing.T) (*Service, *memory.Store, *domain.Product) {
	t.Helper()
	s := memory.New()
	product, err := s.CreateProduct(context.Background(), domain.Product{
		Code:         "SPN00459901",
		Name:         "Basmati Rice 5kg",
		CostPrice:    dec("45"),
		MRP:          dec("62"),
		SellingPrice: dec("58"),
		MinStock:     10,
	}, domain.Barcode{Value: "SPN00459901"})
	require.NoError(t, err)
	return New(Config{Store: s, Logger: zerolog.Nop()}), s, product
}

func TestCreateStockAddsToExistingRow(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	first, err := svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, Quantity: 10})
	require.NoError(t, err)
	second, err := svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 15, second.Quantity)
}

func TestCreateStockUnknownProduct(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.CreateStock(context.Background(), CreateStockRequest{ProductCode: "SPN99999999", Quantity: 1})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PRODUCT_NOT_FOUND", appErr.Code)
}

func TestCreateStockUnknownOutlet(t *testing.T) {
	svc, _, product := newFixture(t)
	outletID := int64(99)

	_, err := svc.CreateStock(context.Background(), CreateStockRequest{
		ProductCode: product.Code, OutletID: &outletID, Quantity: 1,
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_NOT_FOUND", appErr.Code)
}

func TestCreateStockInactiveOutlet(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	inactive := false
	outlet, err := svc.CreateOutlet(ctx, CreateOutletRequest{Name: "Closed", Active: &inactive})
	require.NoError(t, err)

	_, err = svc.CreateStock(ctx, CreateStockRequest{
		ProductCode: product.Code, OutletID: &outlet.ID, Quantity: 1,
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_INACTIVE", appErr.Code)
}

func TestUpdateStockIsAbsolute(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	record, err := svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, Quantity: 10})
	require.NoError(t, err)

	updated, err := svc.UpdateStock(ctx, record.ID, UpdateStockRequest{Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 3, updated.Quantity)
}

func TestLowStockUsesThresholdAndOutletName(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	outlet, err := svc.CreateOutlet(ctx, CreateOutletRequest{Name: "Downtown"})
	require.NoError(t, err)

	// Warehouse above threshold, outlet below.
	_, err = svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, Quantity: 50})
	require.NoError(t, err)
	_, err = svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, OutletID: &outlet.ID, Quantity: 4})
	require.NoError(t, err)

	entries, err := svc.LowStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, product.Code, entries[0].ProductCode)
	require.Equal(t, 4, entries[0].Quantity)
	require.Equal(t, 10, entries[0].MinStock)
	require.Equal(t, "Downtown", entries[0].OutletName)

	// Warehouse rows report the fallback name once they fall below.
	warehouse, err := svc.ListStock(ctx, product.Code, nil)
	require.NoError(t, err)
	for _, rec := range warehouse {
		if rec.OutletRef == nil {
			_, err = svc.UpdateStock(ctx, rec.ID, UpdateStockRequest{Quantity: 2})
			require.NoError(t, err)
		}
	}
	entries, err = svc.LowStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].OutletName, entries[1].OutletName}
	require.Contains(t, names, "Warehouse")
}

func TestLowStockFilterByOutlet(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	outlet, err := svc.CreateOutlet(ctx, CreateOutletRequest{Name: "Downtown"})
	require.NoError(t, err)
	_, err = svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, OutletID: &outlet.ID, Quantity: 3})
	require.NoError(t, err)

	entries, err := svc.LowStock(ctx, &outlet.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Downtown", entries[0].OutletName)
}

func TestOutletLifecycle(t *testing.T) {
	svc, _, product := newFixture(t)
	ctx := context.Background()

	outlet, err := svc.CreateOutlet(ctx, CreateOutletRequest{Name: "Downtown", Location: "12 Market Street"})
	require.NoError(t, err)
	require.True(t, outlet.Active)

	_, err = svc.CreateOutlet(ctx, CreateOutletRequest{Name: "Downtown"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_EXISTS", appErr.Code)

	newName := "Uptown"
	updated, err := svc.UpdateOutlet(ctx, outlet.ID, UpdateOutletRequest{Name: &newName})
	require.NoError(t, err)
	require.Equal(t, "Uptown", updated.Name)
	require.Equal(t, "12 Market Street", updated.Location)

	// Delete is blocked while stock rows exist.
	rec, err := svc.CreateStock(ctx, CreateStockRequest{ProductCode: product.Code, OutletID: &outlet.ID, Quantity: 8})
	require.NoError(t, err)
	err = svc.DeleteOutlet(ctx, outlet.ID)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_HAS_STOCK", appErr.Code)

	detail, err := svc.GetOutlet(ctx, outlet.ID)
	require.NoError(t, err)
	require.Equal(t, 1, detail.TotalProducts)
	require.Equal(t, 8, detail.TotalQuantity)
	require.Equal(t, 1, detail.LowStockCount)

	require.NoError(t, svc.DeleteStock(ctx, rec.ID))
	require.NoError(t, svc.DeleteOutlet(ctx, outlet.ID))

	_, err = svc.GetOutlet(ctx, outlet.ID)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_NOT_FOUND", appErr.Code)
}

func TestGetOutletNotFound(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.GetOutlet(context.Background(), 404)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUTLET_NOT_FOUND", appErr.Code)
}
