package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newService(t *testing.T) *Service {
	t.Helper()
	return New(Config{Store: memory.New(), Logger: zerolog.Nop()})
}

func TestProductCodeSequenceBrackets(t *testing.T) {
	cases := []struct {
		seq  int
		want string
	}{
		{1, "SPN00459901"},
		{9, "SPN00459909"},
		{10, "SPN00459010"},
		{42, "SPN00459042"},
		{99, "SPN00459099"},
		{100, "SPN00450100"},
		{999, "SPN00450999"},
		{1000, "SPN00451000"},
	}
	for _, tc := range cases {
		if got := productCode(dec("45"), tc.seq); got != tc.want {
			t.Fatalf("seq %d: expected %s, got %s", tc.seq, tc.want, got)
		}
	}
}

func TestProductCodePadsCost(t *testing.T) {
	require.Equal(t, "SPN00059901", productCode(dec("5"), 1))
	require.Equal(t, "SPN12349901", productCode(dec("1234"), 1))
	// Fractional cost keeps the integer part only.
	require.Equal(t, "SPN00129901", productCode(dec("12.50"), 1))
}

func TestCreateAssignsSequentialCodesPerCost(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		created, err := svc.Create(ctx, CreateProductRequest{
			Name:         fmt.Sprintf("Item %d", i),
			CostPrice:    dec("45"),
			MRP:          dec("62"),
			SellingPrice: dec("58"),
		})
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("SPN0045990%d", i), created.Code)
		require.Equal(t, created.Code, created.BarcodeValue)
		require.Equal(t, "Code128", created.BarcodeFormat)
		require.Equal(t, 10, created.MinStock)
	}

	// A different cost starts its own sequence.
	other, err := svc.Create(ctx, CreateProductRequest{
		Name:         "Other",
		CostPrice:    dec("12"),
		MRP:          dec("20"),
		SellingPrice: dec("18"),
	})
	require.NoError(t, err)
	require.Equal(t, "SPN00129901", other.Code)
}

func TestCreateRejectsNonPositivePrices(t *testing.T) {
	svc := newService(t)

	_, err := svc.Create(context.Background(), CreateProductRequest{
		Name:         "Bad",
		CostPrice:    dec("0"),
		MRP:          dec("10"),
		SellingPrice: dec("8"),
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_PRICE", appErr.Code)
}

func TestCreateHonoursExplicitMinStock(t *testing.T) {
	svc := newService(t)
	zero := 0

	created, err := svc.Create(context.Background(), CreateProductRequest{
		Name:         "No threshold",
		CostPrice:    dec("3"),
		MRP:          dec("6"),
		SellingPrice: dec("5"),
		MinStock:     &zero,
	})
	require.NoError(t, err)
	require.Equal(t, 0, created.MinStock)
}

func TestGetUnknownProduct(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), "SPN99999999")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PRODUCT_NOT_FOUND", appErr.Code)
}

func TestGetCachesProductDetail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := New(Config{
		Store:  memory.New(),
		Cache:  NewCache(client, time.Minute),
		Logger: zerolog.Nop(),
	})
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductRequest{
		Name:         "Cached",
		CostPrice:    dec("45"),
		MRP:          dec("62"),
		SellingPrice: dec("58"),
	})
	require.NoError(t, err)

	first, err := svc.Get(ctx, created.Code)
	require.NoError(t, err)
	require.Equal(t, created.Code, first.BarcodeValue)
	require.True(t, mr.Exists("catalog:product:" + created.Code))

	second, err := svc.Get(ctx, created.Code)
	require.NoError(t, err)
	require.Equal(t, first.Name, second.Name)
	require.Equal(t, first.BarcodeValue, second.BarcodeValue)
}
