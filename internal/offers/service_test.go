package offers

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store/memory"
)

var testDay = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newFixture(t *testing.T) (*Service, *domain.Product) {
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

	svc := New(Config{
		Store:  s,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testDay },
	})
	return svc, product
}

func validWindow() (time.Time, time.Time) {
	return testDay.AddDate(0, 0, -1), testDay.AddDate(0, 0, 7)
}

func TestCreateBuyXGetY(t *testing.T) {
	svc, product := newFixture(t)
	start, end := validWindow()

	created, err := svc.Create(context.Background(), CreateOfferRequest{
		ProductCode: product.Code,
		OfferType:   "BUY_X_GET_Y",
		XQuantity:   2,
		YQuantity:   1,
		StartDate:   start,
		EndDate:     end,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OfferBuyXGetY, created.Type)
	require.True(t, created.Active)
}

func TestCreateRejectsIncompleteTerms(t *testing.T) {
	svc, product := newFixture(t)
	start, end := validWindow()

	cases := []struct {
		name string
		req  CreateOfferRequest
	}{
		{"bxgy missing y", CreateOfferRequest{ProductCode: product.Code, OfferType: "BUY_X_GET_Y", XQuantity: 2, StartDate: start, EndDate: end}},
		{"percentage zero", CreateOfferRequest{ProductCode: product.Code, OfferType: "PERCENTAGE", StartDate: start, EndDate: end}},
		{"percentage above 100", CreateOfferRequest{ProductCode: product.Code, OfferType: "PERCENTAGE", DiscountPercent: dec("150"), StartDate: start, EndDate: end}},
		{"flat zero", CreateOfferRequest{ProductCode: product.Code, OfferType: "FLAT", StartDate: start, EndDate: end}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, "INVALID_OFFER_CONFIGURATION", appErr.Code)
		})
	}
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	svc, product := newFixture(t)

	_, err := svc.Create(context.Background(), CreateOfferRequest{
		ProductCode:  product.Code,
		OfferType:    "FLAT",
		DiscountFlat: dec("5"),
		StartDate:    testDay,
		EndDate:      testDay.AddDate(0, 0, -1),
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_OFFER_WINDOW", appErr.Code)
}

func TestCreateUnknownProduct(t *testing.T) {
	svc, _ := newFixture(t)
	start, end := validWindow()

	_, err := svc.Create(context.Background(), CreateOfferRequest{
		ProductCode:  "SPN99999999",
		OfferType:    "FLAT",
		DiscountFlat: dec("5"),
		StartDate:    start,
		EndDate:      end,
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PRODUCT_NOT_FOUND", appErr.Code)
}

func TestActiveForProduct(t *testing.T) {
	svc, product := newFixture(t)
	ctx := context.Background()
	start, end := validWindow()

	created, err := svc.Create(ctx, CreateOfferRequest{
		ProductCode:     product.Code,
		OfferType:       "PERCENTAGE",
		DiscountPercent: dec("20"),
		StartDate:       start,
		EndDate:         end,
	})
	require.NoError(t, err)

	active, err := svc.ActiveForProduct(ctx, product.Code)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, created.ID, active.ID)
}

func TestActiveForProductNoneEffective(t *testing.T) {
	svc, product := newFixture(t)
	ctx := context.Background()

	// Window entirely in the future.
	_, err := svc.Create(ctx, CreateOfferRequest{
		ProductCode:  product.Code,
		OfferType:    "FLAT",
		DiscountFlat: dec("5"),
		StartDate:    testDay.AddDate(0, 0, 2),
		EndDate:      testDay.AddDate(0, 0, 9),
	})
	require.NoError(t, err)

	active, err := svc.ActiveForProduct(ctx, product.Code)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestActiveInactiveOfferIgnored(t *testing.T) {
	svc, product := newFixture(t)
	ctx := context.Background()
	start, end := validWindow()
	inactive := false

	_, err := svc.Create(ctx, CreateOfferRequest{
		ProductCode:  product.Code,
		OfferType:    "FLAT",
		DiscountFlat: dec("5"),
		StartDate:    start,
		EndDate:      end,
		Active:       &inactive,
	})
	require.NoError(t, err)

	active, err := svc.ActiveForProduct(ctx, product.Code)
	require.NoError(t, err)
	require.Nil(t, active)
}
