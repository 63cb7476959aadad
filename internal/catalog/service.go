// Package catalog manages product registration and lookup. Product
// codes are derived from the cost price plus a per-cost sequence, so
// the code alone tells floor staff what a unit cost.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/obs"
	"github.com/spn-retail/backend-pos/internal/store"
)

// CreateProductRequest is the POST /products payload.
type CreateProductRequest struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	MRP          decimal.Decimal `json:"mrp"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	MinStock     *int            `json:"minStock"`
}

// ProductWithBarcode is the detail response shape.
type ProductWithBarcode struct {
	domain.Product
	BarcodeValue  string `json:"barcodeValue,omitempty"`
	BarcodeFormat string `json:"barcodeFormat,omitempty"`
}

// Service implements catalog operations over the store.
type Service struct {
	store  store.Catalog
	cache  *Cache
	logger zerolog.Logger
}

// Config configures the Service dependencies.
type Config struct {
	Store  store.Catalog
	Cache  *Cache
	Logger zerolog.Logger
}

// New constructs a Service.
func New(cfg Config) *Service {
	return &Service{store: cfg.Store, cache: cfg.Cache, logger: cfg.Logger}
}

func cacheKey(code string) string { return "catalog:product:" + code }

// productCode builds the SPN code: a 4-digit zero-padded integer cost
// followed by a 4-digit sequence bracket. The bracket encodes how many
// products already share the cost: 9901-9909 for the first nine, 9010-
// 9099 for the next ninety, 0100-0999 after that, then the raw count.
func productCode(costPrice decimal.Decimal, seq int) string {
	cost := fmt.Sprintf("%04d", costPrice.IntPart())
	var bracket string
	switch {
	case seq <= 9:
		bracket = fmt.Sprintf("990%d", seq)
	case seq <= 99:
		bracket = fmt.Sprintf("90%02d", seq)
	case seq <= 999:
		bracket = fmt.Sprintf("0%03d", seq)
	default:
		bracket = fmt.Sprintf("%04d", seq)
	}
	return "SPN" + cost + bracket
}

// Create registers a product under a freshly generated code and assigns
// its barcode value.
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*ProductWithBarcode, error) {
	for _, price := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"costPrice", req.CostPrice},
		{"mrp", req.MRP},
		{"sellingPrice", req.SellingPrice},
	} {
		if !price.value.IsPositive() {
			return nil, common.ValidationError("INVALID_PRICE",
				fmt.Sprintf("%s must be greater than zero", price.name), nil)
		}
	}
	minStock := 10
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return nil, common.ValidationError("INVALID_MIN_STOCK", "minStock must not be negative", nil)
		}
		minStock = *req.MinStock
	}

	count, err := s.store.CountProductsByCost(ctx, req.CostPrice)
	if err != nil {
		return nil, err
	}
	code := productCode(req.CostPrice, count+1)

	created, err := s.store.CreateProduct(ctx, domain.Product{
		Code:         code,
		Name:         req.Name,
		Category:     req.Category,
		CostPrice:    req.CostPrice,
		MRP:          req.MRP,
		SellingPrice: req.SellingPrice,
		MinStock:     minStock,
	}, domain.Barcode{Value: code, Format: "Code128"})
	if errors.Is(err, store.ErrConflict) {
		return nil, common.ConflictError("PRODUCT_EXISTS", fmt.Sprintf("Product %s already exists", code), nil)
	}
	if err != nil {
		return nil, err
	}
	if obs.ProductsCreatedTotal != nil {
		obs.ProductsCreatedTotal.Inc()
	}
	s.logger.Info().Str("product_code", created.Code).Str("name", created.Name).Msg("product created")

	return &ProductWithBarcode{Product: *created, BarcodeValue: code, BarcodeFormat: "Code128"}, nil
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, offset, limit int) ([]domain.Product, error) {
	return s.store.ListProducts(ctx, store.ProductFilter{Offset: offset, Limit: limit})
}

// Get loads one product by its SPN code, read-through cached.
func (s *Service) Get(ctx context.Context, code string) (*ProductWithBarcode, error) {
	var cached ProductWithBarcode
	hit, err := s.cache.GetJSON(ctx, cacheKey(code), &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_code", code).Msg("catalog cache read failed")
	}
	if hit {
		return &cached, nil
	}

	product, err := s.store.ProductByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", code))
	}
	if err != nil {
		return nil, err
	}
	detail := &ProductWithBarcode{Product: *product}
	barcode, err := s.store.BarcodeByProduct(ctx, product.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		detail.BarcodeValue = barcode.Value
		detail.BarcodeFormat = barcode.Format
	}

	if err := s.cache.SetJSON(ctx, cacheKey(code), detail); err != nil {
		s.logger.Warn().Err(err).Str("product_code", code).Msg("catalog cache write failed")
	}
	return detail, nil
}
