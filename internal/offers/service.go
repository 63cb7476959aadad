// Package offers manages promotional offers: creation with per-type
// validation and effective-offer lookup for a product on a given day.
package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/pricing"
	"github.com/spn-retail/backend-pos/internal/store"
)

// CreateOfferRequest is the POST /offers payload. Which discount fields
// are required depends on offerType.
type CreateOfferRequest struct {
	ProductCode     string          `json:"productId" validate:"required"`
	OfferType       string          `json:"offerType" validate:"required,oneof=BUY_X_GET_Y PERCENTAGE FLAT"`
	XQuantity       int             `json:"xQuantity"`
	YQuantity       int             `json:"yQuantity"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountFlat    decimal.Decimal `json:"discountFlat"`
	StartDate       time.Time       `json:"startDate" validate:"required"`
	EndDate         time.Time       `json:"endDate" validate:"required"`
	Active          *bool           `json:"isActive"`
}

// offerReader is the store surface this service needs.
type offerReader interface {
	store.Offers
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
}

// Service implements offer management.
type Service struct {
	store  offerReader
	logger zerolog.Logger
	now    func() time.Time
}

// Config configures the Service dependencies.
type Config struct {
	Store  offerReader
	Logger zerolog.Logger
	Now    func() time.Time
}

// New constructs a Service.
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: cfg.Store, logger: cfg.Logger, now: now}
}

// Create validates and persists an offer for the given product. The
// discount terms are checked with the same rules the pricing engine
// enforces, so an offer that persists can always be priced.
func (s *Service) Create(ctx context.Context, req CreateOfferRequest) (*domain.Offer, error) {
	product, err := s.store.ProductByCode(ctx, req.ProductCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", req.ProductCode))
	}
	if err != nil {
		return nil, err
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, common.ValidationError("INVALID_OFFER_WINDOW", "endDate must not be before startDate", nil)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	offer := domain.Offer{
		ProductRef: product.ID,
		Type:       domain.OfferType(req.OfferType),
		BuyX:       req.XQuantity,
		GetY:       req.YQuantity,
		Percent:    req.DiscountPercent,
		Flat:       req.DiscountFlat,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Active:     active,
	}
	if _, err := pricing.Terms(offer); err != nil {
		return nil, common.ValidationError("INVALID_OFFER_CONFIGURATION", err.Error(), nil)
	}

	created, err := s.store.CreateOffer(ctx, offer)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", req.ProductCode))
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("offer_id", created.ID).
		Str("product_code", product.Code).
		Str("offer_type", string(created.Type)).
		Msg("offer created")
	return created, nil
}

// ActiveForProduct returns the offer effective today for the product,
// or nil when none applies.
func (s *Service) ActiveForProduct(ctx context.Context, productCode string) (*domain.Offer, error) {
	product, err := s.store.ProductByCode(ctx, productCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", productCode))
	}
	if err != nil {
		return nil, err
	}
	offer, err := s.store.EffectiveOffer(ctx, product.ID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return offer, nil
}
