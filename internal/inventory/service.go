// Package inventory manages outlets and stock records outside of the
// billing path: receiving stock, absolute corrections, low-stock
// reporting, and outlet administration.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store"
)

// CreateStockRequest is the POST /stock payload. A missing outletId
// targets the warehouse.
type CreateStockRequest struct {
	ProductCode string `json:"productId" validate:"required"`
	OutletID    *int64 `json:"outletId"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
}

// UpdateStockRequest sets an absolute quantity.
type UpdateStockRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// CreateOutletRequest is the POST /stock/outlets payload.
type CreateOutletRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Location    string `json:"location"`
	Phone       string `json:"phone" validate:"max=20"`
	Email       string `json:"email" validate:"omitempty,email"`
	ManagerName string `json:"managerName" validate:"max=255"`
	Active      *bool  `json:"isActive"`
}

// UpdateOutletRequest carries partial outlet updates; nil fields keep
// their current value.
type UpdateOutletRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Location    *string `json:"location"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
	Email       *string `json:"email" validate:"omitempty,email"`
	ManagerName *string `json:"managerName"`
	Active      *bool   `json:"isActive"`
}

// OutletWithStock is the outlet detail response including its stock
// position.
type OutletWithStock struct {
	domain.Outlet
	store.OutletStockSummary
}

// inventoryStore is the storage surface this service needs.
type inventoryStore interface {
	store.Inventory
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
}

// Service implements stock and outlet management.
type Service struct {
	store  inventoryStore
	logger zerolog.Logger
}

// Config configures the Service dependencies.
type Config struct {
	Store  inventoryStore
	Logger zerolog.Logger
}

// New constructs a Service.
func New(cfg Config) *Service {
	return &Service{store: cfg.Store, logger: cfg.Logger}
}

// --- Stock ---

// CreateStock creates a stock row for (product, outlet) or adds the
// quantity to an existing one.
func (s *Service) CreateStock(ctx context.Context, req CreateStockRequest) (*domain.StockRecord, error) {
	product, err := s.store.ProductByCode(ctx, req.ProductCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", req.ProductCode))
	}
	if err != nil {
		return nil, err
	}

	record, err := s.store.UpsertStock(ctx, domain.StockRecord{
		ProductRef: product.ID,
		OutletRef:  req.OutletID,
		Quantity:   req.Quantity,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("OUTLET_NOT_FOUND", fmt.Sprintf("Outlet %d not found", derefOutlet(req.OutletID)))
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, common.ValidationError("OUTLET_INACTIVE", err.Error(), nil)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("product_code", product.Code).
		Int("quantity", record.Quantity).
		Msg("stock received")
	return record, nil
}

// UpdateStock overwrites a stock row's quantity.
func (s *Service) UpdateStock(ctx context.Context, stockID int64, req UpdateStockRequest) (*domain.StockRecord, error) {
	record, err := s.store.SetStockQuantity(ctx, stockID, req.Quantity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("STOCK_NOT_FOUND", fmt.Sprintf("Stock entry %d not found", stockID))
	}
	return record, err
}

// ListStock returns stock rows, optionally narrowed to a product code
// or outlet.
func (s *Service) ListStock(ctx context.Context, productCode string, outletID *int64) ([]domain.StockRecord, error) {
	filter := store.StockFilter{OutletRef: outletID}
	if productCode != "" {
		product, err := s.store.ProductByCode(ctx, productCode)
		if errors.Is(err, store.ErrNotFound) {
			return nil, common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", productCode))
		}
		if err != nil {
			return nil, err
		}
		filter.ProductRef = &product.ID
	}
	return s.store.ListStock(ctx, filter)
}

// DeleteStock removes a stock row.
func (s *Service) DeleteStock(ctx context.Context, stockID int64) error {
	err := s.store.DeleteStock(ctx, stockID)
	if errors.Is(err, store.ErrNotFound) {
		return common.NotFoundError("STOCK_NOT_FOUND", fmt.Sprintf("Stock entry %d not found", stockID))
	}
	return err
}

// LowStock reports rows whose quantity fell below the product's
// threshold.
func (s *Service) LowStock(ctx context.Context, outletID *int64) ([]store.LowStockEntry, error) {
	return s.store.LowStock(ctx, outletID)
}

// --- Outlets ---

// CreateOutlet registers a retail location.
func (s *Service) CreateOutlet(ctx context.Context, req CreateOutletRequest) (*domain.Outlet, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	outlet, err := s.store.CreateOutlet(ctx, domain.Outlet{
		Name:        req.Name,
		Location:    req.Location,
		Phone:       req.Phone,
		Email:       req.Email,
		ManagerName: req.ManagerName,
		Active:      active,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, common.ConflictError("OUTLET_EXISTS", fmt.Sprintf("Outlet %q already exists", req.Name), nil)
	}
	return outlet, err
}

// ListOutlets returns all outlets, or the active ones only.
func (s *Service) ListOutlets(ctx context.Context, activeOnly bool) ([]domain.Outlet, error) {
	return s.store.ListOutlets(ctx, activeOnly)
}

// GetOutlet loads one outlet together with its stock summary.
func (s *Service) GetOutlet(ctx context.Context, outletID int64) (*OutletWithStock, error) {
	outlet, err := s.store.OutletByID(ctx, outletID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("OUTLET_NOT_FOUND", fmt.Sprintf("Outlet %d not found", outletID))
	}
	if err != nil {
		return nil, err
	}
	summary, err := s.store.OutletStockSummary(ctx, outletID)
	if err != nil {
		return nil, err
	}
	return &OutletWithStock{Outlet: *outlet, OutletStockSummary: *summary}, nil
}

// UpdateOutlet applies the provided fields and keeps the rest.
func (s *Service) UpdateOutlet(ctx context.Context, outletID int64, req UpdateOutletRequest) (*domain.Outlet, error) {
	current, err := s.store.OutletByID(ctx, outletID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("OUTLET_NOT_FOUND", fmt.Sprintf("Outlet %d not found", outletID))
	}
	if err != nil {
		return nil, err
	}

	updated := *current
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Location != nil {
		updated.Location = *req.Location
	}
	if req.Phone != nil {
		updated.Phone = *req.Phone
	}
	if req.Email != nil {
		updated.Email = *req.Email
	}
	if req.ManagerName != nil {
		updated.ManagerName = *req.ManagerName
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	result, err := s.store.UpdateOutlet(ctx, updated)
	if errors.Is(err, store.ErrConflict) {
		return nil, common.ConflictError("OUTLET_EXISTS", fmt.Sprintf("Outlet %q already exists", updated.Name), nil)
	}
	return result, err
}

// DeleteOutlet removes an outlet. Outlets still carrying stock rows are
// protected.
func (s *Service) DeleteOutlet(ctx context.Context, outletID int64) error {
	err := s.store.DeleteOutlet(ctx, outletID)
	if errors.Is(err, store.ErrNotFound) {
		return common.NotFoundError("OUTLET_NOT_FOUND", fmt.Sprintf("Outlet %d not found", outletID))
	}
	if errors.Is(err, store.ErrConflict) {
		return common.ConflictError("OUTLET_HAS_STOCK",
			"Cannot delete outlet with existing stock. Move or delete its stock records first.", nil)
	}
	return err
}

func derefOutlet(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
