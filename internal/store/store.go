package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/domain"
)

var (
	// ErrNotFound signals that a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness or referential constraint violation.
	ErrConflict = errors.New("conflict")
)

// InsufficientStockError carries the detail the client needs to correct
// a rejected basket line.
type InsufficientStockError struct {
	ProductCode string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Offset int
	Limit  int
}

// StockFilter narrows stock listings.
type StockFilter struct {
	ProductRef *int64
	OutletRef  *int64
}

// LowStockEntry is one row of the low-stock report.
type LowStockEntry struct {
	ProductCode string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"currentQuantity"`
	MinStock    int    `json:"minStock"`
	OutletName  string `json:"outletName"`
}

// OutletStockSummary aggregates an outlet's stock position.
type OutletStockSummary struct {
	TotalProducts int `json:"totalProducts"`
	TotalQuantity int `json:"totalQuantity"`
	LowStockCount int `json:"lowStockCount"`
}

// Catalog is the product surface the services consume.
type Catalog interface {
	CreateProduct(ctx context.Context, product domain.Product, barcode domain.Barcode) (*domain.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
	BarcodeByProduct(ctx context.Context, productRef int64) (*domain.Barcode, error)
	CountProductsByCost(ctx context.Context, costPrice decimal.Decimal) (int, error)
}

// Offers resolves and persists promotions.
type Offers interface {
	CreateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error)
	EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error)
}

// Inventory manages outlets and stock rows outside of billing.
type Inventory interface {
	CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error)
	ListOutlets(ctx context.Context, activeOnly bool) ([]domain.Outlet, error)
	OutletByID(ctx context.Context, id int64) (*domain.Outlet, error)
	UpdateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error)
	DeleteOutlet(ctx context.Context, id int64) error
	OutletStockSummary(ctx context.Context, outletID int64) (*OutletStockSummary, error)

	UpsertStock(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error)
	SetStockQuantity(ctx context.Context, stockID int64, quantity int) (*domain.StockRecord, error)
	ListStock(ctx context.Context, filter StockFilter) ([]domain.StockRecord, error)
	DeleteStock(ctx context.Context, stockID int64) error
	LowStock(ctx context.Context, outletRef *int64) ([]LowStockEntry, error)
}

// BillingTx exposes the operations available inside one confirmation
// transaction. Stock reads through it take row locks; writes are only
// visible if the enclosing transaction commits.
type BillingTx interface {
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
	EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error)
	StockForUpdate(ctx context.Context, productRef int64, outletRef *int64) (quantity int, found bool, err error)
	NextInvoiceSequence(ctx context.Context) (int64, error)
	InsertInvoice(ctx context.Context, invoice domain.Invoice) error
	InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) error
	DecrementStock(ctx context.Context, productRef int64, outletRef *int64, quantity int) error
}

// Billing is what the billing service needs from storage. Preview uses
// the plain reads; Confirm runs entirely inside WithinBillingTx so a
// failure at any point leaves no partial writes.
type Billing interface {
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
	EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error)
	WithinBillingTx(ctx context.Context, fn func(tx BillingTx) error) error
	InvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
}

// Repository is the full storage surface; postgres and memory both
// implement it.
type Repository interface {
	Catalog
	Offers
	Inventory
	Billing
}
