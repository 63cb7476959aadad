package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry identified by its SPN product code.
// SellingPrice is the price billing charges; CostPrice and MRP are
// informational for margin reporting.
type Product struct {
	ID           int64           `json:"-"`
	Code         string          `json:"productId"`
	Name         string          `json:"name"`
	Category     string          `json:"category,omitempty"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	MRP          decimal.Decimal `json:"mrp"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	MinStock     int             `json:"minStock"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Barcode stores the scannable value assigned to a product. Image
// rendering is handled by a separate service; only the value and its
// symbology are kept here.
type Barcode struct {
	ProductRef int64  `json:"-"`
	Value      string `json:"barcodeValue"`
	Format     string `json:"barcodeFormat"`
}

// OfferType enumerates the supported promotion kinds.
type OfferType string

const (
	OfferBuyXGetY   OfferType = "BUY_X_GET_Y"
	OfferPercentage OfferType = "PERCENTAGE"
	OfferFlat       OfferType = "FLAT"
)

// Offer is the stored promotion row. Which of the variant fields are
// meaningful depends on Type; the offers service rejects rows whose
// required fields are missing before they are persisted.
type Offer struct {
	ID         int64           `json:"id"`
	ProductRef int64           `json:"-"`
	Type       OfferType       `json:"offerType"`
	BuyX       int             `json:"xQuantity,omitempty"`
	GetY       int             `json:"yQuantity,omitempty"`
	Percent    decimal.Decimal `json:"discountPercent,omitempty"`
	Flat       decimal.Decimal `json:"discountFlat,omitempty"`
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	Active     bool            `json:"isActive"`
}

// EffectiveOn reports whether the offer applies on the given date.
func (o Offer) EffectiveOn(day time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	return o.Active && !d.Before(o.StartDate.Truncate(24*time.Hour)) && !d.After(o.EndDate.Truncate(24*time.Hour))
}

// Outlet is a retail location. Stock rows without an outlet belong to
// the central warehouse.
type Outlet struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	ManagerName string `json:"managerName,omitempty"`
	Active      bool   `json:"isActive"`
}

// StockRecord tracks on-hand quantity for a (product, outlet) pair.
// OutletRef nil means the warehouse. Quantity never goes negative;
// the billing workflow enforces that under a row lock.
type StockRecord struct {
	ID         int64  `json:"id"`
	ProductRef int64  `json:"productRef"`
	OutletRef  *int64 `json:"outletId,omitempty"`
	Quantity   int    `json:"quantity"`
}

// Invoice is an immutable settlement record. Totals are recomputed
// from the items at confirmation time and never updated afterwards.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"invoiceNumber"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Items          []InvoiceItem   `json:"items"`
}

// InvoiceItem is one priced line of a confirmed invoice.
type InvoiceItem struct {
	ID           int64           `json:"-"`
	InvoiceRef   uuid.UUID       `json:"-"`
	ProductRef   int64           `json:"-"`
	ProductCode  string          `json:"productId"`
	ProductName  string          `json:"productName"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Discount     decimal.Decimal `json:"discount"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
	OfferApplied string          `json:"offerApplied,omitempty"`
}
