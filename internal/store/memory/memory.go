package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store"
)

// Store is an in-memory implementation of store.Repository. It backs
// service tests and the dev fallback when DATABASE_URL is unset. A
// single mutex serializes billing transactions, which gives the same
// one-winner guarantee the postgres row locks provide.
type Store struct {
	mu sync.RWMutex

	nextProductID int64
	nextOfferID   int64
	nextOutletID  int64
	nextStockID   int64
	nextItemID    int64

	products      map[int64]domain.Product
	productByCode map[string]int64
	barcodes      map[int64]domain.Barcode
	offers        map[int64]domain.Offer
	outlets       map[int64]domain.Outlet
	stock         map[int64]domain.StockRecord
	invoices      map[string]domain.Invoice
	invoiceCount  int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		productByCode: make(map[string]int64),
		barcodes:      make(map[int64]domain.Barcode),
		offers:        make(map[int64]domain.Offer),
		outlets:       make(map[int64]domain.Outlet),
		stock:         make(map[int64]domain.StockRecord),
		invoices:      make(map[string]domain.Invoice),
	}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// NewSeeded returns a store pre-populated with demo catalog, offer, and
// stock data for local development.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	type seedProduct struct {
		code, name, category            string
		cost, mrp, selling              string
		minStock, warehouseQty, shopQty int
	}
	seeds := []seedProduct{
		{"SPN00459901", "Basmati Rice 5kg", "grocery", "45", "62", "58", 10, 120, 40},
		{"SPN00129901", "Sunflower Oil 1L", "grocery", "12", "18", "16.50", 15, 200, 60},
		{"SPN00089901", "Green Tea 25 Bags", "beverage", "8", "14", "12", 10, 80, 25},
		{"SPN00229901", "Almond Cookies 400g", "snack", "22", "35", "30", 8, 50, 18},
		{"SPN00059901", "Hand Soap 250ml", "household", "5", "9", "7.50", 20, 150, 45},
	}

	outlet, _ := s.CreateOutlet(ctx, domain.Outlet{Name: "Downtown Outlet", Location: "12 Market Street", Active: true})

	for _, sd := range seeds {
		p, err := s.CreateProduct(ctx, domain.Product{
			Code:         sd.code,
			Name:         sd.name,
			Category:     sd.category,
			CostPrice:    dec(sd.cost),
			MRP:          dec(sd.mrp),
			SellingPrice: dec(sd.selling),
			MinStock:     sd.minStock,
			CreatedAt:    now,
		}, domain.Barcode{Value: sd.code, Format: "Code128"})
		if err != nil {
			continue
		}
		_, _ = s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: sd.warehouseQty})
		oid := outlet.ID
		_, _ = s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, OutletRef: &oid, Quantity: sd.shopQty})
	}

	// One demo offer per discount policy.
	if ref, ok := s.productByCode["SPN00459901"]; ok {
		_, _ = s.CreateOffer(ctx, domain.Offer{
			ProductRef: ref, Type: domain.OfferBuyXGetY, BuyX: 2, GetY: 1,
			StartDate: now.AddDate(0, 0, -7), EndDate: now.AddDate(0, 1, 0), Active: true,
		})
	}
	if ref, ok := s.productByCode["SPN00089901"]; ok {
		_, _ = s.CreateOffer(ctx, domain.Offer{
			ProductRef: ref, Type: domain.OfferPercentage, Percent: dec("20"),
			StartDate: now.AddDate(0, 0, -7), EndDate: now.AddDate(0, 1, 0), Active: true,
		})
	}
	if ref, ok := s.productByCode["SPN00229901"]; ok {
		_, _ = s.CreateOffer(ctx, domain.Offer{
			ProductRef: ref, Type: domain.OfferFlat, Flat: dec("4"),
			StartDate: now.AddDate(0, 0, -7), EndDate: now.AddDate(0, 1, 0), Active: true,
		})
	}
	return s
}

// --- Catalog ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product, barcode domain.Barcode) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.Code == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: product code and name are required", store.ErrConflict)
	}
	if _, exists := s.productByCode[product.Code]; exists {
		return nil, fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
	}
	s.nextProductID++
	product.ID = s.nextProductID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	s.productByCode[product.Code] = product.ID
	barcode.ProductRef = product.ID
	if barcode.Format == "" {
		barcode.Format = "Code128"
	}
	s.barcodes[product.ID] = barcode
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := filter.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return append([]domain.Product(nil), all[start:end]...), nil
}

func (s *Store) ProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productByCodeLocked(code)
}

func (s *Store) productByCodeLocked(code string) (*domain.Product, error) {
	id, ok := s.productByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := s.products[id]
	return &p, nil
}

func (s *Store) BarcodeByProduct(_ context.Context, productRef int64) (*domain.Barcode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.barcodes[productRef]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) CountProductsByCost(_ context.Context, costPrice decimal.Decimal) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.products {
		if p.CostPrice.Equal(costPrice) {
			count++
		}
	}
	return count, nil
}

// --- Offers ---

func (s *Store) CreateOffer(_ context.Context, offer domain.Offer) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[offer.ProductRef]; !ok {
		return nil, store.ErrNotFound
	}
	s.nextOfferID++
	offer.ID = s.nextOfferID
	s.offers[offer.ID] = offer
	created := offer
	return &created, nil
}

func (s *Store) EffectiveOffer(_ context.Context, productRef int64, on time.Time) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveOfferLocked(productRef, on)
}

// effectiveOfferLocked picks the lowest-id effective offer so the
// result is stable if the catalog ever holds overlapping windows.
func (s *Store) effectiveOfferLocked(productRef int64, on time.Time) (*domain.Offer, error) {
	var best *domain.Offer
	for id := range s.offers {
		o := s.offers[id]
		if o.ProductRef != productRef || !o.EffectiveOn(on) {
			continue
		}
		if best == nil || o.ID < best.ID {
			candidate := o
			best = &candidate
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

// --- Inventory ---

func (s *Store) CreateOutlet(_ context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.outlets {
		if strings.EqualFold(existing.Name, outlet.Name) {
			return nil, fmt.Errorf("%w: outlet %q already exists", store.ErrConflict, outlet.Name)
		}
	}
	s.nextOutletID++
	outlet.ID = s.nextOutletID
	s.outlets[outlet.ID] = outlet
	created := outlet
	return &created, nil
}

func (s *Store) ListOutlets(_ context.Context, activeOnly bool) ([]domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Outlet, 0, len(s.outlets))
	for _, o := range s.outlets {
		if activeOnly && !o.Active {
			continue
		}
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) OutletByID(_ context.Context, id int64) (*domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outlets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (s *Store) UpdateOutlet(_ context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outlets[outlet.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.outlets[outlet.ID] = outlet
	updated := outlet
	return &updated, nil
}

func (s *Store) DeleteOutlet(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outlets[id]; !ok {
		return store.ErrNotFound
	}
	for _, rec := range s.stock {
		if rec.OutletRef != nil && *rec.OutletRef == id {
			return fmt.Errorf("%w: outlet has stock records", store.ErrConflict)
		}
	}
	delete(s.outlets, id)
	return nil
}

func (s *Store) OutletStockSummary(_ context.Context, outletID int64) (*store.OutletStockSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.outlets[outletID]; !ok {
		return nil, store.ErrNotFound
	}
	summary := &store.OutletStockSummary{}
	for _, rec := range s.stock {
		if rec.OutletRef == nil || *rec.OutletRef != outletID {
			continue
		}
		summary.TotalProducts++
		summary.TotalQuantity += rec.Quantity
		if p, ok := s.products[rec.ProductRef]; ok && rec.Quantity < p.MinStock {
			summary.LowStockCount++
		}
	}
	return summary, nil
}

func stockKey(productRef int64, outletRef *int64) string {
	if outletRef == nil {
		return fmt.Sprintf("%d/warehouse", productRef)
	}
	return fmt.Sprintf("%d/%d", productRef, *outletRef)
}

func (s *Store) UpsertStock(_ context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[record.ProductRef]; !ok {
		return nil, store.ErrNotFound
	}
	if record.OutletRef != nil {
		outlet, ok := s.outlets[*record.OutletRef]
		if !ok {
			return nil, store.ErrNotFound
		}
		if !outlet.Active {
			return nil, fmt.Errorf("%w: outlet %q is inactive", store.ErrConflict, outlet.Name)
		}
	}
	key := stockKey(record.ProductRef, record.OutletRef)
	for id, existing := range s.stock {
		if stockKey(existing.ProductRef, existing.OutletRef) == key {
			existing.Quantity += record.Quantity
			s.stock[id] = existing
			return &existing, nil
		}
	}
	s.nextStockID++
	record.ID = s.nextStockID
	s.stock[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) SetStockQuantity(_ context.Context, stockID int64, quantity int) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.stock[stockID]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.Quantity = quantity
	s.stock[stockID] = rec
	return &rec, nil
}

func (s *Store) ListStock(_ context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.StockRecord, 0, len(s.stock))
	for _, rec := range s.stock {
		if filter.ProductRef != nil && rec.ProductRef != *filter.ProductRef {
			continue
		}
		if filter.OutletRef != nil && (rec.OutletRef == nil || *rec.OutletRef != *filter.OutletRef) {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteStock(_ context.Context, stockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stock[stockID]; !ok {
		return store.ErrNotFound
	}
	delete(s.stock, stockID)
	return nil
}

func (s *Store) LowStock(_ context.Context, outletRef *int64) ([]store.LowStockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]store.LowStockEntry, 0)
	ids := make([]int64, 0, len(s.stock))
	for id := range s.stock {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rec := s.stock[id]
		if outletRef != nil && (rec.OutletRef == nil || *rec.OutletRef != *outletRef) {
			continue
		}
		product, ok := s.products[rec.ProductRef]
		if !ok || rec.Quantity >= product.MinStock {
			continue
		}
		outletName := "Warehouse"
		if rec.OutletRef != nil {
			if outlet, ok := s.outlets[*rec.OutletRef]; ok {
				outletName = outlet.Name
			}
		}
		entries = append(entries, store.LowStockEntry{
			ProductCode: product.Code,
			ProductName: product.Name,
			Quantity:    rec.Quantity,
			MinStock:    product.MinStock,
			OutletName:  outletName,
		})
	}
	return entries, nil
}

// --- Billing ---

func (s *Store) InvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

// billingTx buffers writes so a failed confirmation leaves the store
// untouched. The enclosing store lock is held for the whole callback,
// which serializes concurrent confirmations.
type billingTx struct {
	s          *Store
	decrements map[string]int
	invoices   []domain.Invoice
	items      []domain.InvoiceItem
}

func (s *Store) WithinBillingTx(_ context.Context, fn func(tx store.BillingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &billingTx{s: s, decrements: make(map[string]int)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (tx *billingTx) ProductByCode(_ context.Context, code string) (*domain.Product, error) {
	return tx.s.productByCodeLocked(code)
}

func (tx *billingTx) EffectiveOffer(_ context.Context, productRef int64, on time.Time) (*domain.Offer, error) {
	return tx.s.effectiveOfferLocked(productRef, on)
}

func (tx *billingTx) StockForUpdate(_ context.Context, productRef int64, outletRef *int64) (int, bool, error) {
	key := stockKey(productRef, outletRef)
	for _, rec := range tx.s.stock {
		if stockKey(rec.ProductRef, rec.OutletRef) == key {
			return rec.Quantity - tx.decrements[key], true, nil
		}
	}
	return 0, false, nil
}

func (tx *billingTx) NextInvoiceSequence(_ context.Context) (int64, error) {
	return tx.s.invoiceCount + int64(len(tx.invoices)) + 1, nil
}

func (tx *billingTx) InsertInvoice(_ context.Context, invoice domain.Invoice) error {
	tx.invoices = append(tx.invoices, invoice)
	return nil
}

func (tx *billingTx) InsertInvoiceItem(_ context.Context, item domain.InvoiceItem) error {
	tx.s.nextItemID++
	item.ID = tx.s.nextItemID
	tx.items = append(tx.items, item)
	return nil
}

func (tx *billingTx) DecrementStock(_ context.Context, productRef int64, outletRef *int64, quantity int) error {
	key := stockKey(productRef, outletRef)
	current, found, _ := tx.StockForUpdate(context.Background(), productRef, outletRef)
	if !found || current < quantity {
		return fmt.Errorf("%w: stock underflow for product %d", store.ErrConflict, productRef)
	}
	tx.decrements[key] += quantity
	return nil
}

func (tx *billingTx) apply() {
	for _, invoice := range tx.invoices {
		invoice.Items = nil
		for _, item := range tx.items {
			if item.InvoiceRef == invoice.ID {
				invoice.Items = append(invoice.Items, item)
			}
		}
		tx.s.invoices[invoice.ID.String()] = invoice
		tx.s.invoiceCount++
	}
	for key, qty := range tx.decrements {
		for id, rec := range tx.s.stock {
			if stockKey(rec.ProductRef, rec.OutletRef) == key {
				rec.Quantity -= qty
				tx.s.stock[id] = rec
			}
		}
	}
}
