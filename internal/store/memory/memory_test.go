package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store"
)

func newProduct(t *testing.T, s *Store, code string) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Code:         code,
		Name:         "Test " + code,
		CostPrice:    dec("10"),
		MRP:          dec("20"),
		SellingPrice: dec("15"),
		MinStock:     5,
	}, domain.Barcode{Value: code})
	require.NoError(t, err)
	return p
}

func TestCreateProductRejectsDuplicateCode(t *testing.T) {
	s := New()
	newProduct(t, s, "SPN00109901")
	_, err := s.CreateProduct(context.Background(), domain.Product{
		Code: "SPN00109901", Name: "Duplicate",
	}, domain.Barcode{Value: "SPN00109901"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestUpsertStockAddsToExistingRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")

	first, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 10})
	require.NoError(t, err)
	second, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 5})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 15, second.Quantity)
}

func TestUpsertStockRejectsInactiveOutlet(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	outlet, err := s.CreateOutlet(ctx, domain.Outlet{Name: "Closed", Active: false})
	require.NoError(t, err)

	_, err = s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, OutletRef: &outlet.ID, Quantity: 5})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestEffectiveOfferPrefersLowestID(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	now := time.Now().UTC()
	window := domain.Offer{
		ProductRef: p.ID,
		StartDate:  now.AddDate(0, 0, -1),
		EndDate:    now.AddDate(0, 0, 1),
		Active:     true,
	}

	first := window
	first.Type = domain.OfferPercentage
	first.Percent = dec("10")
	created, err := s.CreateOffer(ctx, first)
	require.NoError(t, err)

	second := window
	second.Type = domain.OfferFlat
	second.Flat = dec("2")
	_, err = s.CreateOffer(ctx, second)
	require.NoError(t, err)

	effective, err := s.EffectiveOffer(ctx, p.ID, now)
	require.NoError(t, err)
	require.Equal(t, created.ID, effective.ID)
}

func TestEffectiveOfferOutsideWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	now := time.Now().UTC()

	_, err := s.CreateOffer(ctx, domain.Offer{
		ProductRef: p.ID, Type: domain.OfferFlat, Flat: dec("2"),
		StartDate: now.AddDate(0, 0, 1), EndDate: now.AddDate(0, 0, 7), Active: true,
	})
	require.NoError(t, err)

	_, err = s.EffectiveOffer(ctx, p.ID, now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteOutletWithStockRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	outlet, err := s.CreateOutlet(ctx, domain.Outlet{Name: "Downtown", Active: true})
	require.NoError(t, err)
	_, err = s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, OutletRef: &outlet.ID, Quantity: 5})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteOutlet(ctx, outlet.ID), store.ErrConflict)

	records, err := s.ListStock(ctx, store.StockFilter{OutletRef: &outlet.ID})
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, s.DeleteStock(ctx, rec.ID))
	}
	require.NoError(t, s.DeleteOutlet(ctx, outlet.ID))
}

func TestBillingTxRollbackLeavesStoreUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	_, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 10})
	require.NoError(t, err)

	failed := s.WithinBillingTx(ctx, func(tx store.BillingTx) error {
		require.NoError(t, tx.DecrementStock(ctx, p.ID, nil, 4))
		require.NoError(t, tx.InsertInvoice(ctx, domain.Invoice{ID: uuid.New(), Number: "INV202608280001"}))
		return store.ErrConflict
	})
	require.ErrorIs(t, failed, store.ErrConflict)

	qty := 0
	err = s.WithinBillingTx(ctx, func(tx store.BillingTx) error {
		q, found, err := tx.StockForUpdate(ctx, p.ID, nil)
		require.True(t, found)
		qty = q
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 10, qty)
}

func TestBillingTxCommitAppliesWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	_, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 10})
	require.NoError(t, err)

	invoiceID := uuid.New()
	err = s.WithinBillingTx(ctx, func(tx store.BillingTx) error {
		seq, err := tx.NextInvoiceSequence(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), seq)
		if err := tx.InsertInvoice(ctx, domain.Invoice{ID: invoiceID, Number: "INV202608280001"}); err != nil {
			return err
		}
		if err := tx.InsertInvoiceItem(ctx, domain.InvoiceItem{
			InvoiceRef: invoiceID, ProductRef: p.ID, ProductCode: p.Code, Quantity: 4,
		}); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, p.ID, nil, 4)
	})
	require.NoError(t, err)

	inv, err := s.InvoiceByID(ctx, invoiceID.String())
	require.NoError(t, err)
	require.Equal(t, "INV202608280001", inv.Number)
	require.Len(t, inv.Items, 1)

	records, err := s.ListStock(ctx, store.StockFilter{ProductRef: &p.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 6, records[0].Quantity)
}

func TestBillingTxStagedDecrementsVisibleWithinTx(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	_, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 5})
	require.NoError(t, err)

	err = s.WithinBillingTx(ctx, func(tx store.BillingTx) error {
		require.NoError(t, tx.DecrementStock(ctx, p.ID, nil, 3))
		qty, found, err := tx.StockForUpdate(ctx, p.ID, nil)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, 2, qty)
		return tx.DecrementStock(ctx, p.ID, nil, 3)
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestConcurrentBillingTxSerializes(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "SPN00109901")
	_, err := s.UpsertStock(ctx, domain.StockRecord{ProductRef: p.ID, Quantity: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.WithinBillingTx(ctx, func(tx store.BillingTx) error {
				qty, found, err := tx.StockForUpdate(ctx, p.ID, nil)
				if err != nil {
					return err
				}
				if !found || qty < 1 {
					return &store.InsufficientStockError{ProductCode: p.Code, Available: qty, Requested: 1}
				}
				return tx.DecrementStock(ctx, p.ID, nil, 1)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)

	records, err := s.ListStock(ctx, store.StockFilter{ProductRef: &p.ID})
	require.NoError(t, err)
	require.Equal(t, 0, records[0].Quantity)
}

func TestNewSeededIsUsable(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, products)

	outlets, err := s.ListOutlets(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, outlets)

	p, err := s.ProductByCode(ctx, "SPN00459901")
	require.NoError(t, err)
	offer, err := s.EffectiveOffer(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, domain.OfferBuyXGetY, offer.Type)
}
