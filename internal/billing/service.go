// Package billing implements basket pricing: side-effect-free invoice
// previews and the atomic confirmation workflow that settles a basket
// into an immutable invoice while decrementing stock.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/obs"
	"github.com/spn-retail/backend-pos/internal/pricing"
	"github.com/spn-retail/backend-pos/internal/store"
)

// LineInput is one requested basket line.
type LineInput struct {
	ProductCode string `json:"productId" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
}

// PreviewRequest is the POST /billing/preview payload.
type PreviewRequest struct {
	Items []LineInput `json:"items" validate:"required,min=1,dive"`
}

// ConfirmRequest is the POST /billing/confirm payload.
type ConfirmRequest struct {
	Items    []LineInput `json:"items" validate:"required,min=1,dive"`
	OutletID *int64      `json:"outletId,omitempty"`
	Notes    string      `json:"notes,omitempty"`
}

// PreviewResult aggregates priced lines without persisting anything.
type PreviewResult struct {
	Items         []domain.InvoiceItem `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TotalDiscount decimal.Decimal      `json:"totalDiscount"`
	FinalTotal    decimal.Decimal      `json:"finalTotal"`
}

// Service prices baskets and settles confirmations.
type Service struct {
	store  store.Billing
	logger zerolog.Logger
	now    func() time.Time
}

// Config configures the Service dependencies.
type Config struct {
	Store  store.Billing
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

// lineReader is the read surface shared by the pool and a billing
// transaction, so preview and confirm price lines through the exact
// same path.
type lineReader interface {
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
	EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error)
}

func productNotFound(code string) *common.AppError {
	return common.NotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", code))
}

func insufficientStock(product *domain.Product, available, requested int) *common.AppError {
	appErr := common.ValidationError("INSUFFICIENT_STOCK",
		fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", product.Name, available, requested),
		map[string]any{
			"productId": product.Code,
			"available": available,
			"requested": requested,
		})
	appErr.Err = &store.InsufficientStockError{
		ProductCode: product.Code,
		ProductName: product.Name,
		Available:   available,
		Requested:   requested,
	}
	return appErr
}

// priceLine resolves the product and its effective offer as of the
// given date and produces the priced line. The discount is rounded to
// money precision and the line total derived from it, so every line
// satisfies lineTotal + discount == unitPrice * quantity exactly.
func (s *Service) priceLine(ctx context.Context, r lineReader, in LineInput, on time.Time) (domain.InvoiceItem, *domain.Product, error) {
	product, err := r.ProductByCode(ctx, in.ProductCode)
	if errors.Is(err, store.ErrNotFound) {
		return domain.InvoiceItem{}, nil, productNotFound(in.ProductCode)
	}
	if err != nil {
		return domain.InvoiceItem{}, nil, err
	}

	var terms pricing.Offer
	offerRow, err := r.EffectiveOffer(ctx, product.ID, on)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.InvoiceItem{}, nil, err
	default:
		terms, err = pricing.Terms(*offerRow)
		if err != nil {
			// A malformed stored offer must not block the sale.
			s.logger.Warn().Err(err).Int64("offer_id", offerRow.ID).Msg("skipping invalid offer")
			terms = nil
		}
	}

	quote := pricing.Price(int64(in.Quantity), product.SellingPrice, terms)
	if terms != nil && obs.OfferAppliedTotal != nil {
		obs.OfferAppliedTotal.WithLabelValues(string(offerRow.Type)).Inc()
	}

	gross := product.SellingPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
	discount := pricing.RoundMoney(quote.Discount)
	return domain.InvoiceItem{
		ProductRef:   product.ID,
		ProductCode:  product.Code,
		ProductName:  product.Name,
		Quantity:     in.Quantity,
		UnitPrice:    pricing.RoundMoney(product.SellingPrice),
		Discount:     discount,
		LineTotal:    gross.Sub(discount),
		OfferApplied: quote.Description,
	}, product, nil
}

// Preview prices the basket in order without touching stock or
// persisting anything. It fails fast on the first unknown product.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if len(req.Items) == 0 {
		return nil, common.ValidationError("EMPTY_BASKET", "basket must contain at least one item", nil)
	}
	today := s.now()

	result := &PreviewResult{
		Items:         make([]domain.InvoiceItem, 0, len(req.Items)),
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
	}
	for _, in := range req.Items {
		line, product, err := s.priceLine(ctx, s.store, in, today)
		if err != nil {
			s.countPreview("error")
			return nil, err
		}
		result.Items = append(result.Items, line)
		result.Subtotal = result.Subtotal.Add(product.SellingPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
		result.TotalDiscount = result.TotalDiscount.Add(line.Discount)
	}
	result.Subtotal = pricing.RoundMoney(result.Subtotal)
	result.TotalDiscount = pricing.RoundMoney(result.TotalDiscount)
	result.FinalTotal = result.Subtotal.Sub(result.TotalDiscount)
	s.countPreview("ok")
	return result, nil
}

// Confirm settles the basket: validates every line against locked stock
// rows, then writes the invoice, its items, and the stock decrements in
// one transaction. Any failure leaves no trace.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*domain.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, common.ValidationError("EMPTY_BASKET", "basket must contain at least one item", nil)
	}
	today := s.now()

	var invoice *domain.Invoice
	err := s.store.WithinBillingTx(ctx, func(tx store.BillingTx) error {
		// Validation phase: resolve every product and lock every stock
		// row before the first write, so a shortage late in the basket
		// cannot strand earlier decrements.
		products := make([]*domain.Product, len(req.Items))
		for i, in := range req.Items {
			product, err := tx.ProductByCode(ctx, in.ProductCode)
			if errors.Is(err, store.ErrNotFound) {
				return productNotFound(in.ProductCode)
			}
			if err != nil {
				return err
			}
			products[i] = product

			available, found, err := tx.StockForUpdate(ctx, product.ID, req.OutletID)
			if err != nil {
				return err
			}
			if !found || available < in.Quantity {
				if obs.InsufficientStockTotal != nil {
					obs.InsufficientStockTotal.Inc()
				}
				return insufficientStock(product, available, in.Quantity)
			}
		}

		// Commit phase: allocate the number, re-price every line with
		// the same engine preview uses, and persist everything.
		seq, err := tx.NextInvoiceSequence(ctx)
		if err != nil {
			return err
		}
		inv := domain.Invoice{
			ID:        uuid.New(),
			Number:    fmt.Sprintf("INV%s%04d", today.Format("20060102"), seq),
			Notes:     req.Notes,
			CreatedAt: today.UTC(),
		}

		subtotal := decimal.Zero
		totalDiscount := decimal.Zero
		items := make([]domain.InvoiceItem, 0, len(req.Items))
		for i, in := range req.Items {
			line, _, err := s.priceLine(ctx, tx, in, today)
			if err != nil {
				return err
			}
			line.InvoiceRef = inv.ID
			items = append(items, line)
			subtotal = subtotal.Add(products[i].SellingPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
			totalDiscount = totalDiscount.Add(line.Discount)
		}
		inv.TotalAmount = pricing.RoundMoney(subtotal)
		inv.DiscountAmount = pricing.RoundMoney(totalDiscount)
		inv.FinalAmount = inv.TotalAmount.Sub(inv.DiscountAmount)

		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		for i, item := range items {
			if err := tx.InsertInvoiceItem(ctx, item); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, item.ProductRef, req.OutletID, req.Items[i].Quantity); err != nil {
				return err
			}
		}

		inv.Items = items
		invoice = &inv
		return nil
	})
	if err != nil {
		s.countConfirm(confirmResult(err))
		return nil, err
	}

	s.countConfirm("confirmed")
	if obs.InvoiceLineCount != nil {
		obs.InvoiceLineCount.Observe(float64(len(invoice.Items)))
	}
	s.logger.Info().
		Str("invoice_number", invoice.Number).
		Str("invoice_id", invoice.ID.String()).
		Int("lines", len(invoice.Items)).
		Str("final_amount", invoice.FinalAmount.String()).
		Msg("invoice confirmed")
	return invoice, nil
}

// InvoiceByID loads a previously confirmed invoice.
func (s *Service) InvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := s.store.InvoiceByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return inv, err
}

func confirmResult(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.HTTPStatus {
		case http.StatusNotFound:
			return "not_found"
		case http.StatusBadRequest:
			if appErr.Code == "INSUFFICIENT_STOCK" {
				return "insufficient_stock"
			}
			return "invalid"
		}
	}
	return "error"
}

func (s *Service) countPreview(result string) {
	if obs.BillingPreviewTotal != nil {
		obs.BillingPreviewTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countConfirm(result string) {
	if obs.BillingConfirmTotal != nil {
		obs.BillingConfirmTotal.WithLabelValues(result).Inc()
	}
}
