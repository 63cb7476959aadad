// Package postgres implements store.Repository on PostgreSQL via pgx.
// All money columns are NUMERIC(10,2) and scan straight into
// decimal.Decimal through the shopspring codec registered per
// connection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/domain"
	"github.com/spn-retail/backend-pos/internal/store"
)

// invoiceSeqLock is the advisory lock key that serializes invoice
// number allocation across concurrent confirmations.
const invoiceSeqLock = int64(7_201_100)

// Store is the PostgreSQL-backed repository.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool to databaseURL. A nil tracer disables query
// tracing.
func New(ctx context.Context, databaseURL string, tracer pgx.QueryTracer) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if tracer != nil {
		cfg.ConnConfig.Tracer = tracer
	}
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// --- Catalog ---

const productColumns = `id, code, name, category, cost_price, mrp, selling_price, min_stock, created_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.CostPrice, &p.MRP, &p.SellingPrice, &p.MinStock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, barcode domain.Barcode) (*domain.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO products (code, name, category, cost_price, mrp, selling_price, min_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		product.Code, product.Name, product.Category,
		product.CostPrice, product.MRP, product.SellingPrice, product.MinStock,
	).Scan(&product.ID, &product.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	format := barcode.Format
	if format == "" {
		format = "Code128"
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO barcodes (product_id, value, format) VALUES ($1, $2, $3)`,
		product.ID, barcode.Value, format,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode %s already assigned", store.ErrConflict, barcode.Value)
		}
		return nil, fmt.Errorf("insert barcode: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products ORDER BY id LIMIT $1 OFFSET $2`,
		limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) ProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	return productByCode(ctx, s.pool, code)
}

func productByCode(ctx context.Context, q querier, code string) (*domain.Product, error) {
	return scanProduct(q.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products WHERE code = $1`, code))
}

func (s *Store) BarcodeByProduct(ctx context.Context, productRef int64) (*domain.Barcode, error) {
	var b domain.Barcode
	err := s.pool.QueryRow(ctx, `
		SELECT product_id, value, format FROM barcodes WHERE product_id = $1`,
		productRef).Scan(&b.ProductRef, &b.Value, &b.Format)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CountProductsByCost(ctx context.Context, costPrice decimal.Decimal) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM products WHERE cost_price = $1`, costPrice).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count products by cost: %w", err)
	}
	return count, nil
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// --- Offers ---

const offerColumns = `id, product_id, offer_type,
	COALESCE(x_quantity, 0), COALESCE(y_quantity, 0),
	COALESCE(discount_percent, 0), COALESCE(discount_flat, 0),
	start_date, end_date, is_active`

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var o domain.Offer
	err := row.Scan(&o.ID, &o.ProductRef, &o.Type, &o.BuyX, &o.GetY,
		&o.Percent, &o.Flat, &o.StartDate, &o.EndDate, &o.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) CreateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO offers (product_id, offer_type, x_quantity, y_quantity,
			discount_percent, discount_flat, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		offer.ProductRef, offer.Type, offer.BuyX, offer.GetY,
		offer.Percent, offer.Flat, offer.StartDate, offer.EndDate, offer.Active,
	).Scan(&offer.ID)
	if isForeignKeyViolation(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	return &offer, nil
}

func (s *Store) EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error) {
	return effectiveOffer(ctx, s.pool, productRef, on)
}

// effectiveOffer returns the lowest-id active offer whose window covers
// the given date, keeping the winner stable under overlapping windows.
func effectiveOffer(ctx context.Context, q querier, productRef int64, on time.Time) (*domain.Offer, error) {
	return scanOffer(q.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE product_id = $1 AND is_active
		  AND start_date <= $2::date AND end_date >= $2::date
		ORDER BY id
		LIMIT 1`, productRef, on))
}

// --- Inventory ---

const outletColumns = `id, name, location, phone, email, manager_name, is_active`

func scanOutlet(row pgx.Row) (*domain.Outlet, error) {
	var o domain.Outlet
	err := row.Scan(&o.ID, &o.Name, &o.Location, &o.Phone, &o.Email, &o.ManagerName, &o.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO outlets (name, location, phone, email, manager_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		outlet.Name, outlet.Location, outlet.Phone, outlet.Email, outlet.ManagerName, outlet.Active,
	).Scan(&outlet.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: outlet %q already exists", store.ErrConflict, outlet.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert outlet: %w", err)
	}
	return &outlet, nil
}

func (s *Store) ListOutlets(ctx context.Context, activeOnly bool) ([]domain.Outlet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+outletColumns+` FROM outlets WHERE ($1 = FALSE OR is_active) ORDER BY id`,
		activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}
	defer rows.Close()

	outlets := make([]domain.Outlet, 0)
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, err
		}
		outlets = append(outlets, *o)
	}
	return outlets, rows.Err()
}

func (s *Store) OutletByID(ctx context.Context, id int64) (*domain.Outlet, error) {
	return scanOutlet(s.pool.QueryRow(ctx, `
		SELECT `+outletColumns+` FROM outlets WHERE id = $1`, id))
}

func (s *Store) UpdateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outlets
		SET name = $2, location = $3, phone = $4, email = $5, manager_name = $6, is_active = $7
		WHERE id = $1`,
		outlet.ID, outlet.Name, outlet.Location, outlet.Phone, outlet.Email, outlet.ManagerName, outlet.Active)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: outlet %q already exists", store.ErrConflict, outlet.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("update outlet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return &outlet, nil
}

func (s *Store) DeleteOutlet(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outlets WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: outlet has stock records", store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("delete outlet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) OutletStockSummary(ctx context.Context, outletID int64) (*store.OutletStockSummary, error) {
	if _, err := s.OutletByID(ctx, outletID); err != nil {
		return nil, err
	}
	var summary store.OutletStockSummary
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(s.quantity), 0),
		       COUNT(*) FILTER (WHERE s.quantity < p.min_stock)
		FROM stock s
		JOIN products p ON p.id = s.product_id
		WHERE s.outlet_id = $1`, outletID,
	).Scan(&summary.TotalProducts, &summary.TotalQuantity, &summary.LowStockCount)
	if err != nil {
		return nil, fmt.Errorf("outlet stock summary: %w", err)
	}
	return &summary, nil
}

func (s *Store) UpsertStock(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	if record.OutletRef != nil {
		outlet, err := s.OutletByID(ctx, *record.OutletRef)
		if err != nil {
			return nil, err
		}
		if !outlet.Active {
			return nil, fmt.Errorf("%w: outlet %q is inactive", store.ErrConflict, outlet.Name)
		}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO stock (product_id, outlet_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, outlet_id)
		DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity
		RETURNING id, quantity`,
		record.ProductRef, record.OutletRef, record.Quantity,
	).Scan(&record.ID, &record.Quantity)
	if isForeignKeyViolation(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("upsert stock: %w", err)
	}
	return &record, nil
}

func (s *Store) SetStockQuantity(ctx context.Context, stockID int64, quantity int) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := s.pool.QueryRow(ctx, `
		UPDATE stock SET quantity = $2 WHERE id = $1
		RETURNING id, product_id, outlet_id, quantity`,
		stockID, quantity,
	).Scan(&rec.ID, &rec.ProductRef, &rec.OutletRef, &rec.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set stock quantity: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListStock(ctx context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, outlet_id, quantity
		FROM stock
		WHERE ($1::bigint IS NULL OR product_id = $1)
		  AND ($2::bigint IS NULL OR outlet_id = $2)
		ORDER BY id`,
		filter.ProductRef, filter.OutletRef)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	records := make([]domain.StockRecord, 0)
	for rows.Next() {
		var rec domain.StockRecord
		if err := rows.Scan(&rec.ID, &rec.ProductRef, &rec.OutletRef, &rec.Quantity); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) DeleteStock(ctx context.Context, stockID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stock WHERE id = $1`, stockID)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) LowStock(ctx context.Context, outletRef *int64) ([]store.LowStockEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.code, p.name, s.quantity, p.min_stock, COALESCE(o.name, 'Warehouse')
		FROM stock s
		JOIN products p ON p.id = s.product_id
		LEFT JOIN outlets o ON o.id = s.outlet_id
		WHERE s.quantity < p.min_stock
		  AND ($1::bigint IS NULL OR s.outlet_id = $1)
		ORDER BY s.id`,
		outletRef)
	if err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	defer rows.Close()

	entries := make([]store.LowStockEntry, 0)
	for rows.Next() {
		var e store.LowStockEntry
		if err := rows.Scan(&e.ProductCode, &e.ProductName, &e.Quantity, &e.MinStock, &e.OutletName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Billing ---

func (s *Store) InvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var inv domain.Invoice
	err = s.pool.QueryRow(ctx, `
		SELECT id, invoice_number, total_amount, discount_amount, final_amount, notes, created_at
		FROM invoices WHERE id = $1`, invoiceID,
	).Scan(&inv.ID, &inv.Number, &inv.TotalAmount, &inv.DiscountAmount, &inv.FinalAmount, &inv.Notes, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, product_id, product_code, product_name,
		       quantity, unit_price, discount, line_total, offer_applied
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceRef, &item.ProductRef, &item.ProductCode,
			&item.ProductName, &item.Quantity, &item.UnitPrice, &item.Discount,
			&item.LineTotal, &item.OfferApplied); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}
	return &inv, rows.Err()
}

// WithinBillingTx runs fn inside a single transaction. Stock rows read
// through the transaction are locked FOR UPDATE, so two confirmations
// competing for the same stock serialize and the loser re-reads the
// decremented quantity.
func (s *Store) WithinBillingTx(ctx context.Context, fn func(tx store.BillingTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin billing tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&billingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit billing tx: %w", err)
	}
	return nil
}

type billingTx struct {
	tx pgx.Tx
}

func (b *billingTx) ProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	return productByCode(ctx, b.tx, code)
}

func (b *billingTx) EffectiveOffer(ctx context.Context, productRef int64, on time.Time) (*domain.Offer, error) {
	return effectiveOffer(ctx, b.tx, productRef, on)
}

func (b *billingTx) StockForUpdate(ctx context.Context, productRef int64, outletRef *int64) (int, bool, error) {
	var quantity int
	err := b.tx.QueryRow(ctx, `
		SELECT quantity FROM stock
		WHERE product_id = $1 AND outlet_id IS NOT DISTINCT FROM $2
		FOR UPDATE`,
		productRef, outletRef).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lock stock row: %w", err)
	}
	return quantity, true, nil
}

// NextInvoiceSequence allocates the next global invoice counter value.
// The advisory lock is transaction-scoped, so the count stays exclusive
// until the invoice insert commits or rolls back with it.
func (b *billingTx) NextInvoiceSequence(ctx context.Context) (int64, error) {
	if _, err := b.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, invoiceSeqLock); err != nil {
		return 0, fmt.Errorf("acquire invoice lock: %w", err)
	}
	var count int64
	if err := b.tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return count + 1, nil
}

func (b *billingTx) InsertInvoice(ctx context.Context, invoice domain.Invoice) error {
	_, err := b.tx.Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, total_amount, discount_amount, final_amount, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invoice.ID, invoice.Number, invoice.TotalAmount, invoice.DiscountAmount,
		invoice.FinalAmount, invoice.Notes, invoice.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: invoice number %s already exists", store.ErrConflict, invoice.Number)
	}
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (b *billingTx) InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) error {
	_, err := b.tx.Exec(ctx, `
		INSERT INTO invoice_items (invoice_id, product_id, product_code, product_name,
			quantity, unit_price, discount, line_total, offer_applied)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.InvoiceRef, item.ProductRef, item.ProductCode, item.ProductName,
		item.Quantity, item.UnitPrice, item.Discount, item.LineTotal, item.OfferApplied)
	if err != nil {
		return fmt.Errorf("insert invoice item: %w", err)
	}
	return nil
}

func (b *billingTx) DecrementStock(ctx context.Context, productRef int64, outletRef *int64, quantity int) error {
	tag, err := b.tx.Exec(ctx, `
		UPDATE stock SET quantity = quantity - $3
		WHERE product_id = $1 AND outlet_id IS NOT DISTINCT FROM $2 AND quantity >= $3`,
		productRef, outletRef, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock underflow for product %d", store.ErrConflict, productRef)
	}
	return nil
}
