// Package postgres stores invoices in a plain PostgreSQL database. Invoice
// headers and their line items are written in one transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/services/invoicing"
)

// Store implements invoicing.Backend and invoicing.AtomicLedger.
type Store struct {
	db *sqlx.DB
}

var (
	_ invoicing.Backend      = (*Store)(nil)
	_ invoicing.AtomicLedger = (*Store)(nil)
)

// Open connects to dsn using lib/pq.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return invoicing.ErrNotFound
	}
	return err
}

// PriceOf implements invoicing.CatalogLookup.
func (s *Store) PriceOf(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := s.db.GetContext(ctx, &price,
		`SELECT price FROM products WHERE id = $1 AND company_id = $2`, productID, companyID)
	if err != nil {
		return decimal.Zero, notFound(err)
	}
	return price, nil
}

const insertInvoiceSQL = `
	INSERT INTO invoices (company_id, customer_id, invoice_number, date, total_amount, gst_amount, discount_amount, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`

const insertItemSQL = `
	INSERT INTO invoice_items (invoice_id, product_id, quantity, price, amount)
	VALUES ($1, $2, $3, $4, $5)`

func insertHeader(ctx context.Context, q sqlx.QueryerContext, h invoicing.InvoiceHeader) (int64, error) {
	var id int64
	err := q.QueryRowxContext(ctx, insertInvoiceSQL,
		h.CompanyID, h.CustomerID, h.InvoiceNumber, h.Date, h.TotalAmount, h.GSTAmount, h.DiscountAmount, string(h.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, invoiceID int64, items []invoicing.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, insertItemSQL)
	if err != nil {
		return fmt.Errorf("prepare insert items: %w", err)
	}
	defer stmt.Close()

	for i, l := range items {
		if _, err := stmt.ExecContext(ctx, invoiceID, l.ProductID, l.Quantity, l.UnitPrice, l.Amount); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateInvoice writes the header and all items in one transaction.
func (s *Store) CreateInvoice(ctx context.Context, header invoicing.InvoiceHeader, items []invoicing.LineItem) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if id, err = insertHeader(ctx, tx, header); err != nil {
			return err
		}
		return insertItems(ctx, tx, id, items)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertInvoice implements invoicing.LedgerStore.
func (s *Store) InsertInvoice(ctx context.Context, header invoicing.InvoiceHeader) (int64, error) {
	return insertHeader(ctx, s.db, header)
}

// InsertLineItems writes the items of one invoice in a transaction.
func (s *Store) InsertLineItems(ctx context.Context, invoiceID int64, items []invoicing.LineItem) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return insertItems(ctx, tx, invoiceID, items)
	})
}

// DeleteLineItems implements invoicing.LedgerStore.
func (s *Store) DeleteLineItems(ctx context.Context, invoiceID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
	return err
}

// DeleteInvoice implements invoicing.LedgerStore.
func (s *Store) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID)
	return err
}

type invoiceRow struct {
	ID             int64           `db:"id"`
	CompanyID      int64           `db:"company_id"`
	CustomerID     sql.NullInt64   `db:"customer_id"`
	InvoiceNumber  string          `db:"invoice_number"`
	Date           time.Time       `db:"date"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	GSTAmount      decimal.Decimal `db:"gst_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	CustomerName   sql.NullString  `db:"customer_name"`
}

func (r invoiceRow) toDomain() invoicing.PersistedInvoice {
	return invoicing.PersistedInvoice{
		ID: r.ID,
		InvoiceHeader: invoicing.InvoiceHeader{
			CompanyID:      r.CompanyID,
			CustomerID:     r.CustomerID.Int64,
			InvoiceNumber:  r.InvoiceNumber,
			Date:           r.Date.UTC(),
			TotalAmount:    r.TotalAmount,
			GSTAmount:      r.GSTAmount,
			DiscountAmount: r.DiscountAmount,
			Status:         invoicing.Status(r.Status),
		},
		CreatedAt:    r.CreatedAt.UTC(),
		CustomerName: r.CustomerName.String,
		Items:        []invoicing.PersistedLineItem{},
	}
}

type itemRow struct {
	ID          int64           `db:"id"`
	InvoiceID   int64           `db:"invoice_id"`
	ProductID   sql.NullInt64   `db:"product_id"`
	ProductName sql.NullString  `db:"product_name"`
	Quantity    int             `db:"quantity"`
	Price       decimal.Decimal `db:"price"`
	Amount      decimal.Decimal `db:"amount"`
}

const selectInvoices = `
	SELECT i.id, i.company_id, i.customer_id, i.invoice_number, i.date, i.total_amount,
	       i.gst_amount, i.discount_amount, i.status, i.created_at, c.name AS customer_name
	FROM invoices i
	LEFT JOIN customers c ON c.id = i.customer_id AND c.company_id = i.company_id`

const selectItems = `
	SELECT ii.id, ii.invoice_id, ii.product_id, p.name AS product_name, ii.quantity, ii.price, ii.amount
	FROM invoice_items ii
	JOIN invoices i ON i.id = ii.invoice_id
	LEFT JOIN products p ON p.id = ii.product_id AND p.company_id = i.company_id
	WHERE ii.invoice_id = ANY($1)
	ORDER BY ii.invoice_id, ii.id`

// ListInvoices returns the company's invoices, newest first, with items.
func (s *Store) ListInvoices(ctx context.Context, companyID int64) ([]invoicing.PersistedInvoice, error) {
	var rows []invoiceRow
	err := s.db.SelectContext(ctx, &rows, selectInvoices+`
	WHERE i.company_id = $1
	ORDER BY i.created_at DESC, i.id DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	out := make([]invoicing.PersistedInvoice, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	if err := s.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachItems(ctx context.Context, invoices []invoicing.PersistedInvoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]int64, len(invoices))
	index := make(map[int64]int, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
		index[inv.ID] = i
	}

	var items []itemRow
	if err := s.db.SelectContext(ctx, &items, selectItems, pq.Array(ids)); err != nil {
		return fmt.Errorf("list invoice items: %w", err)
	}
	for _, it := range items {
		i, ok := index[it.InvoiceID]
		if !ok {
			continue
		}
		invoices[i].Items = append(invoices[i].Items, invoicing.PersistedLineItem{
			ID:          it.ID,
			InvoiceID:   it.InvoiceID,
			ProductID:   it.ProductID.Int64,
			ProductName: it.ProductName.String,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Amount:      it.Amount,
		})
	}
	return nil
}

// GetInvoice implements invoicing.InvoiceReader.
func (s *Store) GetInvoice(ctx context.Context, invoiceID int64) (*invoicing.PersistedInvoice, error) {
	var row invoiceRow
	if err := s.db.GetContext(ctx, &row, selectInvoices+` WHERE i.id = $1`, invoiceID); err != nil {
		return nil, notFound(err)
	}
	invoices := []invoicing.PersistedInvoice{row.toDomain()}
	if err := s.attachItems(ctx, invoices); err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

// UpdateInvoiceStatus implements invoicing.StatusUpdater.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoicing.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, invoiceID, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoicing.ErrNotFound
	}
	return nil
}

// MarkOverdue implements invoicing.StatusUpdater.
func (s *Store) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = $1 WHERE status = $2 AND date < $3`,
		string(invoicing.StatusOverdue), string(invoicing.StatusPending), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompanyIDForUser implements invoicing.Directory.
func (s *Store) CompanyIDForUser(ctx context.Context, userID string) (int64, error) {
	var id sql.NullInt64
	if err := s.db.GetContext(ctx, &id, `SELECT company_id FROM profiles WHERE id = $1`, userID); err != nil {
		return 0, notFound(err)
	}
	return id.Int64, nil
}

type companyRow struct {
	ID                  int64               `db:"id"`
	Name                string              `db:"name"`
	Address             sql.NullString      `db:"address"`
	Phone               sql.NullString      `db:"phone"`
	Email               sql.NullString      `db:"email"`
	GSTNumber           sql.NullString      `db:"gst_number"`
	GSTRate             decimal.NullDecimal `db:"gst_rate"`
	EnableDiscount      bool                `db:"enable_discount"`
	DefaultDiscountRate decimal.NullDecimal `db:"default_discount_rate"`
}

func (r companyRow) toDomain() *invoicing.Company {
	return &invoicing.Company{
		ID:                  r.ID,
		Name:                r.Name,
		Address:             r.Address.String,
		Phone:               r.Phone.String,
		Email:               r.Email.String,
		GSTNumber:           r.GSTNumber.String,
		GSTRate:             r.GSTRate,
		EnableDiscount:      r.EnableDiscount,
		DefaultDiscountRate: r.DefaultDiscountRate,
	}
}

const companyColumns = `id, name, address, phone, email, gst_number, gst_rate, enable_discount, default_discount_rate`

// GetCompany implements invoicing.Directory.
func (s *Store) GetCompany(ctx context.Context, companyID int64) (*invoicing.Company, error) {
	var row companyRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, companyID); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// UpdateCompany applies the set fields; COALESCE keeps the others.
func (s *Store) UpdateCompany(ctx context.Context, companyID int64, u invoicing.CompanyUpdate) (*invoicing.Company, error) {
	var row companyRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE companies SET
			name = COALESCE($2, name),
			address = COALESCE($3, address),
			phone = COALESCE($4, phone),
			email = COALESCE($5, email),
			gst_number = COALESCE(UPPER($6), gst_number),
			gst_rate = COALESCE($7, gst_rate),
			enable_discount = COALESCE($8, enable_discount),
			default_discount_rate = COALESCE($9, default_discount_rate),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+companyColumns,
		companyID, u.Name, u.Address, u.Phone, u.Email, u.GSTNumber,
		nullDecimal(u.GSTRate), u.EnableDiscount, nullDecimal(u.DefaultDiscountRate))
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

type productRow struct {
	ID        int64           `db:"id"`
	CompanyID int64           `db:"company_id"`
	Name      string          `db:"name"`
	SKU       sql.NullString  `db:"sku"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	Category  sql.NullString  `db:"category"`
}

// ListProducts implements invoicing.Directory.
func (s *Store) ListProducts(ctx context.Context, companyID int64) ([]invoicing.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, company_id, name, sku, price, stock, category
		FROM products WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]invoicing.Product, len(rows))
	for i, r := range rows {
		out[i] = invoicing.Product{
			ID: r.ID, CompanyID: r.CompanyID, Name: r.Name, SKU: r.SKU.String,
			Price: r.Price, Stock: r.Stock, Category: r.Category.String,
		}
	}
	return out, nil
}

type customerRow struct {
	ID        int64          `db:"id"`
	CompanyID int64          `db:"company_id"`
	Name      string         `db:"name"`
	Email     sql.NullString `db:"email"`
	Phone     sql.NullString `db:"phone"`
	Address   sql.NullString `db:"address"`
}

func (r customerRow) toDomain() invoicing.Customer {
	return invoicing.Customer{
		ID: r.ID, CompanyID: r.CompanyID, Name: r.Name,
		Email: r.Email.String, Phone: r.Phone.String, Address: r.Address.String,
	}
}

// CustomerOf implements invoicing.CustomerLookup.
func (s *Store) CustomerOf(ctx context.Context, companyID, customerID int64) (*invoicing.Customer, error) {
	var row customerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, company_id, name, email, phone, address
		FROM customers WHERE id = $1 AND company_id = $2`, customerID, companyID)
	if err != nil {
		return nil, notFound(err)
	}
	c := row.toDomain()
	return &c, nil
}

// ListCustomers implements invoicing.Directory.
func (s *Store) ListCustomers(ctx context.Context, companyID int64) ([]invoicing.Customer, error) {
	var rows []customerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, company_id, name, email, phone, address
		FROM customers WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]invoicing.Customer, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
