// Package supabase stores invoices in Supabase through its PostgREST API.
//
// Header and line items are written in two requests; the composer deletes
// the header if the item write fails.
package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/supabase/client"
)

// =============================================================================
// Supabase Repository Implementation
// =============================================================================

// Repository implements invoicing.Backend over PostgREST.
type Repository struct {
	db *client.Client
}

// NewRepository creates a repository using c.
func NewRepository(c *client.Client) *Repository {
	return &Repository{db: c}
}

var _ invoicing.Backend = (*Repository)(nil)

func notFound(err error) error {
	if client.IsNoRows(err) {
		return invoicing.ErrNotFound
	}
	return err
}

// PriceOf implements invoicing.CatalogLookup.
func (r *Repository) PriceOf(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	var row productRow
	err := r.db.From(tableProducts).
		Select("id,price").
		Eq("id", productID).
		Eq("company_id", companyID).
		Single().
		ExecuteInto(ctx, &row)
	if err != nil {
		return decimal.Zero, notFound(err)
	}
	return row.Price, nil
}

// InsertInvoice writes the header and returns its generated ID.
func (r *Repository) InsertInvoice(ctx context.Context, header invoicing.InvoiceHeader) (int64, error) {
	resp, err := r.db.From(tableInvoices).
		Select("id").
		Single().
		ExecuteInsert(ctx, newInvoiceInsert(header))
	if err != nil {
		return 0, err
	}
	id := resp.Get("id").Int()
	if id == 0 {
		return 0, fmt.Errorf("insert invoice: no id in response")
	}
	return id, nil
}

// InsertLineItems writes all items in one request.
func (r *Repository) InsertLineItems(ctx context.Context, invoiceID int64, items []invoicing.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := r.db.From(tableInvoiceItems).
		Select("id").
		ExecuteInsert(ctx, newItemInserts(invoiceID, items))
	return err
}

// DeleteLineItems removes every item of invoiceID.
func (r *Repository) DeleteLineItems(ctx context.Context, invoiceID int64) error {
	_, err := r.db.From(tableInvoiceItems).Eq("invoice_id", invoiceID).ExecuteDelete(ctx)
	return err
}

// DeleteInvoice removes the header row.
func (r *Repository) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	_, err := r.db.From(tableInvoices).Eq("id", invoiceID).ExecuteDelete(ctx)
	return err
}

// ListInvoices returns the company's invoices, newest first.
func (r *Repository) ListInvoices(ctx context.Context, companyID int64) ([]invoicing.PersistedInvoice, error) {
	var rows []invoiceRow
	err := r.db.From(tableInvoices).
		Select(invoiceSelect).
		Eq("company_id", companyID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]invoicing.PersistedInvoice, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// GetInvoice loads one invoice with customer and product names.
func (r *Repository) GetInvoice(ctx context.Context, invoiceID int64) (*invoicing.PersistedInvoice, error) {
	var row invoiceRow
	err := r.db.From(tableInvoices).
		Select(invoiceSelect).
		Eq("id", invoiceID).
		Single().
		ExecuteInto(ctx, &row)
	if err != nil {
		return nil, notFound(err)
	}
	inv := row.toDomain()
	return &inv, nil
}

// UpdateInvoiceStatus sets status on one invoice.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoicing.Status) error {
	resp, err := r.db.From(tableInvoices).
		Select("id").
		Eq("id", invoiceID).
		ExecuteUpdate(ctx, map[string]any{"status": status})
	if err != nil {
		return err
	}
	if resp.Get("#").Int() == 0 {
		return invoicing.ErrNotFound
	}
	return nil
}

// MarkOverdue flips pending invoices dated before cutoff.
func (r *Repository) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	resp, err := r.db.From(tableInvoices).
		Select("id").
		Eq("status", invoicing.StatusPending).
		Lt("date", cutoff.Format(dateLayout)).
		ExecuteUpdate(ctx, map[string]any{"status": invoicing.StatusOverdue})
	if err != nil {
		return 0, err
	}
	return resp.Get("#").Int(), nil
}

// CompanyIDForUser reads profiles.company_id for the user.
func (r *Repository) CompanyIDForUser(ctx context.Context, userID string) (int64, error) {
	var row profileRow
	err := r.db.From(tableProfiles).
		Select("id,company_id").
		Eq("id", userID).
		Single().
		ExecuteInto(ctx, &row)
	if err != nil {
		return 0, notFound(err)
	}
	if row.CompanyID == nil {
		return 0, nil
	}
	return *row.CompanyID, nil
}

// GetCompany loads company settings.
func (r *Repository) GetCompany(ctx context.Context, companyID int64) (*invoicing.Company, error) {
	var row companyRow
	err := r.db.From(tableCompanies).
		Select("*").
		Eq("id", companyID).
		Single().
		ExecuteInto(ctx, &row)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// UpdateCompany patches the given fields and returns the updated row.
func (r *Repository) UpdateCompany(ctx context.Context, companyID int64, update invoicing.CompanyUpdate) (*invoicing.Company, error) {
	resp, err := r.db.From(tableCompanies).
		Select("*").
		Eq("id", companyID).
		ExecuteUpdate(ctx, companyPatch(update))
	if err != nil {
		return nil, err
	}
	var rows []companyRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode companies: %w", err)
	}
	if len(rows) == 0 {
		return nil, invoicing.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// ListProducts returns the company's catalog ordered by name.
func (r *Repository) ListProducts(ctx context.Context, companyID int64) ([]invoicing.Product, error) {
	var rows []productRow
	err := r.db.From(tableProducts).
		Select("*").
		Eq("company_id", companyID).
		Order("name", true).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]invoicing.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CustomerOf implements invoicing.CustomerLookup.
func (r *Repository) CustomerOf(ctx context.Context, companyID, customerID int64) (*invoicing.Customer, error) {
	var row customerRow
	err := r.db.From(tableCustomers).
		Select("*").
		Eq("id", customerID).
		Eq("company_id", companyID).
		Single().
		ExecuteInto(ctx, &row)
	if err != nil {
		return nil, notFound(err)
	}
	c := row.toDomain()
	return &c, nil
}

// ListCustomers returns the company's customers ordered by name.
func (r *Repository) ListCustomers(ctx context.Context, companyID int64) ([]invoicing.Customer, error) {
	var rows []customerRow
	err := r.db.From(tableCustomers).
		Select("*").
		Eq("company_id", companyID).
		Order("name", true).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]invoicing.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
