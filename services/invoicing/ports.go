package invoicing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogLookup resolves a company's product to its current unit price. A
// missing product, or one owned by another company, yields ErrNotFound.
type CatalogLookup interface {
	PriceOf(ctx context.Context, companyID, productID int64) (decimal.Decimal, error)
}

// CustomerLookup loads a company's customer. A customer of another company
// yields ErrNotFound.
type CustomerLookup interface {
	CustomerOf(ctx context.Context, companyID, customerID int64) (*Customer, error)
}

// LedgerStore is the durable store for invoices and their line items.
type LedgerStore interface {
	InsertInvoice(ctx context.Context, header InvoiceHeader) (int64, error)
	InsertLineItems(ctx context.Context, invoiceID int64, items []LineItem) error
	DeleteLineItems(ctx context.Context, invoiceID int64) error
	DeleteInvoice(ctx context.Context, invoiceID int64) error
	ListInvoices(ctx context.Context, companyID int64) ([]PersistedInvoice, error)
}

// AtomicLedger is implemented by stores that can write a header and its items
// in one transaction. Submit prefers it when available.
type AtomicLedger interface {
	CreateInvoice(ctx context.Context, header InvoiceHeader, items []LineItem) (int64, error)
}

// InvoiceReader loads one invoice with resolved names.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, invoiceID int64) (*PersistedInvoice, error)
}

// StatusUpdater changes invoice payment status.
type StatusUpdater interface {
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status Status) error
	// MarkOverdue flips pending invoices dated before cutoff to overdue and
	// returns how many changed.
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)
}

// Directory exposes the supporting records the composer needs.
type Directory interface {
	CompanyIDForUser(ctx context.Context, userID string) (int64, error)
	GetCompany(ctx context.Context, companyID int64) (*Company, error)
	UpdateCompany(ctx context.Context, companyID int64, update CompanyUpdate) (*Company, error)
	ListProducts(ctx context.Context, companyID int64) ([]Product, error)
	ListCustomers(ctx context.Context, companyID int64) ([]Customer, error)
	CustomerLookup
}

// Backend is everything the Service needs from a storage implementation.
type Backend interface {
	CatalogLookup
	LedgerStore
	InvoiceReader
	StatusUpdater
	Directory
}

// NumberGenerator produces invoice numbers.
type NumberGenerator interface {
	Next() (string, error)
}

// Clock returns the current time.
type Clock func() time.Time
