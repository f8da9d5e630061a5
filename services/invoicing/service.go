package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/logging"
)

// ServiceConfig wires the invoicing service.
type ServiceConfig struct {
	Backend Backend
	// Catalog overrides Backend's price lookup, e.g. with a cache.
	Catalog CatalogLookup
	// Sweeper runs the overdue sweep outside any user session, e.g. with
	// service-role credentials. Defaults to Backend.
	Sweeper StatusUpdater
	Numbers NumberGenerator
	// DefaultTaxRate applies to companies without a GST rate. Unset means
	// DefaultTaxRate (0.18); a set zero is honoured.
	DefaultTaxRate decimal.NullDecimal
	OverdueAfter   time.Duration
	Clock          Clock
	Logger         *logging.Logger
}

// Service exposes invoice operations scoped to a company.
type Service struct {
	backend      Backend
	catalog      CatalogLookup
	sweeper      StatusUpdater
	numbers      NumberGenerator
	defaultRate  decimal.Decimal
	overdueAfter time.Duration
	clock        Clock
	logger       *logging.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("invoicing: backend is required")
	}
	if cfg.Numbers == nil {
		return nil, fmt.Errorf("invoicing: number generator is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = cfg.Backend
	}
	if cfg.Sweeper == nil {
		cfg.Sweeper = cfg.Backend
	}
	rate := DefaultTaxRate
	if cfg.DefaultTaxRate.Valid {
		rate = cfg.DefaultTaxRate.Decimal
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Service{
		backend:      cfg.Backend,
		catalog:      cfg.Catalog,
		sweeper:      cfg.Sweeper,
		numbers:      cfg.Numbers,
		defaultRate:  rate,
		overdueAfter: cfg.OverdueAfter,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}, nil
}

// CompanyFor resolves the company the user acts for.
func (s *Service) CompanyFor(ctx context.Context, userID string) (int64, error) {
	id, err := s.backend.CompanyIDForUser(ctx, userID)
	if errors.Is(err, ErrNotFound) || (err == nil && id == 0) {
		return 0, ErrNoCompany
	}
	if err != nil {
		return 0, remote("lookup profile", err)
	}
	return id, nil
}

// TaxRate returns the company's GST rate as a fraction, falling back to the
// configured default when the company has none.
func (s *Service) TaxRate(ctx context.Context, companyID int64) (decimal.Decimal, error) {
	company, err := s.backend.GetCompany(ctx, companyID)
	if errors.Is(err, ErrNotFound) {
		return s.defaultRate, nil
	}
	if err != nil {
		return decimal.Zero, remote("load company", err)
	}
	if !company.GSTRate.Valid {
		return s.defaultRate, nil
	}
	return RateFromPercent(company.GSTRate.Decimal), nil
}

// NewComposer opens a draft for companyID using the company's tax rate.
func (s *Service) NewComposer(ctx context.Context, companyID int64) (*Composer, error) {
	rate, err := s.TaxRate(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return NewComposer(ComposerConfig{
		Catalog:   s.catalog,
		Customers: s.backend,
		Ledger:    s.backend,
		Numbers:   s.numbers,
		CompanyID: companyID,
		TaxRate:   rate,
		Clock:     s.clock,
		Logger:    s.logger,
	}), nil
}

// ListInvoices returns the company's invoices, newest first as stored.
func (s *Service) ListInvoices(ctx context.Context, companyID int64) ([]PersistedInvoice, error) {
	invoices, err := s.backend.ListInvoices(ctx, companyID)
	if err != nil {
		return nil, remote("list invoices", err)
	}
	return invoices, nil
}

// GetInvoice loads an invoice owned by companyID.
func (s *Service) GetInvoice(ctx context.Context, companyID, invoiceID int64) (*PersistedInvoice, error) {
	inv, err := s.backend.GetInvoice(ctx, invoiceID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, remote("load invoice", err)
	}
	if inv.CompanyID != companyID {
		return nil, ErrNotFound
	}
	return inv, nil
}

// DeleteInvoice removes an invoice's line items and then the invoice itself.
func (s *Service) DeleteInvoice(ctx context.Context, companyID, invoiceID int64) error {
	if _, err := s.GetInvoice(ctx, companyID, invoiceID); err != nil {
		return err
	}
	if err := s.backend.DeleteLineItems(ctx, invoiceID); err != nil {
		return remote("delete line items", err)
	}
	if err := s.backend.DeleteInvoice(ctx, invoiceID); err != nil {
		return remote("delete invoice", err)
	}
	s.logger.WithContext(ctx).WithField("invoice_id", invoiceID).Info("invoice deleted")
	return nil
}

// UpdateStatus changes the payment status of an invoice owned by companyID.
func (s *Service) UpdateStatus(ctx context.Context, companyID, invoiceID int64, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return headerInvalid("status", err.Error())
	}
	if _, err := s.GetInvoice(ctx, companyID, invoiceID); err != nil {
		return err
	}
	return remote("update invoice status", s.backend.UpdateInvoiceStatus(ctx, invoiceID, status))
}

// MarkOverdue flips pending invoices older than the configured window to
// overdue. A zero window disables the sweep.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	if s.overdueAfter <= 0 {
		return 0, nil
	}
	cutoff := dateOf(s.clock().Add(-s.overdueAfter))
	n, err := s.sweeper.MarkOverdue(ctx, cutoff)
	if err != nil {
		return 0, remote("mark overdue", err)
	}
	return n, nil
}

// Company returns company settings.
func (s *Service) Company(ctx context.Context, companyID int64) (*Company, error) {
	c, err := s.backend.GetCompany(ctx, companyID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, remote("load company", err)
}

// UpdateCompany applies a partial settings update.
func (s *Service) UpdateCompany(ctx context.Context, companyID int64, update CompanyUpdate) (*Company, error) {
	if update.Empty() {
		return nil, headerInvalid("company", "no fields to update")
	}
	if update.GSTRate != nil && (update.GSTRate.IsNegative() || update.GSTRate.GreaterThan(hundred)) {
		return nil, headerInvalid("gst_rate", "gst rate must be between 0 and 100")
	}
	if update.DefaultDiscountRate != nil && (update.DefaultDiscountRate.IsNegative() || update.DefaultDiscountRate.GreaterThan(hundred)) {
		return nil, headerInvalid("default_discount_rate", "discount rate must be between 0 and 100")
	}
	c, err := s.backend.UpdateCompany(ctx, companyID, update)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return c, remote("update company", err)
}

// Products lists the company's catalog.
func (s *Service) Products(ctx context.Context, companyID int64) ([]Product, error) {
	p, err := s.backend.ListProducts(ctx, companyID)
	return p, remote("list products", err)
}

// Customers lists the company's customers.
func (s *Service) Customers(ctx context.Context, companyID int64) ([]Customer, error) {
	c, err := s.backend.ListCustomers(ctx, companyID)
	return c, remote("list customers", err)
}
