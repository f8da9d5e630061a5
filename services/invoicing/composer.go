package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/internal/metrics"
)

// ComposerConfig wires a Composer to its collaborators.
type ComposerConfig struct {
	Catalog CatalogLookup
	// Customers checks that a selected customer belongs to CompanyID. Without
	// it customer references are taken as given.
	Customers CustomerLookup
	Ledger    LedgerStore
	Numbers   NumberGenerator
	CompanyID int64
	TaxRate   decimal.Decimal
	Clock     Clock
	Logger    *logging.Logger
}

// Composer holds one invoice draft and turns it into a persisted invoice.
// A Composer is owned by a single session and is not safe for concurrent use.
type Composer struct {
	catalog   CatalogLookup
	customers CustomerLookup
	ledger    LedgerStore
	numbers   NumberGenerator
	companyID int64
	taxRate   decimal.Decimal
	clock     Clock
	logger    *logging.Logger

	draft Draft
}

// NewComposer returns a composer with an empty draft dated today.
func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	c := &Composer{
		catalog:   cfg.Catalog,
		customers: cfg.Customers,
		ledger:    cfg.Ledger,
		numbers:   cfg.Numbers,
		companyID: cfg.CompanyID,
		taxRate:   cfg.TaxRate,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	c.reset()
	return c
}

func (c *Composer) reset() {
	c.draft = Draft{
		IssueDate: dateOf(c.clock()),
		Status:    StatusPending,
		Lines:     []LineItem{},
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TaxRate returns the rate applied by Totals.
func (c *Composer) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Draft returns a copy of the current draft.
func (c *Composer) Draft() Draft {
	return c.draft.clone()
}

// SetCustomer sets the invoice recipient. Zero unsets it. A customer outside
// the draft's company is rejected with a *ValidationError; a failed lookup
// returns a *RemoteError. Either way the draft keeps its prior customer.
func (c *Composer) SetCustomer(ctx context.Context, customerID int64) error {
	if customerID != 0 && c.customers != nil {
		_, err := c.customers.CustomerOf(ctx, c.companyID, customerID)
		switch {
		case errors.Is(err, ErrNotFound):
			return headerInvalid("customer", "customer not found")
		case err != nil:
			return remote("lookup customer", err)
		}
	}
	c.draft.CustomerID = customerID
	return nil
}

// SetIssueDate sets the invoice date, truncated to the calendar day.
func (c *Composer) SetIssueDate(t time.Time) {
	c.draft.IssueDate = dateOf(t)
}

// SetStatus sets the initial payment status.
func (c *Composer) SetStatus(s Status) error {
	if _, err := ParseStatus(string(s)); err != nil {
		return headerInvalid("status", err.Error())
	}
	c.draft.Status = s
	return nil
}

// AddLine appends an empty line: no product, quantity 1, price 0.
func (c *Composer) AddLine() int {
	c.draft.Lines = append(c.draft.Lines, LineItem{Quantity: 1, UnitPrice: decimal.Zero})
	idx := len(c.draft.Lines) - 1
	c.recompute(idx)
	return idx
}

// RemoveLine deletes the line at index. Out-of-range indexes are ignored.
func (c *Composer) RemoveLine(index int) {
	if !c.valid(index) {
		return
	}
	c.draft.Lines = append(c.draft.Lines[:index], c.draft.Lines[index+1:]...)
}

// SetLineProduct selects a product and, when the catalog knows it, copies its
// current price into the line. An unknown product keeps the prior price. Any
// other lookup failure leaves the line untouched and returns a *RemoteError.
func (c *Composer) SetLineProduct(ctx context.Context, index int, productID int64) error {
	if !c.valid(index) {
		return nil
	}
	if productID == 0 {
		c.draft.Lines[index].ProductID = 0
		return nil
	}

	price, err := c.catalog.PriceOf(ctx, c.companyID, productID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.WithContext(ctx).WithField("product_id", productID).Debug("product not in catalog, keeping price")
		c.draft.Lines[index].ProductID = productID
	case err != nil:
		return remote("lookup product price", err)
	default:
		c.draft.Lines[index].ProductID = productID
		c.draft.Lines[index].UnitPrice = price
	}
	c.recompute(index)
	return nil
}

// SetLineQuantity overwrites the quantity of the line at index.
func (c *Composer) SetLineQuantity(index, quantity int) {
	if !c.valid(index) {
		return
	}
	c.draft.Lines[index].Quantity = quantity
	c.recompute(index)
}

// SetLineUnitPrice overwrites the unit price of the line at index.
func (c *Composer) SetLineUnitPrice(index int, price decimal.Decimal) {
	if !c.valid(index) {
		return
	}
	c.draft.Lines[index].UnitPrice = price
	c.recompute(index)
}

func (c *Composer) valid(index int) bool {
	return index >= 0 && index < len(c.draft.Lines)
}

func (c *Composer) recompute(index int) {
	l := &c.draft.Lines[index]
	l.Amount = lineAmount(l.Quantity, l.UnitPrice)
}

// Totals computes subtotal, tax and grand total from the current lines.
func (c *Composer) Totals() Totals {
	return ComputeTotals(c.draft.Lines, c.taxRate)
}

// Validate reports the first problem that would block Submit.
func (c *Composer) Validate() error {
	if c.draft.CustomerID == 0 {
		return headerInvalid("customer", "customer is required")
	}
	if len(c.draft.Lines) == 0 {
		return headerInvalid("lines", "at least one line item is required")
	}
	for i, l := range c.draft.Lines {
		if l.ProductID == 0 {
			return lineInvalid(i, "product", "product is required")
		}
		if l.Quantity < 1 {
			return lineInvalid(i, "quantity", "quantity must be at least 1")
		}
		if l.UnitPrice.IsNegative() {
			return lineInvalid(i, "unit_price", "unit price must not be negative")
		}
		if !l.UnitPrice.Equal(l.UnitPrice.Round(priceScale)) {
			return lineInvalid(i, "unit_price", "unit price must have at most 2 decimal places")
		}
	}
	return nil
}

// Submit validates the draft, writes the invoice header followed by its line
// items and clears the draft. On any error the draft is left as it was.
func (c *Composer) Submit(ctx context.Context) (*PersistedInvoice, error) {
	if err := c.Validate(); err != nil {
		metrics.RecordSubmission("invalid")
		return nil, err
	}

	number, err := c.numbers.Next()
	if err != nil {
		metrics.RecordSubmission("failed")
		return nil, err
	}

	totals := c.Totals()
	header := InvoiceHeader{
		CompanyID:      c.companyID,
		CustomerID:     c.draft.CustomerID,
		InvoiceNumber:  number,
		Date:           c.draft.IssueDate,
		TotalAmount:    totals.GrandTotal,
		GSTAmount:      totals.Tax,
		DiscountAmount: decimal.Zero,
		Status:         c.draft.Status,
	}
	items := append([]LineItem(nil), c.draft.Lines...)

	id, err := c.persist(ctx, header, items)
	if err != nil {
		metrics.RecordSubmission("failed")
		c.logger.WithContext(ctx).WithError(err).WithField("invoice_number", number).Error("invoice submission failed")
		return nil, err
	}

	inv := &PersistedInvoice{
		ID:            id,
		InvoiceHeader: header,
		CreatedAt:     c.clock(),
		Items:         make([]PersistedLineItem, len(items)),
	}
	for i, l := range items {
		inv.Items[i] = PersistedLineItem{
			InvoiceID: id,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
			Amount:    l.Amount,
		}
	}

	metrics.RecordSubmission("created")
	c.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"invoice_id":     id,
		"invoice_number": number,
		"lines":          len(items),
		"total":          header.TotalAmount.StringFixed(2),
	}).Info("invoice created")

	c.reset()
	return inv, nil
}

// persist writes header then items. Without a transactional store an item
// failure is compensated by deleting the header.
func (c *Composer) persist(ctx context.Context, header InvoiceHeader, items []LineItem) (int64, error) {
	if atomic, ok := c.ledger.(AtomicLedger); ok {
		id, err := atomic.CreateInvoice(ctx, header, items)
		return id, remote("create invoice", err)
	}

	id, err := c.ledger.InsertInvoice(ctx, header)
	if err != nil {
		return 0, remote("insert invoice", err)
	}

	if err := c.ledger.InsertLineItems(ctx, id, items); err != nil {
		rerr := &RemoteError{Op: "insert line items", Err: err}
		if cerr := c.compensate(ctx, id); cerr != nil {
			rerr.Orphaned = id
			c.logger.WithContext(ctx).WithError(cerr).WithField("invoice_id", id).Error("could not remove invoice header after line item failure")
		}
		return 0, rerr
	}
	return id, nil
}

func (c *Composer) compensate(ctx context.Context, invoiceID int64) error {
	ctx = context.WithoutCancel(ctx)
	err := c.ledger.DeleteLineItems(ctx, invoiceID)
	if err == nil {
		err = c.ledger.DeleteInvoice(ctx, invoiceID)
	}
	metrics.RecordCompensation(err == nil)
	return err
}

// Cancel discards the draft. Nothing remote is touched.
func (c *Composer) Cancel() {
	c.reset()
}
