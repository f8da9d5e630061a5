package invoicing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// In-memory backend
// =============================================================================

// Faults makes MemoryStore operations fail with the given errors.
type Faults struct {
	PriceOf         error
	CustomerOf      error
	InsertInvoice   error
	InsertLineItems error
	DeleteLineItems error
	DeleteInvoice   error
}

// MemoryStore is a Backend kept in process memory. It backs local runs and
// tests; it writes header and items separately like the REST backend.
type MemoryStore struct {
	mu sync.Mutex

	Faults Faults

	profiles  map[string]int64
	companies map[int64]*Company
	products  map[int64]Product
	customers map[int64]Customer
	invoices  map[int64]*PersistedInvoice
	nextID    int64
	calls     map[string]int
	clock     Clock
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]int64),
		companies: make(map[int64]*Company),
		products:  make(map[int64]Product),
		customers: make(map[int64]Customer),
		invoices:  make(map[int64]*PersistedInvoice),
		nextID:    1,
		calls:     make(map[string]int),
		clock:     time.Now,
	}
}

// Calls returns how many times op has been invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of remote-style calls made so far.
func (m *MemoryStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MemoryStore) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// AddCompany stores a company and links userID to it when non-empty.
func (m *MemoryStore) AddCompany(c Company, userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.id()
	}
	m.companies[c.ID] = &c
	if userID != "" {
		m.profiles[userID] = c.ID
	}
	return c.ID
}

// AddProduct stores a catalog entry.
func (m *MemoryStore) AddProduct(p Product) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.products[p.ID] = p
	return p.ID
}

// AddCustomer stores a customer.
func (m *MemoryStore) AddCustomer(c Customer) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.id()
	}
	m.customers[c.ID] = c
	return c.ID
}

// InvoiceCount returns the number of stored invoice headers.
func (m *MemoryStore) InvoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

// PriceOf implements CatalogLookup.
func (m *MemoryStore) PriceOf(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["PriceOf"]++
	if m.Faults.PriceOf != nil {
		return decimal.Zero, m.Faults.PriceOf
	}
	p, ok := m.products[productID]
	if !ok || p.CompanyID != companyID {
		return decimal.Zero, ErrNotFound
	}
	return p.Price, nil
}

// InsertInvoice implements LedgerStore.
func (m *MemoryStore) InsertInvoice(ctx context.Context, header InvoiceHeader) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["InsertInvoice"]++
	if m.Faults.InsertInvoice != nil {
		return 0, m.Faults.InsertInvoice
	}
	return m.insertInvoice(header), nil
}

func (m *MemoryStore) insertInvoice(header InvoiceHeader) int64 {
	inv := &PersistedInvoice{
		ID:            m.id(),
		InvoiceHeader: header,
		CreatedAt:     m.clock(),
		Items:         []PersistedLineItem{},
	}
	m.invoices[inv.ID] = inv
	return inv.ID
}

// InsertLineItems implements LedgerStore.
func (m *MemoryStore) InsertLineItems(ctx context.Context, invoiceID int64, items []LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["InsertLineItems"]++
	if m.Faults.InsertLineItems != nil {
		return m.Faults.InsertLineItems
	}
	return m.insertItems(invoiceID, items)
}

func (m *MemoryStore) insertItems(invoiceID int64, items []LineItem) error {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	for _, l := range items {
		inv.Items = append(inv.Items, PersistedLineItem{
			ID:        m.id(),
			InvoiceID: invoiceID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
			Amount:    l.Amount,
		})
	}
	return nil
}

// DeleteLineItems implements LedgerStore.
func (m *MemoryStore) DeleteLineItems(ctx context.Context, invoiceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteLineItems"]++
	if m.Faults.DeleteLineItems != nil {
		return m.Faults.DeleteLineItems
	}
	if inv, ok := m.invoices[invoiceID]; ok {
		inv.Items = []PersistedLineItem{}
	}
	return nil
}

// DeleteInvoice implements LedgerStore.
func (m *MemoryStore) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteInvoice"]++
	if m.Faults.DeleteInvoice != nil {
		return m.Faults.DeleteInvoice
	}
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil
	}
	if len(inv.Items) > 0 {
		return ErrForeignKey
	}
	delete(m.invoices, invoiceID)
	return nil
}

// ErrForeignKey is returned by MemoryStore when an invoice is deleted while it
// still owns line items.
var ErrForeignKey = errors.New("invoice still has line items")

// ListInvoices implements LedgerStore, newest first.
func (m *MemoryStore) ListInvoices(ctx context.Context, companyID int64) ([]PersistedInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListInvoices"]++
	out := []PersistedInvoice{}
	for _, inv := range m.invoices {
		if inv.CompanyID == companyID {
			out = append(out, m.resolved(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// resolved fills in names, only from records of the invoice's own company.
func (m *MemoryStore) resolved(inv *PersistedInvoice) PersistedInvoice {
	out := *inv
	if c, ok := m.customers[inv.CustomerID]; ok && c.CompanyID == inv.CompanyID {
		out.CustomerName = c.Name
	}
	out.Items = make([]PersistedLineItem, len(inv.Items))
	for i, it := range inv.Items {
		if p, ok := m.products[it.ProductID]; ok && p.CompanyID == inv.CompanyID {
			it.ProductName = p.Name
		}
		out.Items[i] = it
	}
	return out
}

// GetInvoice implements InvoiceReader.
func (m *MemoryStore) GetInvoice(ctx context.Context, invoiceID int64) (*PersistedInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetInvoice"]++
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	out := m.resolved(inv)
	return &out, nil
}

// UpdateInvoiceStatus implements StatusUpdater.
func (m *MemoryStore) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpdateInvoiceStatus"]++
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	return nil
}

// MarkOverdue implements StatusUpdater.
func (m *MemoryStore) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["MarkOverdue"]++
	var n int64
	for _, inv := range m.invoices {
		if inv.Status == StatusPending && inv.Date.Before(cutoff) {
			inv.Status = StatusOverdue
			n++
		}
	}
	return n, nil
}

// CompanyIDForUser implements Directory.
func (m *MemoryStore) CompanyIDForUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CompanyIDForUser"]++
	id, ok := m.profiles[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

// GetCompany implements Directory.
func (m *MemoryStore) GetCompany(ctx context.Context, companyID int64) (*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetCompany"]++
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// UpdateCompany implements Directory.
func (m *MemoryStore) UpdateCompany(ctx context.Context, companyID int64, u CompanyUpdate) (*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpdateCompany"]++
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Address != nil {
		c.Address = *u.Address
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.GSTNumber != nil {
		c.GSTNumber = *u.GSTNumber
	}
	if u.GSTRate != nil {
		c.GSTRate = decimal.NewNullDecimal(*u.GSTRate)
	}
	if u.EnableDiscount != nil {
		c.EnableDiscount = *u.EnableDiscount
	}
	if u.DefaultDiscountRate != nil {
		c.DefaultDiscountRate = decimal.NewNullDecimal(*u.DefaultDiscountRate)
	}
	out := *c
	return &out, nil
}

// ListProducts implements Directory.
func (m *MemoryStore) ListProducts(ctx context.Context, companyID int64) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListProducts"]++
	out := []Product{}
	for _, p := range m.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListCustomers implements Directory.
func (m *MemoryStore) ListCustomers(ctx context.Context, companyID int64) ([]Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListCustomers"]++
	out := []Customer{}
	for _, c := range m.customers {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CustomerOf implements CustomerLookup.
func (m *MemoryStore) CustomerOf(ctx context.Context, companyID, customerID int64) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CustomerOf"]++
	if m.Faults.CustomerOf != nil {
		return nil, m.Faults.CustomerOf
	}
	c, ok := m.customers[customerID]
	if !ok || c.CompanyID != companyID {
		return nil, ErrNotFound
	}
	return &c, nil
}

// AtomicMemoryStore adds single-step invoice creation to MemoryStore.
type AtomicMemoryStore struct {
	*MemoryStore
}

// CreateInvoice implements AtomicLedger. A line item fault leaves nothing
// behind.
func (a AtomicMemoryStore) CreateInvoice(ctx context.Context, header InvoiceHeader, items []LineItem) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["CreateInvoice"]++
	if a.Faults.InsertInvoice != nil {
		return 0, a.Faults.InsertInvoice
	}
	if a.Faults.InsertLineItems != nil {
		return 0, a.Faults.InsertLineItems
	}
	id := a.insertInvoice(header)
	if err := a.insertItems(id, items); err != nil {
		delete(a.invoices, id)
		return 0, err
	}
	return id, nil
}

var (
	_ Backend      = (*MemoryStore)(nil)
	_ AtomicLedger = AtomicMemoryStore{}
)
