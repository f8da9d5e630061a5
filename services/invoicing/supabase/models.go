package supabase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/services/invoicing"
)

// Tables.
const (
	tableProfiles     = "profiles"
	tableCompanies    = "companies"
	tableProducts     = "products"
	tableCustomers    = "customers"
	tableInvoices     = "invoices"
	tableInvoiceItems = "invoice_items"
)

// invoiceSelect embeds the customer name and each item's product name, with
// the owning company so foreign records can be dropped.
const invoiceSelect = "*,customer:customers(name,company_id),items:invoice_items(*,product:products(name,company_id))"

const dateLayout = "2006-01-02"

// pgDate is a Postgres date column ("2006-01-02").
type pgDate struct {
	time.Time
}

func (d pgDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *pgDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	// Tolerate timestamps in date columns.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// nameRef is an embedded relation that carries a name and its owner.
type nameRef struct {
	Name      string `json:"name"`
	CompanyID *int64 `json:"company_id"`
}

// nameFor returns the name unless the record belongs to another company.
func (n *nameRef) nameFor(companyID int64) string {
	if n == nil || (n.CompanyID != nil && *n.CompanyID != companyID) {
		return ""
	}
	return n.Name
}

type profileRow struct {
	ID        string `json:"id"`
	CompanyID *int64 `json:"company_id"`
}

type companyRow struct {
	ID                  int64               `json:"id"`
	Name                string              `json:"name"`
	Address             *string             `json:"address"`
	Phone               *string             `json:"phone"`
	Email               *string             `json:"email"`
	GSTNumber           *string             `json:"gst_number"`
	GSTRate             decimal.NullDecimal `json:"gst_rate"`
	EnableDiscount      *bool               `json:"enable_discount"`
	DefaultDiscountRate decimal.NullDecimal `json:"default_discount_rate"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (r companyRow) toDomain() *invoicing.Company {
	return &invoicing.Company{
		ID:                  r.ID,
		Name:                r.Name,
		Address:             str(r.Address),
		Phone:               str(r.Phone),
		Email:               str(r.Email),
		GSTNumber:           str(r.GSTNumber),
		GSTRate:             r.GSTRate,
		EnableDiscount:      r.EnableDiscount != nil && *r.EnableDiscount,
		DefaultDiscountRate: r.DefaultDiscountRate,
	}
}

// companyPatch builds the PATCH body; only set fields are sent.
func companyPatch(u invoicing.CompanyUpdate) map[string]any {
	patch := map[string]any{}
	if u.Name != nil {
		patch["name"] = *u.Name
	}
	if u.Address != nil {
		patch["address"] = *u.Address
	}
	if u.Phone != nil {
		patch["phone"] = *u.Phone
	}
	if u.Email != nil {
		patch["email"] = *u.Email
	}
	if u.GSTNumber != nil {
		patch["gst_number"] = strings.ToUpper(*u.GSTNumber)
	}
	if u.GSTRate != nil {
		patch["gst_rate"] = *u.GSTRate
	}
	if u.EnableDiscount != nil {
		patch["enable_discount"] = *u.EnableDiscount
	}
	if u.DefaultDiscountRate != nil {
		patch["default_discount_rate"] = *u.DefaultDiscountRate
	}
	patch["updated_at"] = time.Now().UTC()
	return patch
}

type productRow struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Name      string          `json:"name"`
	SKU       *string         `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     *int            `json:"stock"`
	Category  *string         `json:"category"`
}

func (r productRow) toDomain() invoicing.Product {
	p := invoicing.Product{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Name:      r.Name,
		SKU:       str(r.SKU),
		Price:     r.Price,
		Category:  str(r.Category),
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	return p
}

type customerRow struct {
	ID        int64   `json:"id"`
	CompanyID int64   `json:"company_id"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

func (r customerRow) toDomain() invoicing.Customer {
	return invoicing.Customer{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Name:      r.Name,
		Email:     str(r.Email),
		Phone:     str(r.Phone),
		Address:   str(r.Address),
	}
}

type itemRow struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	ProductID *int64          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Product   *nameRef        `json:"product"`
}

func (r itemRow) toDomain(companyID int64) invoicing.PersistedLineItem {
	it := invoicing.PersistedLineItem{
		ID:          r.ID,
		InvoiceID:   r.InvoiceID,
		ProductName: r.Product.nameFor(companyID),
		Quantity:    r.Quantity,
		Price:       r.Price,
		Amount:      r.Amount,
	}
	if r.ProductID != nil {
		it.ProductID = *r.ProductID
	}
	return it
}

type invoiceRow struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	CustomerID     *int64          `json:"customer_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Date           pgDate          `json:"date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	GSTAmount      decimal.Decimal `json:"gst_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	Customer       *nameRef        `json:"customer"`
	Items          []itemRow       `json:"items"`
}

func (r invoiceRow) toDomain() invoicing.PersistedInvoice {
	inv := invoicing.PersistedInvoice{
		ID: r.ID,
		InvoiceHeader: invoicing.InvoiceHeader{
			CompanyID:      r.CompanyID,
			InvoiceNumber:  r.InvoiceNumber,
			Date:           r.Date.Time,
			TotalAmount:    r.TotalAmount,
			GSTAmount:      r.GSTAmount,
			DiscountAmount: r.DiscountAmount,
			Status:         invoicing.Status(r.Status),
		},
		CreatedAt:    r.CreatedAt,
		CustomerName: r.Customer.nameFor(r.CompanyID),
		Items:        make([]invoicing.PersistedLineItem, 0, len(r.Items)),
	}
	if r.CustomerID != nil {
		inv.CustomerID = *r.CustomerID
	}
	for _, it := range r.Items {
		inv.Items = append(inv.Items, it.toDomain(r.CompanyID))
	}
	return inv
}

type invoiceInsert struct {
	CompanyID      int64           `json:"company_id"`
	CustomerID     int64           `json:"customer_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Date           pgDate          `json:"date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	GSTAmount      decimal.Decimal `json:"gst_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         string          `json:"status"`
}

func newInvoiceInsert(h invoicing.InvoiceHeader) invoiceInsert {
	return invoiceInsert{
		CompanyID:      h.CompanyID,
		CustomerID:     h.CustomerID,
		InvoiceNumber:  h.InvoiceNumber,
		Date:           pgDate{h.Date},
		TotalAmount:    h.TotalAmount,
		GSTAmount:      h.GSTAmount,
		DiscountAmount: h.DiscountAmount,
		Status:         string(h.Status),
	}
}

type itemInsert struct {
	InvoiceID int64           `json:"invoice_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}

func newItemInserts(invoiceID int64, items []invoicing.LineItem) []itemInsert {
	out := make([]itemInsert, len(items))
	for i, l := range items {
		out[i] = itemInsert{
			InvoiceID: invoiceID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
			Amount:    l.Amount,
		}
	}
	return out
}
