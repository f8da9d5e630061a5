// Package invoicing implements the invoice composer: draft editing, exact
// decimal totals, validation and the two-table write of an invoice header and
// its line items.
package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusOverdue:
		return st, nil
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// LineItem is one product, quantity and price entry of a draft.
// Amount is derived; only recompute writes it.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// Draft is an invoice being composed.
type Draft struct {
	CustomerID int64      `json:"customer_id"`
	IssueDate  time.Time  `json:"issue_date"`
	Lines      []LineItem `json:"lines"`
	Status     Status     `json:"status"`
}

func (d Draft) clone() Draft {
	out := d
	out.Lines = append([]LineItem(nil), d.Lines...)
	return out
}

// Totals are derived from the draft lines on every read.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// InvoiceHeader is the invoices row written on submit.
type InvoiceHeader struct {
	CompanyID      int64           `json:"company_id"`
	CustomerID     int64           `json:"customer_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Date           time.Time       `json:"date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	GSTAmount      decimal.Decimal `json:"gst_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         Status          `json:"status"`
}

// Subtotal is the pre-tax amount recorded by the header.
func (h InvoiceHeader) Subtotal() decimal.Decimal {
	return h.TotalAmount.Sub(h.GSTAmount)
}

// PersistedLineItem is an invoice_items row with its resolved product name.
type PersistedLineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
}

// PersistedInvoice is a stored invoice with its owned line items.
type PersistedInvoice struct {
	ID int64 `json:"id"`
	InvoiceHeader
	CreatedAt    time.Time           `json:"created_at"`
	CustomerName string              `json:"customer_name"`
	Items        []PersistedLineItem `json:"items"`
}

// Product is a catalog entry.
type Product struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  string          `json:"category"`
}

// Customer is an invoice recipient.
type Customer struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Company holds the issuing business and its tax settings. GSTRate is a
// percentage (18 means 18%).
type Company struct {
	ID                  int64               `json:"id"`
	Name                string              `json:"name"`
	Address             string              `json:"address"`
	Phone               string              `json:"phone"`
	Email               string              `json:"email"`
	GSTNumber           string              `json:"gst_number"`
	GSTRate             decimal.NullDecimal `json:"gst_rate"`
	EnableDiscount      bool                `json:"enable_discount"`
	DefaultDiscountRate decimal.NullDecimal `json:"default_discount_rate"`
}

// CompanyUpdate is a partial update of company settings. Nil fields are left alone.
type CompanyUpdate struct {
	Name                *string          `json:"name,omitempty"`
	Address             *string          `json:"address,omitempty"`
	Phone               *string          `json:"phone,omitempty"`
	Email               *string          `json:"email,omitempty"`
	GSTNumber           *string          `json:"gst_number,omitempty"`
	GSTRate             *decimal.Decimal `json:"gst_rate,omitempty"`
	EnableDiscount      *bool            `json:"enable_discount,omitempty"`
	DefaultDiscountRate *decimal.Decimal `json:"default_discount_rate,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u CompanyUpdate) Empty() bool {
	return u.Name == nil && u.Address == nil && u.Phone == nil && u.Email == nil &&
		u.GSTNumber == nil && u.GSTRate == nil && u.EnableDiscount == nil && u.DefaultDiscountRate == nil
}
