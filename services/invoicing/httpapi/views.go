package httpapi

import (
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/services/invoicing"
)

const dateLayout = "2006-01-02"

// money carries an exact amount and its display form.
type money struct {
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

func (s *Service) money(d decimal.Decimal) money {
	return money{Amount: d, Display: invoicing.FormatMoney(s.currency, d)}
}

type totalsView struct {
	Subtotal   money `json:"subtotal"`
	Tax        money `json:"tax"`
	GrandTotal money `json:"grand_total"`
}

func (s *Service) totals(t invoicing.Totals) totalsView {
	return totalsView{
		Subtotal:   s.money(t.Subtotal),
		Tax:        s.money(t.Tax),
		GrandTotal: s.money(t.GrandTotal),
	}
}

type lineView struct {
	Index     int   `json:"index"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice money `json:"unit_price"`
	Amount    money `json:"amount"`
}

// DraftView is the JSON form of an open draft session.
type DraftView struct {
	ID         string     `json:"id"`
	CustomerID int64      `json:"customer_id"`
	IssueDate  string     `json:"issue_date"`
	Status     string     `json:"status"`
	TaxRate    string     `json:"tax_rate"`
	Lines      []lineView `json:"lines"`
	Totals     totalsView `json:"totals"`
}

func (s *Service) draftView(id string, c *invoicing.Composer) DraftView {
	d := c.Draft()
	v := DraftView{
		ID:         id,
		CustomerID: d.CustomerID,
		IssueDate:  d.IssueDate.Format(dateLayout),
		Status:     string(d.Status),
		TaxRate:    c.TaxRate().String(),
		Lines:      make([]lineView, len(d.Lines)),
		Totals:     s.totals(c.Totals()),
	}
	for i, l := range d.Lines {
		v.Lines[i] = lineView{
			Index:     i,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: s.money(l.UnitPrice),
			Amount:    s.money(l.Amount),
		}
	}
	return v
}

type itemView struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       money  `json:"price"`
	Amount      money  `json:"amount"`
}

// InvoiceView is the JSON form of a stored invoice.
type InvoiceView struct {
	ID            int64      `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	CustomerID    int64      `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	Date          string     `json:"date"`
	Status        string     `json:"status"`
	Subtotal      money      `json:"subtotal"`
	GST           money      `json:"gst"`
	Discount      money      `json:"discount"`
	Total         money      `json:"total"`
	Items         []itemView `json:"items"`
}

func (s *Service) invoiceView(inv *invoicing.PersistedInvoice) InvoiceView {
	v := InvoiceView{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		CustomerName:  inv.CustomerName,
		Date:          inv.Date.Format(dateLayout),
		Status:        string(inv.Status),
		Subtotal:      s.money(inv.Subtotal()),
		GST:           s.money(inv.GSTAmount),
		Discount:      s.money(inv.DiscountAmount),
		Total:         s.money(inv.TotalAmount),
		Items:         make([]itemView, len(inv.Items)),
	}
	for i, it := range inv.Items {
		v.Items[i] = itemView{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       s.money(it.Price),
			Amount:      s.money(it.Amount),
		}
	}
	return v
}

// StatsView is the dashboard summary.
type StatsView struct {
	TotalSales      money          `json:"total_sales"`
	PendingPayments money          `json:"pending_payments"`
	OverdueAmount   money          `json:"overdue_amount"`
	InvoiceCount    int            `json:"invoice_count"`
	ByStatus        map[string]int `json:"by_status"`
	TotalProducts   int            `json:"total_products"`
	TotalCustomers  int            `json:"total_customers"`
	Recent          []InvoiceView  `json:"recent"`
}

func (s *Service) statsView(st *invoicing.Stats) StatsView {
	v := StatsView{
		TotalSales:      s.money(st.TotalSales),
		PendingPayments: s.money(st.PendingPayments),
		OverdueAmount:   s.money(st.OverdueAmount),
		InvoiceCount:    st.InvoiceCount,
		ByStatus:        make(map[string]int, len(st.ByStatus)),
		TotalProducts:   st.TotalProducts,
		TotalCustomers:  st.TotalCustomers,
		Recent:          make([]InvoiceView, len(st.Recent)),
	}
	for k, n := range st.ByStatus {
		v.ByStatus[string(k)] = n
	}
	for i := range st.Recent {
		v.Recent[i] = s.invoiceView(&st.Recent[i])
	}
	return v
}
