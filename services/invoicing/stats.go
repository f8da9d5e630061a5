package invoicing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

const recentInvoiceCount = 5

// Stats summarises a company's invoices for the dashboard.
type Stats struct {
	TotalSales      decimal.Decimal    `json:"total_sales"`
	PendingPayments decimal.Decimal    `json:"pending_payments"`
	OverdueAmount   decimal.Decimal    `json:"overdue_amount"`
	InvoiceCount    int                `json:"invoice_count"`
	ByStatus        map[Status]int     `json:"by_status"`
	TotalProducts   int                `json:"total_products"`
	TotalCustomers  int                `json:"total_customers"`
	Recent          []PersistedInvoice `json:"recent"`
}

// ComputeStats aggregates invoices. TotalSales covers every invoice;
// PendingPayments only those still pending.
func ComputeStats(invoices []PersistedInvoice) Stats {
	st := Stats{
		TotalSales:      decimal.Zero,
		PendingPayments: decimal.Zero,
		OverdueAmount:   decimal.Zero,
		InvoiceCount:    len(invoices),
		ByStatus:        map[Status]int{StatusPending: 0, StatusPaid: 0, StatusOverdue: 0},
	}
	for _, inv := range invoices {
		st.TotalSales = st.TotalSales.Add(inv.TotalAmount)
		st.ByStatus[inv.Status]++
		switch inv.Status {
		case StatusPending:
			st.PendingPayments = st.PendingPayments.Add(inv.TotalAmount)
		case StatusOverdue:
			st.OverdueAmount = st.OverdueAmount.Add(inv.TotalAmount)
		}
	}

	recent := append([]PersistedInvoice(nil), invoices...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentInvoiceCount {
		recent = recent[:recentInvoiceCount]
	}
	st.Recent = recent
	return st
}

// Stats loads the dashboard summary for companyID.
func (s *Service) Stats(ctx context.Context, companyID int64) (*Stats, error) {
	invoices, err := s.ListInvoices(ctx, companyID)
	if err != nil {
		return nil, err
	}
	products, err := s.Products(ctx, companyID)
	if err != nil {
		return nil, err
	}
	customers, err := s.Customers(ctx, companyID)
	if err != nil {
		return nil, err
	}

	st := ComputeStats(invoices)
	st.TotalProducts = len(products)
	st.TotalCustomers = len(customers)
	return &st, nil
}
