package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/billing_layer/services/invoicing"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func header() invoicing.InvoiceHeader {
	return invoicing.InvoiceHeader{
		CompanyID:      1,
		CustomerID:     2,
		InvoiceNumber:  "INV7",
		Date:           time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TotalAmount:    decimal.RequireFromString("295"),
		GSTAmount:      decimal.RequireFromString("45"),
		DiscountAmount: decimal.Zero,
		Status:         invoicing.StatusPending,
	}
}

func lines() []invoicing.LineItem {
	return []invoicing.LineItem{
		{ProductID: 5, Quantity: 2, UnitPrice: decimal.NewFromInt(100), Amount: decimal.NewFromInt(200)},
		{ProductID: 6, Quantity: 1, UnitPrice: decimal.NewFromInt(50), Amount: decimal.NewFromInt(50)},
	}
}

func TestCreateInvoiceCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WithArgs(int64(1), int64(2), "INV7", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
	prep := mock.ExpectPrepare("INSERT INTO invoice_items")
	prep.ExpectExec().WithArgs(int64(31), int64(5), 2, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(int64(31), int64(6), 1, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	id, err := store.CreateInvoice(context.Background(), header(), lines())
	require.NoError(t, err)
	assert.Equal(t, int64(31), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoiceRollsBackOnItemFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
	prep := mock.ExpectPrepare("INSERT INTO invoice_items")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("violates foreign key constraint"))
	mock.ExpectRollback()

	_, err := store.CreateInvoice(context.Background(), header(), lines())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert item 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComposerUsesTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = $1 AND company_id = $2")).
		WithArgs(int64(2), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "email", "phone", "address"}).
			AddRow(int64(2), int64(1), "Bob", nil, nil, nil))
	mock.ExpectQuery("SELECT price FROM products").
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow("100.00"))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(40)))
	prep := mock.ExpectPrepare("INSERT INTO invoice_items")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	numbers, err := invoicing.NewSnowflakeNumbers(2, "INV")
	require.NoError(t, err)
	comp := invoicing.NewComposer(invoicing.ComposerConfig{
		Catalog:   store,
		Customers: store,
		Ledger:    store,
		Numbers:   numbers,
		CompanyID: 1,
		TaxRate:   invoicing.DefaultTaxRate,
	})
	ctx := context.Background()
	require.NoError(t, comp.SetCustomer(ctx, 2))
	i := comp.AddLine()
	require.NoError(t, comp.SetLineProduct(ctx, i, 5))

	inv, err := comp.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), inv.ID)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(118)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceOfNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT price FROM products").WillReturnError(sql.ErrNoRows)

	_, err := store.PriceOf(context.Background(), 1, 9)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestLookupsAreScopedToCompany(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT price FROM products WHERE id = $1 AND company_id = $2")).
		WithArgs(int64(5), int64(1)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = $1 AND company_id = $2")).
		WithArgs(int64(8), int64(1)).
		WillReturnError(sql.ErrNoRows)

	ctx := context.Background()
	_, err := store.PriceOf(ctx, 1, 5)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
	_, err = store.CustomerOf(ctx, 1, 8)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceNamesJoinOwnCompanyOnly(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN customers c ON c.id = i.customer_id AND c.company_id = i.company_id")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "company_id", "customer_id", "invoice_number", "date", "total_amount",
			"gst_amount", "discount_amount", "status", "created_at", "customer_name",
		}).AddRow(int64(11), int64(1), int64(99), "INV2", created, "118", "18", "0", "pending", created, nil))
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN products p ON p.id = ii.product_id AND p.company_id = i.company_id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "product_id", "product_name", "quantity", "price", "amount"}).
			AddRow(int64(1), int64(11), int64(77), nil, 1, "100.00", "100.00"))

	inv, err := store.GetInvoice(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "", inv.CustomerName)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "", inv.Items[0].ProductName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInvoicesAttachesItems(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM invoices i")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "company_id", "customer_id", "invoice_number", "date", "total_amount",
			"gst_amount", "discount_amount", "status", "created_at", "customer_name",
		}).
			AddRow(int64(11), int64(1), int64(2), "INV2", created, "295.0000", "45.0000", "0", "pending", created, "Bob").
			AddRow(int64(10), int64(1), nil, "INV1", created, "118", "18", "0", "paid", created, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM invoice_items ii")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "product_id", "product_name", "quantity", "price", "amount"}).
			AddRow(int64(1), int64(11), int64(5), "Widget", 2, "100.00", "200.00").
			AddRow(int64(2), int64(11), nil, nil, 1, "50.00", "50.00"))

	list, err := store.ListInvoices(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Bob", list[0].CustomerName)
	require.Len(t, list[0].Items, 2)
	assert.Equal(t, "Widget", list[0].Items[0].ProductName)
	assert.Equal(t, "", list[0].Items[1].ProductName)
	assert.True(t, list[0].Subtotal().Equal(decimal.NewFromInt(250)))

	assert.Equal(t, "", list[1].CustomerName)
	assert.Empty(t, list[1].Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInvoiceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM invoices i").WillReturnError(sql.ErrNoRows)

	_, err := store.GetInvoice(context.Background(), 3)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestDeleteOrder(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM invoice_items").WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM invoices").WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, store.DeleteLineItems(ctx, 11))
	require.NoError(t, store.DeleteInvoice(ctx, 11))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceStatusMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE invoices SET status").WithArgs(int64(4), "paid").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateInvoiceStatus(context.Background(), 4, invoicing.StatusPaid)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestMarkOverdue(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs("overdue", "pending", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.MarkOverdue(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestCompanyIDForUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT company_id FROM profiles").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow(int64(7)))
	mock.ExpectQuery("SELECT company_id FROM profiles").
		WithArgs("u2").
		WillReturnError(sql.ErrNoRows)

	id, err := store.CompanyIDForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = store.CompanyIDForUser(context.Background(), "u2")
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func companyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "address", "phone", "email", "gst_number", "gst_rate", "enable_discount", "default_discount_rate"})
}

func TestGetCompany(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM companies").
		WithArgs(int64(7)).
		WillReturnRows(companyRows().AddRow(int64(7), "Acme", nil, nil, "a@example.com", "27ABC", "18.00", false, nil))

	c, err := store.GetCompany(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.True(t, c.GSTRate.Valid)
	assert.True(t, c.GSTRate.Decimal.Equal(decimal.NewFromInt(18)))
	assert.False(t, c.DefaultDiscountRate.Valid)
}

func TestUpdateCompany(t *testing.T) {
	store, mock := newMockStore(t)
	name := "Acme Ltd"
	rate := decimal.NewFromInt(12)
	mock.ExpectQuery("UPDATE companies SET").
		WithArgs(int64(7), "Acme Ltd", nil, nil, nil, nil, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnRows(companyRows().AddRow(int64(7), "Acme Ltd", nil, nil, nil, nil, "12", false, nil))

	c, err := store.UpdateCompany(context.Background(), 7, invoicing.CompanyUpdate{Name: &name, GSTRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", c.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsAndCustomers(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM products").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "sku", "price", "stock", "category"}).
			AddRow(int64(5), int64(1), "Widget", nil, "100.00", 3, "tools"))
	mock.ExpectQuery("FROM customers").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "email", "phone", "address"}).
			AddRow(int64(2), int64(1), "Bob", nil, "555", nil))

	ctx := context.Background()
	products, err := store.ListProducts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(100)))

	customers, err := store.ListCustomers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "555", customers[0].Phone)
}
