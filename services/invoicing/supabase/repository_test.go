package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/supabase/client"
)

type recorded struct {
	method string
	path   string
	query  map[string][]string
	prefer string
	accept string
	body   []byte
}

func newTestRepo(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Repository, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			prefer: r.Header.Get("Prefer"),
			accept: r.Header.Get("Accept"),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "anon"})
	require.NoError(t, err)
	return NewRepository(c), &calls
}

func noRows(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotAcceptable)
	_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows"}`))
}

func TestPriceOf(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"price":75.50}`))
	})

	price, err := repo.PriceOf(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("75.5")))

	c := (*calls)[0]
	assert.Equal(t, "/rest/v1/products", c.path)
	assert.Equal(t, []string{"eq.5"}, c.query["id"])
	assert.Equal(t, []string{"eq.1"}, c.query["company_id"])
	assert.Equal(t, "application/vnd.pgrst.object+json", c.accept)
}

func TestPriceOfNotFound(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) { noRows(w) })

	_, err := repo.PriceOf(context.Background(), 1, 5)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestCustomerOfScopedToCompany(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) { noRows(w) })

	_, err := repo.CustomerOf(context.Background(), 1, 8)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)

	c := (*calls)[0]
	assert.Equal(t, "/rest/v1/customers", c.path)
	assert.Equal(t, []string{"eq.8"}, c.query["id"])
	assert.Equal(t, []string{"eq.1"}, c.query["company_id"])
}

func TestInvoiceDropsForeignNames(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":12,"company_id":1,"customer_id":9,"invoice_number":"INV3","date":"2024-03-15",
		  "total_amount":118,"gst_amount":18,"discount_amount":0,"status":"pending",
		  "created_at":"2024-03-15T10:30:00Z",
		  "customer":{"name":"Other Co customer","company_id":2},
		  "items":[{"id":3,"invoice_id":12,"product_id":7,"quantity":1,"price":100,"amount":100,
		    "product":{"name":"Other Co product","company_id":2}}]}`))
	})

	inv, err := repo.GetInvoice(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "", inv.CustomerName)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "", inv.Items[0].ProductName)
}

func TestPriceOfUpstreamError(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	_, err := repo.PriceOf(context.Background(), 1, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, invoicing.ErrNotFound)
	assert.True(t, client.IsStatus(err, http.StatusInternalServerError))
}

func TestInsertInvoice(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":901}`))
	})

	id, err := repo.InsertInvoice(context.Background(), invoicing.InvoiceHeader{
		CompanyID:      1,
		CustomerID:     2,
		InvoiceNumber:  "INV9",
		Date:           time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TotalAmount:    decimal.RequireFromString("295"),
		GSTAmount:      decimal.RequireFromString("45"),
		DiscountAmount: decimal.Zero,
		Status:         invoicing.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(901), id)

	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "return=representation", c.prefer)

	var body map[string]any
	require.NoError(t, json.Unmarshal(c.body, &body))
	assert.Equal(t, "2024-03-15", body["date"])
	assert.Equal(t, "295", body["total_amount"])
	assert.Equal(t, "45", body["gst_amount"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "INV9", body["invoice_number"])
}

func TestInsertLineItems(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	})

	err := repo.InsertLineItems(context.Background(), 901, []invoicing.LineItem{
		{ProductID: 5, Quantity: 2, UnitPrice: decimal.NewFromInt(100), Amount: decimal.NewFromInt(200)},
		{ProductID: 6, Quantity: 1, UnitPrice: decimal.NewFromInt(50), Amount: decimal.NewFromInt(50)},
	})
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal((*calls)[0].body, &rows))
	require.Len(t, rows, 2)
	assert.EqualValues(t, 901, rows[0]["invoice_id"])
	assert.EqualValues(t, 5, rows[0]["product_id"])
	assert.Equal(t, "200", rows[0]["amount"])
}

func TestInsertLineItemsEmptySkipsRequest(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, repo.InsertLineItems(context.Background(), 1, nil))
	assert.Empty(t, *calls)
}

func TestDeleteFilters(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, repo.DeleteLineItems(ctx, 901))
	require.NoError(t, repo.DeleteInvoice(ctx, 901))

	require.Len(t, *calls, 2)
	assert.Equal(t, "/rest/v1/invoice_items", (*calls)[0].path)
	assert.Equal(t, []string{"eq.901"}, (*calls)[0].query["invoice_id"])
	assert.Equal(t, "/rest/v1/invoices", (*calls)[1].path)
	assert.Equal(t, []string{"eq.901"}, (*calls)[1].query["id"])
	assert.Equal(t, http.MethodDelete, (*calls)[1].method)
}

const invoicesJSON = `[
  {"id":11,"company_id":1,"customer_id":2,"invoice_number":"INV2","date":"2024-03-15",
   "total_amount":295.00,"gst_amount":45.00,"discount_amount":0,"status":"pending",
   "created_at":"2024-03-15T10:30:00.123456+00:00",
   "customer":{"name":"Bob"},
   "items":[
     {"id":1,"invoice_id":11,"product_id":5,"quantity":2,"price":100,"amount":200,"product":{"name":"Widget"}},
     {"id":2,"invoice_id":11,"product_id":null,"quantity":1,"price":50,"amount":50,"product":null}
   ]},
  {"id":10,"company_id":1,"customer_id":null,"invoice_number":"INV1","date":"2024-03-01",
   "total_amount":"118","gst_amount":"18","discount_amount":"0","status":"paid",
   "created_at":"2024-03-01T08:00:00Z","customer":null,"items":[]}
]`

func TestListInvoicesMapsRelations(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(invoicesJSON))
	})

	list, err := repo.ListInvoices(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	c := (*calls)[0]
	assert.Equal(t, []string{invoiceSelect}, c.query["select"])
	assert.Equal(t, []string{"eq.1"}, c.query["company_id"])
	assert.Equal(t, []string{"created_at.desc"}, c.query["order"])

	first := list[0]
	assert.Equal(t, "Bob", first.CustomerName)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), first.Date)
	assert.True(t, first.Subtotal().Equal(decimal.NewFromInt(250)))
	require.Len(t, first.Items, 2)
	assert.Equal(t, "Widget", first.Items[0].ProductName)
	assert.Equal(t, "", first.Items[1].ProductName)
	assert.Equal(t, int64(0), first.Items[1].ProductID)

	second := list[1]
	assert.Equal(t, "", second.CustomerName)
	assert.Equal(t, int64(0), second.CustomerID)
	assert.Equal(t, invoicing.StatusPaid, second.Status)
	assert.True(t, second.TotalAmount.Equal(decimal.NewFromInt(118)))
	assert.NotNil(t, second.Items)
}

func TestGetInvoiceNotFound(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) { noRows(w) })
	_, err := repo.GetInvoice(context.Background(), 99)
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestUpdateInvoiceStatus(t *testing.T) {
	body := `[{"id":11}]`
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	ctx := context.Background()

	require.NoError(t, repo.UpdateInvoiceStatus(ctx, 11, invoicing.StatusPaid))
	assert.Equal(t, http.MethodPatch, (*calls)[0].method)
	assert.JSONEq(t, `{"status":"paid"}`, string((*calls)[0].body))

	body = `[]`
	assert.ErrorIs(t, repo.UpdateInvoiceStatus(ctx, 12, invoicing.StatusPaid), invoicing.ErrNotFound)
}

func TestMarkOverdue(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1},{"id":2},{"id":3}]`))
	})

	n, err := repo.MarkOverdue(context.Background(), time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	c := (*calls)[0]
	assert.Equal(t, []string{"eq.pending"}, c.query["status"])
	assert.Equal(t, []string{"lt.2024-02-14"}, c.query["date"])
	assert.JSONEq(t, `{"status":"overdue"}`, string(c.body))
}

func TestCompanyIDForUser(t *testing.T) {
	body := `{"id":"u1","company_id":7}`
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if body == "" {
			noRows(w)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	ctx := context.Background()

	id, err := repo.CompanyIDForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "/rest/v1/profiles", (*calls)[0].path)

	body = `{"id":"u1","company_id":null}`
	id, err = repo.CompanyIDForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, id)

	body = ""
	_, err = repo.CompanyIDForUser(ctx, "u1")
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestGetCompany(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"name":"Acme","address":null,"gst_number":"27ABCDE1234F1Z5","gst_rate":18.00,"enable_discount":true,"default_discount_rate":null}`))
	})

	c, err := repo.GetCompany(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, "", c.Address)
	assert.True(t, c.GSTRate.Valid)
	assert.True(t, c.GSTRate.Decimal.Equal(decimal.NewFromInt(18)))
	assert.True(t, c.EnableDiscount)
	assert.False(t, c.DefaultDiscountRate.Valid)
}

func TestUpdateCompany(t *testing.T) {
	body := `[{"id":7,"name":"Acme Ltd","gst_rate":12}]`
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	name := "Acme Ltd"
	gst := "27abcde1234f1z5"
	rate := decimal.NewFromInt(12)

	c, err := repo.UpdateCompany(context.Background(), 7, invoicing.CompanyUpdate{Name: &name, GSTNumber: &gst, GSTRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", c.Name)

	var patch map[string]any
	require.NoError(t, json.Unmarshal((*calls)[0].body, &patch))
	assert.Equal(t, "Acme Ltd", patch["name"])
	assert.Equal(t, "27ABCDE1234F1Z5", patch["gst_number"])
	assert.Equal(t, "12", patch["gst_rate"])
	assert.Contains(t, patch, "updated_at")
	assert.NotContains(t, patch, "phone")

	body = `[]`
	_, err = repo.UpdateCompany(context.Background(), 8, invoicing.CompanyUpdate{Name: &name})
	assert.ErrorIs(t, err, invoicing.ErrNotFound)
}

func TestListProductsAndCustomers(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/products":
			_, _ = w.Write([]byte(`[{"id":5,"company_id":1,"name":"Widget","sku":null,"price":"100.00","stock":3,"category":"tools"}]`))
		default:
			_, _ = w.Write([]byte(`[{"id":2,"company_id":1,"name":"Bob","email":"bob@example.com","phone":null,"address":null}]`))
		}
	})
	ctx := context.Background()

	products, err := repo.ListProducts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "", products[0].SKU)
	assert.Equal(t, 3, products[0].Stock)
	assert.Equal(t, []string{"name.asc"}, (*calls)[0].query["order"])

	customers, err := repo.ListCustomers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "bob@example.com", customers[0].Email)
}

func TestComposerCompensatesOverREST(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":5,"price":100}`))
		case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/invoices":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":77}`))
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23503","message":"insert or update on table \"invoice_items\" violates foreign key constraint"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	numbers, err := invoicing.NewSnowflakeNumbers(1, "INV")
	require.NoError(t, err)
	comp := invoicing.NewComposer(invoicing.ComposerConfig{
		Catalog:   repo,
		Ledger:    repo,
		Numbers:   numbers,
		CompanyID: 1,
		TaxRate:   invoicing.DefaultTaxRate,
	})
	require.NoError(t, comp.SetCustomer(ctx, 2))
	i := comp.AddLine()
	require.NoError(t, comp.SetLineProduct(ctx, i, 5))

	_, err = comp.Submit(ctx)

	var rerr *invoicing.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, client.HasCode(err, client.CodeForeignKeyViolation))

	var methods []string
	for _, c := range *calls {
		methods = append(methods, c.method+" "+c.path)
	}
	assert.Equal(t, []string{
		"GET /rest/v1/products",
		"POST /rest/v1/invoices",
		"POST /rest/v1/invoice_items",
		"DELETE /rest/v1/invoice_items",
		"DELETE /rest/v1/invoices",
	}, methods)
	assert.Len(t, comp.Draft().Lines, 1)
}
