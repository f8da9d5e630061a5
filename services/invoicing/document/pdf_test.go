package document

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/supabase/client"
)

func sampleInvoice(items int) *invoicing.PersistedInvoice {
	inv := &invoicing.PersistedInvoice{
		ID: 42,
		InvoiceHeader: invoicing.InvoiceHeader{
			CompanyID:     7,
			CustomerID:    3,
			InvoiceNumber: "INV1001",
			Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			TotalAmount:   decimal.RequireFromString("295"),
			GSTAmount:     decimal.RequireFromString("45"),
			Status:        invoicing.StatusPending,
		},
		CustomerName: "Bob",
	}
	for i := 0; i < items; i++ {
		inv.Items = append(inv.Items, invoicing.PersistedLineItem{
			ProductName: "Widget",
			Quantity:    2,
			Price:       decimal.RequireFromString("100"),
			Amount:      decimal.RequireFromString("200"),
		})
	}
	return inv
}

func pageCount(pdf []byte) int {
	return bytes.Count(pdf, []byte("/Type /Page\n"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "invoice-INV1001.pdf", FileName("INV1001"))
}

func TestRenderIsDeterministic(t *testing.T) {
	e := NewEmitter(Options{Compress: true})

	a, err := e.Render(sampleInvoice(2))
	require.NoError(t, err)
	b, err := e.Render(sampleInvoice(2))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(a, []byte("%PDF-")))
	assert.Equal(t, a, b)
}

func TestRenderTotals(t *testing.T) {
	e := NewEmitter(Options{})

	out, err := e.Render(sampleInvoice(2))
	require.NoError(t, err)

	text := string(out)
	for _, want := range []string{"Invoice Number: INV1001", "Date: 2024-03-15", "Customer: Bob", "Rs.250.00", "Rs.45.00", "Rs.295.00", "Rs.200.00"} {
		assert.Contains(t, text, want)
	}
	assert.Equal(t, 1, pageCount(out))
}

func TestRenderMissingNames(t *testing.T) {
	inv := sampleInvoice(1)
	inv.CustomerName = ""
	inv.Items[0].ProductName = ""

	out, err := NewEmitter(Options{CurrencyPrefix: "$"}).Render(inv)
	require.NoError(t, err)
	assert.Contains(t, string(out), "(Customer: )")
	assert.Contains(t, string(out), "$295.00")
}

func TestRenderBreaksPages(t *testing.T) {
	out, err := NewEmitter(Options{}).Render(sampleInvoice(40))
	require.NoError(t, err)
	assert.Greater(t, pageCount(out), 1)
}

func TestRenderNil(t *testing.T) {
	_, err := NewEmitter(Options{}).Render(nil)
	assert.Error(t, err)
}

func TestArchiverStore(t *testing.T) {
	var gotPath, gotUpsert, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUpsert = r.Header.Get("x-upsert")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"invoices/7/invoice-INV1001.pdf"}`))
	}))
	defer srv.Close()

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "anon"})
	require.NoError(t, err)

	path, err := NewArchiver(c, "invoices").Store(context.Background(), sampleInvoice(1), []byte("%PDF-1.3"))
	require.NoError(t, err)

	assert.Equal(t, "7/invoice-INV1001.pdf", path)
	assert.True(t, strings.HasSuffix(gotPath, "/storage/v1/object/invoices/7/invoice-INV1001.pdf"), gotPath)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF-1.3", string(gotBody))
}
