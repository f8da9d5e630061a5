// Package document renders persisted invoices as printable PDF files.
package document

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/metrics"
	"github.com/R3E-Network/billing_layer/services/invoicing"
)

// Layout, in millimetres on an A4 portrait page.
const (
	lineHeight = 10.0
	marginTop  = 20.0
	pageBreakY = 270.0

	titleX  = 105.0
	headerX = 20.0
	bandW   = 170.0

	colItem   = 25.0
	colQty    = 100.0
	colPrice  = 130.0
	colAmount = 160.0

	titleSize = 20.0
	bodySize  = 12.0
	bandFill  = 240
)

// DefaultCreationDate is stamped into every document unless Options overrides it.
var DefaultCreationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures an Emitter.
type Options struct {
	// CurrencyPrefix precedes every amount. The core PDF fonts are cp1252, so
	// symbols outside it (₹) should not be used here. Default "Rs.".
	CurrencyPrefix string
	// Compress enables stream compression. Tests turn it off to inspect text.
	Compress     bool
	CreationDate time.Time
	Title        string
}

// Emitter renders invoices with a fixed layout.
type Emitter struct {
	opts Options
}

// NewEmitter creates an Emitter.
func NewEmitter(opts Options) *Emitter {
	if opts.CurrencyPrefix == "" {
		opts.CurrencyPrefix = "Rs."
	}
	if opts.CreationDate.IsZero() {
		opts.CreationDate = DefaultCreationDate
	}
	if opts.Title == "" {
		opts.Title = "Invoice"
	}
	return &Emitter{opts: opts}
}

// FileName returns the download name for an invoice number.
func FileName(invoiceNumber string) string {
	return fmt.Sprintf("invoice-%s.pdf", invoiceNumber)
}

// Render produces the PDF bytes for inv. The same invoice always yields the
// same bytes.
func (e *Emitter) Render(inv *invoicing.PersistedInvoice) ([]byte, error) {
	if inv == nil {
		return nil, fmt.Errorf("render: nil invoice")
	}
	start := time.Now()
	defer func() { metrics.ObserveRender(time.Since(start)) }()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(e.opts.Compress)
	pdf.SetCreationDate(e.opts.CreationDate)
	pdf.SetModificationDate(e.opts.CreationDate)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(e.opts.Title+" "+inv.InvoiceNumber, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	y := marginTop

	pdf.SetFont("Helvetica", "", titleSize)
	pdf.Text(titleX-pdf.GetStringWidth(e.opts.Title)/2, y, e.opts.Title)
	y += lineHeight * 2

	pdf.SetFont("Helvetica", "", bodySize)
	pdf.Text(headerX, y, tr("Invoice Number: "+inv.InvoiceNumber))
	y += lineHeight
	pdf.Text(headerX, y, "Date: "+inv.Date.Format("2006-01-02"))
	y += lineHeight
	pdf.Text(headerX, y, tr("Customer: "+inv.CustomerName))
	y += lineHeight * 2

	y = e.tableHeader(pdf, y)

	for _, item := range inv.Items {
		y += lineHeight
		if y > pageBreakY {
			pdf.AddPage()
			y = e.tableHeader(pdf, marginTop) + lineHeight
		}
		pdf.Text(colItem, y, tr(item.ProductName))
		pdf.Text(colQty, y, strconv.Itoa(item.Quantity))
		pdf.Text(colPrice, y, e.money(item.Price))
		pdf.Text(colAmount, y, e.money(item.Amount))
	}

	y += lineHeight * 2
	if y+lineHeight*2 > pageBreakY {
		pdf.AddPage()
		y = marginTop
	}
	pdf.Text(colPrice, y, "Subtotal:")
	pdf.Text(colAmount, y, e.money(inv.Subtotal()))
	y += lineHeight
	pdf.Text(colPrice, y, "GST:")
	pdf.Text(colAmount, y, e.money(inv.GSTAmount))
	y += lineHeight
	pdf.SetFont("Helvetica", "B", bodySize)
	pdf.Text(colPrice, y, "Total:")
	pdf.Text(colAmount, y, e.money(inv.TotalAmount))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

func (e *Emitter) tableHeader(pdf *gofpdf.Fpdf, y float64) float64 {
	pdf.SetFillColor(bandFill, bandFill, bandFill)
	pdf.Rect(headerX, y, bandW, lineHeight, "F")
	pdf.Text(colItem, y+7, "Item")
	pdf.Text(colQty, y+7, "Qty")
	pdf.Text(colPrice, y+7, "Price")
	pdf.Text(colAmount, y+7, "Amount")
	return y + lineHeight
}

func (e *Emitter) money(d decimal.Decimal) string {
	return invoicing.FormatMoney(e.opts.CurrencyPrefix, d)
}
