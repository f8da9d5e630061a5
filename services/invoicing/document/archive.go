package document

import (
	"context"
	"fmt"
	"strconv"

	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/supabase/client"
)

const pdfContentType = "application/pdf"

// Archiver keeps a copy of rendered invoices in a Supabase Storage bucket
// under <company_id>/<file name>.
type Archiver struct {
	bucket *client.BucketClient
}

// NewArchiver returns an Archiver for bucket.
func NewArchiver(c *client.Client, bucket string) *Archiver {
	return &Archiver{bucket: c.Storage().From(bucket)}
}

// ObjectPath is where inv is stored inside the bucket.
func ObjectPath(inv *invoicing.PersistedInvoice) string {
	return strconv.FormatInt(inv.CompanyID, 10) + "/" + FileName(inv.InvoiceNumber)
}

// Store uploads data for inv, replacing any earlier copy.
func (a *Archiver) Store(ctx context.Context, inv *invoicing.PersistedInvoice, data []byte) (string, error) {
	path := ObjectPath(inv)
	if _, err := a.bucket.Upload(ctx, path, data, pdfContentType, true); err != nil {
		return "", fmt.Errorf("archive %s: %w", path, err)
	}
	return path, nil
}
