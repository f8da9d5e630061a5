package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/billing_layer/internal/errors"
	"github.com/R3E-Network/billing_layer/internal/httputil"
	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/services/invoicing/document"
)

const pdfContentType = "application/pdf"

// StatusPatch changes an invoice's payment status.
type StatusPatch struct {
	Status string `json:"status"`
}

// ArchiveResponse reports where a document was stored.
type ArchiveResponse struct {
	Path string `json:"path"`
}

func invoiceID(r *http.Request) (int64, string) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, raw
	}
	return id, raw
}

// loadInvoice resolves the caller's company and the invoice named in the path.
func (s *Service) loadInvoice(w http.ResponseWriter, r *http.Request) (*invoicing.PersistedInvoice, *http.Request, bool) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return nil, r, false
	}
	id, raw := invoiceID(r)
	inv, err := s.invoicing.GetInvoice(r.Context(), companyID, id)
	if err != nil {
		s.writeError(w, r, err, "invoice", raw)
		return nil, r, false
	}
	return inv, r, true
}

func (s *Service) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	invoices, err := s.invoicing.ListInvoices(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "invoices", "")
		return
	}
	out := make([]InvoiceView, len(invoices))
	for i := range invoices {
		out[i] = s.invoiceView(&invoices[i])
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Service) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, _, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.invoiceView(inv))
}

func (s *Service) handleUpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	var patch StatusPatch
	if !httputil.DecodeJSON(w, r, &patch) {
		return
	}
	status, err := invoicing.ParseStatus(patch.Status)
	if err != nil {
		httputil.WriteError(w, r, errors.Validation("status", err.Error()))
		return
	}

	id, raw := invoiceID(r)
	if err := s.invoicing.UpdateStatus(r.Context(), companyID, id, status); err != nil {
		s.writeError(w, r, err, "invoice", raw)
		return
	}
	inv, err := s.invoicing.GetInvoice(r.Context(), companyID, id)
	if err != nil {
		s.writeError(w, r, err, "invoice", raw)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.invoiceView(inv))
}

func (s *Service) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, raw := invoiceID(r)
	if err := s.invoicing.DeleteInvoice(r.Context(), companyID, id); err != nil {
		s.writeError(w, r, err, "invoice", raw)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	inv, r, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}
	data, err := s.renderer.Render(inv)
	if err != nil {
		s.writeError(w, r, err, "invoice", strconv.FormatInt(inv.ID, 10))
		return
	}
	httputil.WriteAttachment(w, document.FileName(inv.InvoiceNumber), pdfContentType, data)
}

func (s *Service) handleArchiveInvoice(w http.ResponseWriter, r *http.Request) {
	inv, r, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}
	data, err := s.renderer.Render(inv)
	if err != nil {
		s.writeError(w, r, err, "invoice", strconv.FormatInt(inv.ID, 10))
		return
	}
	path, err := s.archiver.Store(r.Context(), inv, data)
	if err != nil {
		httputil.WriteError(w, r, errors.Upstream("archive invoice failed", err))
		return
	}
	s.Logger().WithContext(r.Context()).WithField("path", path).Info("invoice archived")
	httputil.WriteJSON(w, http.StatusCreated, ArchiveResponse{Path: path})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	st, err := s.invoicing.Stats(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "stats", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.statsView(st))
}

func (s *Service) handleListProducts(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	products, err := s.invoicing.Products(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "products", "")
		return
	}
	if products == nil {
		products = []invoicing.Product{}
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (s *Service) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	customers, err := s.invoicing.Customers(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "customers", "")
		return
	}
	if customers == nil {
		customers = []invoicing.Customer{}
	}
	httputil.WriteJSON(w, http.StatusOK, customers)
}

func (s *Service) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	c, err := s.invoicing.Company(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err, "company", strconv.FormatInt(companyID, 10))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (s *Service) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	_, companyID, r, ok := s.caller(w, r)
	if !ok {
		return
	}
	var update invoicing.CompanyUpdate
	if !httputil.DecodeJSON(w, r, &update) {
		return
	}
	c, err := s.invoicing.UpdateCompany(r.Context(), companyID, update)
	if err != nil {
		s.writeError(w, r, err, "company", strconv.FormatInt(companyID, 10))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}
