package httpapi

import "net/http"

func (s *Service) registerRoutes() {
	r := s.Router()

	r.HandleFunc("/drafts", s.handleOpenDraft).Methods(http.MethodPost)
	r.HandleFunc("/drafts/{id}", s.handleGetDraft).Methods(http.MethodGet)
	r.HandleFunc("/drafts/{id}", s.handleUpdateDraft).Methods(http.MethodPatch)
	r.HandleFunc("/drafts/{id}", s.handleCancelDraft).Methods(http.MethodDelete)
	r.HandleFunc("/drafts/{id}/lines", s.handleAddLine).Methods(http.MethodPost)
	r.HandleFunc("/drafts/{id}/lines/{index:[0-9]+}", s.handleUpdateLine).Methods(http.MethodPatch)
	r.HandleFunc("/drafts/{id}/lines/{index:[0-9]+}", s.handleRemoveLine).Methods(http.MethodDelete)
	r.HandleFunc("/drafts/{id}/submit", s.handleSubmitDraft).Methods(http.MethodPost)

	r.HandleFunc("/invoices", s.handleListInvoices).Methods(http.MethodGet)
	r.HandleFunc("/invoices/{id:[0-9]+}", s.handleGetInvoice).Methods(http.MethodGet)
	r.HandleFunc("/invoices/{id:[0-9]+}", s.handleUpdateInvoiceStatus).Methods(http.MethodPatch)
	r.HandleFunc("/invoices/{id:[0-9]+}", s.handleDeleteInvoice).Methods(http.MethodDelete)
	r.HandleFunc("/invoices/{id:[0-9]+}/pdf", s.handleInvoicePDF).Methods(http.MethodGet)
	if s.archiver != nil {
		r.HandleFunc("/invoices/{id:[0-9]+}/archive", s.handleArchiveInvoice).Methods(http.MethodPost)
	}

	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	r.HandleFunc("/customers", s.handleListCustomers).Methods(http.MethodGet)
	r.HandleFunc("/company", s.handleGetCompany).Methods(http.MethodGet)
	r.HandleFunc("/company", s.handleUpdateCompany).Methods(http.MethodPatch)
}
