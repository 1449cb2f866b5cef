package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
)

// InvoiceResponse is an invoice with its computed total
type InvoiceResponse struct {
	models.Invoice
	Total float64 `json:"total"`
}

// InvoiceListResponse is the response for GET /api/v1/invoices
type InvoiceListResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Total    int               `json:"total"`
}

func invoiceResponse(inv *models.Invoice) InvoiceResponse {
	return InvoiceResponse{Invoice: *inv, Total: inv.Total()}
}

// handleListInvoices handles GET /api/v1/invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.deps.Invoices.List(r.Context(), currentUser(r).ID, r.URL.Query().Get("client_id"))
	if err != nil {
		s.sendStoreError(w, err, "invoice")
		return
	}

	resp := InvoiceListResponse{
		Invoices: make([]InvoiceResponse, len(invoices)),
		Total:    len(invoices),
	}
	for i := range invoices {
		resp.Invoices[i] = invoiceResponse(&invoices[i])
	}
	sendJSON(w, http.StatusOK, resp)
}

// handleCreateInvoice handles POST /api/v1/invoices
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv models.Invoice
	if !decodeJSON(w, r, &inv) {
		return
	}

	if err := s.deps.Invoices.Create(r.Context(), currentUser(r).ID, &inv); err != nil {
		s.sendStoreError(w, err, "invoice")
		return
	}

	s.logger.Info("invoice created", "invoice_id", inv.ID, "number", inv.Number)
	sendJSON(w, http.StatusCreated, invoiceResponse(&inv))
}

// handleGetInvoice handles GET /api/v1/invoices/{id}
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invoices.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "invoice")
		return
	}
	sendJSON(w, http.StatusOK, invoiceResponse(inv))
}

// handleUpdateInvoice handles PUT /api/v1/invoices/{id}
func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var u repository.InvoiceUpdate
	if !decodeJSON(w, r, &u) {
		return
	}

	inv, err := s.deps.Invoices.Update(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"), u)
	if err != nil {
		s.sendStoreError(w, err, "invoice")
		return
	}
	sendJSON(w, http.StatusOK, invoiceResponse(inv))
}

// handleDeleteInvoice handles DELETE /api/v1/invoices/{id}
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Invoices.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		s.sendStoreError(w, err, "invoice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
