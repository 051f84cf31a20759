package invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chris/invoice-settlement/pkg/api"
	"github.com/chris/invoice-settlement/pkg/mapping"
	"github.com/chris/invoice-settlement/pkg/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// InvoicesHandler holds the dependencies for invoice-related handlers.
type InvoicesHandler struct {
	Store storage.InvoiceReader
}

// NewInvoicesHandler creates a new InvoicesHandler.
func NewInvoicesHandler(store storage.InvoiceReader) *InvoicesHandler {
	return &InvoicesHandler{Store: store}
}

// GetInvoiceById handles the logic for retrieving an invoice by its ID.
func (h *InvoicesHandler) GetInvoiceById(w http.ResponseWriter, r *http.Request, invoiceId string) {
	inv, err := h.Store.GetInvoice(r.Context(), invoiceId)
	if err != nil {
		if errors.Is(err, storage.ErrInvoiceNotFound) {
			http.Error(w, "Invoice not found", http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Failed to retrieve invoice: %v", err), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, mapping.ToApiInvoice(inv))
}

// ListOpenInvoices returns one page of a customer's open invoices, oldest first.
func (h *InvoicesHandler) ListOpenInvoices(w http.ResponseWriter, r *http.Request, customerId string, params api.ListOpenInvoicesParams) {
	page, size := 0, defaultPageSize
	if params.Page != nil {
		page = *params.Page
	}
	if params.PageSize != nil {
		size = *params.PageSize
	}
	if page < 0 || size <= 0 || size > maxPageSize {
		http.Error(w, fmt.Sprintf("page must be >= 0 and page_size between 1 and %d", maxPageSize), http.StatusBadRequest)
		return
	}

	result, err := h.Store.QueryOpenInvoices(r.Context(), customerId, storage.PageRequest{
		Page:      page,
		Size:      size,
		Ascending: true,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list invoices: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.InvoicePage{
		Invoices: mapping.ToApiInvoices(result.Invoices),
		Page:     page,
		PageSize: size,
		HasMore:  result.HasMore,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
