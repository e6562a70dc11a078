package handler

import (
	"net/http"

	"github.com/veristore/veristore/internal/domain/fulfillment"
)

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.records.FindOrder(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order, true))
}

// OrderHistory handles GET /api/orders?email=&msisdn=.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contact := fulfillment.Contact{Email: q.Get("email"), MSISDN: q.Get("msisdn")}
	if fulfillment.Normalize(contact.Email) == "" && fulfillment.Normalize(contact.MSISDN) == "" {
		writeError(w, http.StatusBadRequest, "email or msisdn is required")
		return
	}

	orders := h.records.FindOrdersByContact(contact)
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = newOrderResponse(o, true)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetInvoice handles GET /api/invoices/{no}.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.records.FindInvoice(r.PathValue("no"))
	if !ok {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}

// ListDeliveries handles GET /api/deliveries, newest first.
func (h *Handler) ListDeliveries(w http.ResponseWriter, _ *http.Request) {
	records := h.deliveries.Recent()
	out := make([]deliveryResponse, len(records))
	for i, rec := range records {
		out[i] = newDeliveryResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}
