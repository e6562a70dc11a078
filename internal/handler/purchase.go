package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// PayNow handles POST /api/orders. The response is the only place the
// dispensed codes are returned unmasked.
func (h *Handler) PayNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req purchaseRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	purchases, err := req.purchases()
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	receipt, err := h.checkout.PayNow(ctx, purchases, req.contact(), req.prefs())
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	order, ok := h.records.FindOrder(receipt.Reference)
	if !ok {
		writeDomainError(ctx, w, errors.Errorf("order %q vanished after create", receipt.Reference))
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(order, false))
}

// PayLater handles POST /api/invoices.
func (h *Handler) PayLater(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req purchaseRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	purchases, err := req.purchases()
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	receipt, err := h.checkout.PayLater(ctx, purchases, req.contact(), req.prefs())
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	zctx.From(ctx).Debug("Invoice issued", zap.String("invoice_no", receipt.Reference))
	writeJSON(w, http.StatusCreated, receiptResponse{
		InvoiceNo:   receipt.Reference,
		CheckoutURL: receipt.CheckoutURL,
	})
}
