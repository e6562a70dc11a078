package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veristore/veristore/internal/domain/fulfillment"
)

// RedeemInvoice handles POST /api/invoices/{no}/redeem.
func (h *Handler) RedeemInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	no := strings.TrimSpace(r.PathValue("no"))
	if _, ok := h.records.FindInvoice(no); !ok {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}

	paid, err := h.checkout.RedeemInvoice(ctx, no)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{InvoiceNo: no, Paid: paid})
}

// PaymentCallback handles the gateway notification. The invoice number is
// read from the query string or a form body. It answers 200 when the
// invoice was fulfilled and 202 when it is still open.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	no := strings.TrimSpace(formValue(w, r, "invoice_number"))
	if no == "" {
		lg.Warn("Payment callback without invoice number")
		writeText(w, http.StatusBadRequest, "invoice_number is required")
		return
	}
	lg.Info("Processing payment callback", zap.String("invoice_no", no))

	h.settleCallback(w, r, no)
}

// MockCheckout handles GET /api/mock/checkout, the page the mock gateway
// sends buyers to. paid=false leaves the invoice pending.
func (h *Handler) MockCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	no := strings.TrimSpace(r.URL.Query().Get("invoice"))
	if no == "" {
		writeText(w, http.StatusBadRequest, "invoice is required")
		return
	}
	if paid, err := strconv.ParseBool(r.URL.Query().Get("paid")); err == nil && !paid {
		writeText(w, http.StatusAccepted, "Invoice "+no+" remains pending")
		return
	}

	if err := h.mock.Settle(no, fulfillment.StatusPaid); err != nil {
		zctx.From(ctx).Warn("Mock settle failed", zap.String("invoice_no", no), zap.Error(err))
		writeText(w, http.StatusNotFound, err.Error())
		return
	}
	h.settleCallback(w, r, no)
}

func (h *Handler) settleCallback(w http.ResponseWriter, r *http.Request, no string) {
	ctx := r.Context()
	fulfilled, err := h.checkout.ProcessGatewayCallback(ctx, no)
	if err != nil {
		zctx.From(ctx).Error("Payment callback failed", zap.String("invoice_no", no), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "callback processing failed")
		return
	}
	if !fulfilled {
		writeText(w, http.StatusAccepted, "Invoice "+no+" remains pending")
		return
	}
	writeText(w, http.StatusOK, "Invoice "+no+" paid")
}

func formValue(w http.ResponseWriter, r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostForm.Get(key)
}
