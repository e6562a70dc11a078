// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/auth"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
	"github.com/veristore/veristore/internal/domain/pool"
)

const maxBodySize = 64 << 10

// Checkout runs purchases and invoice settlement.
type Checkout interface {
	PayNow(ctx context.Context, purchases []checkout.Purchase, contact fulfillment.Contact, prefs fulfillment.DeliveryPreferences) (checkout.Receipt, error)
	PayLater(ctx context.Context, purchases []checkout.Purchase, contact fulfillment.Contact, prefs fulfillment.DeliveryPreferences) (checkout.Receipt, error)
	RedeemInvoice(ctx context.Context, no string) (bool, error)
	ProcessGatewayCallback(ctx context.Context, no string) (bool, error)
}

// Records looks up stored orders and invoices.
type Records interface {
	FindOrder(id string) (fulfillment.Order, bool)
	FindInvoice(no string) (fulfillment.Invoice, bool)
	FindOrdersByContact(contact fulfillment.Contact) []fulfillment.Order
}

// Catalog lists purchasable entries.
type Catalog interface {
	Entries() []catalog.Entry
}

// DeliveryLog lists recent deliveries.
type DeliveryLog interface {
	Recent() []delivery.Record
}

// MockSettler records the outcome of a mock checkout.
type MockSettler interface {
	Settle(invoiceNo string, status fulfillment.Status) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithMockGateway serves the mock checkout page backed by m.
func WithMockGateway(m MockSettler) Option {
	return func(h *Handler) { h.mock = m }
}

// WithDeliveryLog serves the delivery outbox.
func WithDeliveryLog(l DeliveryLog) Option {
	return func(h *Handler) { h.deliveries = l }
}

// WithOperatorAuth requires a key accepted by valid in the auth.Header
// header on operator routes.
func WithOperatorAuth(valid func(key string) bool) Option {
	return func(h *Handler) { h.operatorKey = valid }
}

// WithThrottle wraps the routes that settle invoices, which call out to the
// payment gateway, with mw.
func WithThrottle(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.throttle = mw }
}

// Handler serves the storefront API.
type Handler struct {
	checkout    Checkout
	records     Records
	catalog     Catalog
	deliveries  DeliveryLog
	mock        MockSettler
	throttle    func(http.Handler) http.Handler
	operatorKey func(key string) bool
	validate    *validator.Validate
}

// New creates a Handler.
func New(co Checkout, records Records, cat Catalog, opts ...Option) *Handler {
	h := &Handler{
		checkout: co,
		records:  records,
		catalog:  cat,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.ListCatalog)
	mux.HandleFunc("POST /api/orders", h.PayNow)
	mux.HandleFunc("GET /api/orders", h.OrderHistory)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/invoices", h.PayLater)
	mux.HandleFunc("GET /api/invoices/{no}", h.GetInvoice)
	mux.Handle("POST /api/invoices/{no}/redeem", h.limited(h.RedeemInvoice))
	mux.Handle("POST /api/payment/callback", h.limited(h.PaymentCallback))
	mux.Handle("GET /api/payment/callback", h.limited(h.PaymentCallback))
	if h.deliveries != nil {
		mux.Handle("GET /api/deliveries", h.operator(h.ListDeliveries))
	}
	if h.mock != nil {
		mux.Handle("GET /api/mock/checkout", h.limited(h.MockCheckout))
	}
}

func (h *Handler) operator(fn http.HandlerFunc) http.Handler {
	if h.operatorKey == nil {
		return fn
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.operatorKey(r.Header.Get(auth.Header)) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		fn(w, r)
	})
}

func (h *Handler) limited(fn http.HandlerFunc) http.Handler {
	if h.throttle == nil {
		return fn
	}
	return h.throttle(fn)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return errors.Wrap(err, "validate body")
	}
	return nil
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var (
		qtyErr *fulfillment.InvalidQuantityError
		keyErr *catalog.UnknownKeyError
	)
	switch {
	case errors.Is(err, fulfillment.ErrEmptyLines):
		return http.StatusBadRequest
	case errors.As(err, &qtyErr),
		errors.As(err, &keyErr),
		errors.Is(err, catalog.ErrInvalidKey),
		errors.Is(err, fulfillment.ErrCurrencyMismatch),
		errors.Is(err, fulfillment.ErrTotalOverflow),
		errors.Is(err, fulfillment.ErrDuplicateInvoice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError responds with the mapped status. Unexpected errors are
// logged and hidden from the client.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, code, "internal error")
	case http.StatusBadGateway:
		zctx.From(ctx).Warn("Payment gateway failure", zap.Error(err))
		writeError(w, code, checkout.ErrGatewayUnavailable.Error())
	default:
		writeError(w, code, err.Error())
	}
}
