package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/auth"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
	"github.com/veristore/veristore/internal/domain/pool"
	"github.com/veristore/veristore/internal/gateway/mockpay"
)

type server struct {
	mux    *http.ServeMux
	store  *fulfillment.Store
	outbox *delivery.Outbox
	mock   *mockpay.Gateway
}

func newServer(t *testing.T, withMock bool) *server {
	t.Helper()
	cat := catalog.Default()
	s := &server{
		mux:    http.NewServeMux(),
		store:  fulfillment.NewStore(),
		outbox: delivery.NewOutbox(10),
	}

	var coOpts []checkout.Option
	hOpts := []Option{WithDeliveryLog(s.outbox)}
	if withMock {
		s.mock = mockpay.New("http://shop.test")
		coOpts = append(coOpts, checkout.WithGateway(s.mock))
		hOpts = append(hOpts, WithMockGateway(s.mock))
	}
	co, err := checkout.New(cat, pool.New(pool.Config{Replenish: true, LedgerCapacity: 1000}), s.store, s.outbox, coOpts...)
	require.NoError(t, err)

	New(co, s.store, cat, hOpts...).Register(s.mux)
	return s
}

func (s *server) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func purchase(items ...itemRequest) map[string]any {
	return map[string]any{
		"items":    items,
		"email":    "jane@example.com",
		"msisdn":   "+233200000000",
		"by_email": true,
	}
}

func TestListCatalog(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	entries := decodeBody[[]catalogEntry](t, w)
	require.NotEmpty(t, entries)
	var found bool
	for _, e := range entries {
		if e.Key == "ENROLLMENT:CU" {
			found = true
			assert.Equal(t, "GHS", e.Currency)
			assert.EqualValues(t, 6000, e.AmountMinor)
		}
	}
	assert.True(t, found)
}

func TestPayNow(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodPost, "/api/orders", purchase(
		itemRequest{Family: "ENROLLMENT", SKU: "CU", Quantity: 2},
		itemRequest{Family: "enrollment", SKU: "CN", Quantity: 1},
	))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decodeBody[orderResponse](t, w)
	assert.EqualValues(t, 18000, order.TotalMinor)
	require.Len(t, order.Lines, 2)
	require.Len(t, order.Lines[0].Codes, 2)
	assert.Len(t, order.Lines[0].Codes[0], pool.DefaultCodeLength)

	w = s.do(t, http.MethodGet, "/api/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[orderResponse](t, w)
	assert.Equal(t, delivery.Mask(order.Lines[0].Codes[0]), got.Lines[0].Codes[0], "lookups mask codes")

	w = s.do(t, http.MethodGet, "/api/orders?email=JANE@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decodeBody[[]orderResponse](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, order.ID, history[0].ID)

	w = s.do(t, http.MethodGet, "/api/deliveries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sent := decodeBody[[]deliveryResponse](t, w)
	require.Len(t, sent, 1)
	assert.Equal(t, order.ID, sent[0].Reference)
	assert.Equal(t, "email", sent[0].Channel)
}

func TestPayNowErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		body any
		code int
	}{
		{"MalformedBody", "not an object", http.StatusBadRequest},
		{"UnknownField", map[string]any{"items": []any{}, "coupon": "X"}, http.StatusBadRequest},
		{"BadEmail", map[string]any{"items": []any{}, "email": "nope"}, http.StatusBadRequest},
		{"EmptyItems", purchase(), http.StatusBadRequest},
		{"UnknownFamily", purchase(itemRequest{Family: "PASSPORT", SKU: "X", Quantity: 1}), http.StatusUnprocessableEntity},
		{"UnknownSKU", purchase(itemRequest{Family: "ENROLLMENT", SKU: "ZZ", Quantity: 1}), http.StatusUnprocessableEntity},
		{"ZeroQuantity", purchase(itemRequest{Family: "ENROLLMENT", SKU: "CU", Quantity: 0}), http.StatusUnprocessableEntity},
		{"MixedCurrency", purchase(
			itemRequest{Family: "ENROLLMENT", SKU: "CU", Quantity: 1},
			itemRequest{Family: "VERIFICATION", SKU: "Y1", Quantity: 1},
		), http.StatusUnprocessableEntity},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, false)
			w := s.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())

			resp := decodeBody[errorResponse](t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Empty(t, s.outbox.Recent())
		})
	}
}

func TestLookupNotFound(t *testing.T) {
	s := newServer(t, false)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/orders/ORD-0", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/invoices/INV-0", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/invoices/INV-0/redeem", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/orders?email=%20", nil).Code)
}

func TestPayLaterDirect(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodPost, "/api/invoices", purchase(itemRequest{Family: "ENROLLMENT", SKU: "CU", Quantity: 3}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decodeBody[receiptResponse](t, w)
	require.NotEmpty(t, receipt.InvoiceNo)
	assert.Empty(t, receipt.CheckoutURL)

	w = s.do(t, http.MethodGet, "/api/invoices/"+receipt.InvoiceNo, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv := decodeBody[invoiceResponse](t, w)
	assert.Equal(t, "PENDING", inv.Status)
	assert.Empty(t, inv.Lines[0].Codes)

	// Without a gateway nothing can confirm a callback.
	w = s.do(t, http.MethodPost, "/api/payment/callback?invoice_number="+receipt.InvoiceNo, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = s.do(t, http.MethodPost, "/api/invoices/"+receipt.InvoiceNo+"/redeem", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, redeemResponse{InvoiceNo: receipt.InvoiceNo, Paid: true}, decodeBody[redeemResponse](t, w))

	w = s.do(t, http.MethodGet, "/api/invoices/"+receipt.InvoiceNo, nil)
	inv = decodeBody[invoiceResponse](t, w)
	assert.Equal(t, "PAID", inv.Status)
	assert.NotEmpty(t, inv.OrderID)
	require.Len(t, inv.Lines[0].Codes, 3)
	assert.Contains(t, inv.Lines[0].Codes[0], "*")

	sent := s.outbox.Recent()
	require.Len(t, sent, 1)
	assert.Equal(t, inv.OrderID, sent[0].Reference)
}

func TestMockCheckoutFlow(t *testing.T) {
	s := newServer(t, true)
	w := s.do(t, http.MethodPost, "/api/invoices", purchase(itemRequest{Family: "VERIFICATION", SKU: "Y1", Quantity: 1}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decodeBody[receiptResponse](t, w)
	assert.Equal(t, "MCK-000001", receipt.InvoiceNo)

	u, err := url.Parse(receipt.CheckoutURL)
	require.NoError(t, err)
	assert.Equal(t, mockpay.CheckoutPath, u.Path)

	w = s.do(t, http.MethodGet, mockpay.CheckoutPath+"?invoice="+receipt.InvoiceNo+"&paid=false", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "remains pending")

	w = s.do(t, http.MethodGet, u.RequestURI(), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/invoices/"+receipt.InvoiceNo, nil)
	inv := decodeBody[invoiceResponse](t, w)
	assert.Equal(t, "PAID", inv.Status)

	// Replayed notifications do not dispense again.
	w = s.do(t, http.MethodGet, "/api/payment/callback?invoice_number="+receipt.InvoiceNo, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.outbox.Recent(), 1)
}

func TestPaymentCallback(t *testing.T) {
	s := newServer(t, true)
	w := s.do(t, http.MethodPost, "/api/invoices", purchase(itemRequest{Family: "ENROLLMENT", SKU: "CN", Quantity: 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	no := decodeBody[receiptResponse](t, w).InvoiceNo

	t.Run("MissingInvoice", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/payment/callback", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invoice_number is required", w.Body.String())
	})
	t.Run("UnknownInvoice", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/payment/callback?invoice_number=NOPE", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})
	t.Run("StillPending", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/payment/callback?invoice_number="+no, nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})
	t.Run("FormBody", func(t *testing.T) {
		require.NoError(t, s.mock.Settle(no, fulfillment.StatusPaid))
		req := httptest.NewRequest(http.MethodPost, "/api/payment/callback", strings.NewReader("invoice_number="+no))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		s.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
	t.Run("MockMissingInvoice", func(t *testing.T) {
		w := s.do(t, http.MethodGet, mockpay.CheckoutPath, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMockRouteOnlyWithMockGateway(t *testing.T) {
	s := newServer(t, false)
	w := s.do(t, http.MethodGet, mockpay.CheckoutPath+"?invoice=MCK-000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThrottledRoutes(t *testing.T) {
	var hits int
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			if hits > 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	cat := catalog.Default()
	store := fulfillment.NewStore()
	co, err := checkout.New(cat, pool.New(pool.Config{Replenish: true}), store, delivery.NewOutbox(1))
	require.NoError(t, err)
	mux := http.NewServeMux()
	New(co, store, cat, WithThrottle(limit)).Register(mux)

	for _, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payment/callback", nil))
		assert.Equal(t, want, w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, hits, "catalog is not throttled")
}

func TestDeliveriesRequireOperatorKey(t *testing.T) {
	keys, err := auth.NewKeys(auth.HashKey("ops"))
	require.NoError(t, err)

	cat := catalog.Default()
	store := fulfillment.NewStore()
	outbox := delivery.NewOutbox(5)
	co, err := checkout.New(cat, pool.New(pool.Config{Replenish: true}), store, outbox)
	require.NoError(t, err)
	mux := http.NewServeMux()
	New(co, store, cat, WithDeliveryLog(outbox), WithOperatorAuth(keys.Valid)).Register(mux)

	for _, tt := range []struct {
		name string
		key  string
		code int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"Wrong", "guess", http.StatusUnauthorized},
		{"Valid", "ops", http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/deliveries", nil)
			if tt.key != "" {
				req.Header.Set(auth.Header, tt.key)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
