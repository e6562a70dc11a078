// Package mockpay is an in-process payment gateway for development. Invoices
// are settled by visiting the checkout URL it hands out.
package mockpay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
)

// CheckoutPath is the handler path the checkout URLs point to.
const CheckoutPath = "/api/mock/checkout"

// ErrUnknownInvoice is returned for invoices this gateway never issued.
var ErrUnknownInvoice = errors.New("unknown mock invoice")

// Gateway implements checkout.PaymentGateway in memory.
type Gateway struct {
	baseURL string

	mu     sync.Mutex
	seq    int
	status map[string]fulfillment.Status
}

var _ checkout.PaymentGateway = (*Gateway)(nil)

// New creates a Gateway whose checkout URLs are rooted at baseURL. An empty
// baseURL yields relative URLs.
func New(baseURL string) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		status:  make(map[string]fulfillment.Status),
	}
}

// BeginCheckout issues a new PENDING invoice number.
func (g *Gateway) BeginCheckout(_ context.Context, req checkout.CheckoutRequest) (checkout.Checkout, error) {
	if len(req.Lines) == 0 {
		return checkout.Checkout{}, errors.New("no lines")
	}
	g.mu.Lock()
	g.seq++
	no := fmt.Sprintf("MCK-%06d", g.seq)
	g.status[no] = fulfillment.StatusPending
	g.mu.Unlock()

	return checkout.Checkout{InvoiceNo: no, CheckoutURL: g.CheckoutURL(no)}, nil
}

// CheckStatus returns the recorded status of invoiceNo.
func (g *Gateway) CheckStatus(_ context.Context, invoiceNo string) (fulfillment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.status[invoiceNo]
	if !ok {
		return "", errors.Wrapf(ErrUnknownInvoice, "status %s", invoiceNo)
	}
	return s, nil
}

// Settle records the outcome the customer chose on the mock checkout page.
// Terminal statuses are not overwritten.
func (g *Gateway) Settle(invoiceNo string, status fulfillment.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.status[invoiceNo]
	if !ok {
		return errors.Wrapf(ErrUnknownInvoice, "settle %s", invoiceNo)
	}
	if !cur.Terminal() {
		g.status[invoiceNo] = status
	}
	return nil
}

// CheckoutURL is the page a customer visits to pay invoice no.
func (g *Gateway) CheckoutURL(no string) string {
	q := url.Values{}
	q.Set("invoice", no)
	q.Set("paid", "true")
	return g.baseURL + CheckoutPath + "?" + q.Encode()
}
