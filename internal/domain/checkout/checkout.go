// Package checkout coordinates pricing, code dispensing, order and invoice
// storage, payment gateways and delivery.
package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/fulfillment"
	"github.com/veristore/veristore/internal/domain/pool"
)

// ErrGatewayUnavailable is returned when the payment gateway could not start
// a checkout or report a status. No state is changed in that case.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// GatewayError wraps a gateway failure. It matches ErrGatewayUnavailable.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "payment gateway " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrGatewayUnavailable).
func (e *GatewayError) Is(target error) bool { return target == ErrGatewayUnavailable }

// Purchase is a requested quantity of one catalog key.
type Purchase struct {
	Key      catalog.Key
	Quantity int
}

// Receipt identifies what a purchase produced: an order id for PayNow, an
// invoice number (and checkout URL in gateway mode) for PayLater.
type Receipt struct {
	Reference   string
	CheckoutURL string
}

// PricingLookup prices and names catalog keys.
type PricingLookup interface {
	Get(key catalog.Key) (catalog.Price, error)
	Describe(key catalog.Key) string
}

// CodeSource dispenses unique codes, all demands or none.
type CodeSource interface {
	TakeMany(demands []pool.Demand) ([][]string, error)
}

// Store persists orders and invoices.
type Store interface {
	CreateOrder(lines []fulfillment.Line, contact fulfillment.Contact, prefs fulfillment.DeliveryPreferences, opts ...fulfillment.OrderOption) (string, error)
	CreateInvoice(lines []fulfillment.Line, contact fulfillment.Contact, prefs fulfillment.DeliveryPreferences, externalNo, checkoutURL string) (string, error)
	FindInvoice(no string) (fulfillment.Invoice, bool)
	MarkInvoiceCancelled(no string) (fulfillment.Invoice, bool, error)
	WithInvoiceLock(no string, fn func(tx *fulfillment.InvoiceTx) error) error
}

// DeliveryChannel sends codes to a recipient.
type DeliveryChannel interface {
	SendCodes(ctx context.Context, r delivery.Recipient, reference string, products []delivery.ProductCodes) error
}

// CheckoutLine is one priced line sent to the gateway.
type CheckoutLine struct {
	Key         catalog.Key
	Description string
	Quantity    int
	UnitPrice   catalog.Price
	TotalMinor  int64
}

// CheckoutRequest asks a gateway to open an invoice.
type CheckoutRequest struct {
	Contact    fulfillment.Contact
	Currency   catalog.Currency
	TotalMinor int64
	Lines      []CheckoutLine
}

// Checkout is the gateway's answer to BeginCheckout.
type Checkout struct {
	InvoiceNo   string
	CheckoutURL string
}

// PaymentGateway is an external payment provider.
type PaymentGateway interface {
	BeginCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	CheckStatus(ctx context.Context, invoiceNo string) (fulfillment.Status, error)
}

// MapGatewayStatus maps a gateway status code and text to an invoice status.
// Code 1 or "paid" is PAID, code 3 or "cancelled"/"canceled" is CANCELLED,
// anything else is PENDING.
func MapGatewayStatus(code int, text string) fulfillment.Status {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case code == 1 || t == "paid":
		return fulfillment.StatusPaid
	case code == 3 || t == "cancelled" || t == "canceled":
		return fulfillment.StatusCancelled
	default:
		return fulfillment.StatusPending
	}
}
