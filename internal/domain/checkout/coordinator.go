package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/fulfillment"
	"github.com/veristore/veristore/internal/domain/pool"
)

// Coordinator runs purchases and invoice fulfillment.
//
// Fulfillment holds the invoice lock across dispensing, marking the invoice
// paid, creating the order and linking it, so concurrent callbacks for one
// invoice produce exactly one order. Gateway calls are made without the lock.
type Coordinator struct {
	pricing  PricingLookup
	codes    CodeSource
	store    Store
	delivery DeliveryChannel
	gateway  PaymentGateway
	tel      *telemetry
}

// New creates a Coordinator.
func New(
	pricing PricingLookup,
	codes CodeSource,
	store Store,
	channel DeliveryChannel,
	opts ...Option,
) (*Coordinator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	tel, err := newTelemetry(o)
	if err != nil {
		return nil, errors.Wrap(err, "telemetry")
	}
	return &Coordinator{
		pricing:  pricing,
		codes:    codes,
		store:    store,
		delivery: channel,
		gateway:  o.gateway,
		tel:      tel,
	}, nil
}

// GatewayMode reports whether invoices are settled through a gateway.
func (c *Coordinator) GatewayMode() bool {
	return c.gateway != nil
}

// PayNow prices purchases, dispenses codes, stores the order and delivers
// the codes. The receipt carries the order id.
func (c *Coordinator) PayNow(
	ctx context.Context,
	purchases []Purchase,
	contact fulfillment.Contact,
	prefs fulfillment.DeliveryPreferences,
) (_ Receipt, rerr error) {
	ctx, span := c.tel.start(ctx, "PayNow")
	defer func() { endSpan(span, rerr) }()

	priced, err := c.price(purchases)
	if err != nil {
		return Receipt{}, err
	}

	demands := make([]pool.Demand, len(priced.lines))
	for i, l := range priced.lines {
		demands[i] = pool.Demand{Key: l.Key, Quantity: l.Quantity}
	}
	taken, err := c.codes.TakeMany(demands)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "take codes")
	}
	for i := range priced.lines {
		priced.lines[i].Codes = taken[i]
	}

	id, err := c.store.CreateOrder(priced.lines, contact, prefs)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "store order")
	}
	c.tel.orders.Add(ctx, 1, attrs(attribute.String("mode", "pay_now")))
	c.tel.dispensed.Add(ctx, int64(priced.quantity))

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", id),
		zap.Int("lines", len(priced.lines)),
		zap.Int64("total_minor", priced.total),
		zap.String("currency", string(priced.currency)),
	)
	c.deliver(ctx, contact, prefs, id, priced.lines)
	return Receipt{Reference: id}, nil
}

// PayLater prices purchases and stores a PENDING invoice. In gateway mode the
// gateway invoice is opened first and nothing is stored if that fails.
func (c *Coordinator) PayLater(
	ctx context.Context,
	purchases []Purchase,
	contact fulfillment.Contact,
	prefs fulfillment.DeliveryPreferences,
) (_ Receipt, rerr error) {
	ctx, span := c.tel.start(ctx, "PayLater")
	defer func() { endSpan(span, rerr) }()

	priced, err := c.price(purchases)
	if err != nil {
		return Receipt{}, err
	}

	var started Checkout
	if c.gateway != nil {
		started, err = c.gateway.BeginCheckout(ctx, CheckoutRequest{
			Contact:    contact,
			Currency:   priced.currency,
			TotalMinor: priced.total,
			Lines:      priced.checkout,
		})
		if err != nil {
			return Receipt{}, &GatewayError{Op: "begin checkout", Err: err}
		}
		if strings.TrimSpace(started.InvoiceNo) == "" {
			return Receipt{}, &GatewayError{Op: "begin checkout", Err: errors.New("no invoice number returned")}
		}
	}

	no, err := c.store.CreateInvoice(priced.lines, contact, prefs, started.InvoiceNo, started.CheckoutURL)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "store invoice")
	}
	c.tel.invoices.Add(ctx, 1, attrs(attribute.Bool("gateway", c.gateway != nil)))

	zctx.From(ctx).Info("Invoice created",
		zap.String("invoice_no", no),
		zap.Int64("total_minor", priced.total),
		zap.String("currency", string(priced.currency)),
	)
	return Receipt{Reference: no, CheckoutURL: strings.TrimSpace(started.CheckoutURL)}, nil
}

// Fulfill pays invoice no: it dispenses codes, marks the invoice PAID,
// creates and links the order, then delivers. Fulfilling a PAID invoice
// returns the linked order id and has no side effects. A CANCELLED invoice
// yields fulfillment.ErrInvoiceCancelled.
func (c *Coordinator) Fulfill(ctx context.Context, no string) (_ string, rerr error) {
	ctx, span := c.tel.start(ctx, "Fulfill")
	defer func() { endSpan(span, rerr) }()

	var (
		orderID string
		paid    *fulfillment.Invoice
	)
	err := c.store.WithInvoiceLock(no, func(tx *fulfillment.InvoiceTx) error {
		inv := tx.Invoice()
		switch inv.Status {
		case fulfillment.StatusPaid:
			orderID = inv.OrderID
			return nil
		case fulfillment.StatusCancelled:
			return errors.Wrapf(fulfillment.ErrInvoiceCancelled, "fulfill %s", no)
		}

		demands := make([]pool.Demand, len(inv.Lines))
		for i, l := range inv.Lines {
			demands[i] = pool.Demand{Key: l.Key, Quantity: l.Quantity}
		}
		taken, err := c.codes.TakeMany(demands)
		if err != nil {
			return errors.Wrap(err, "take codes")
		}
		byKey := make(map[catalog.Key][]string, len(inv.Lines))
		for i, l := range inv.Lines {
			byKey[l.Key] = append(byKey[l.Key], taken[i]...)
		}

		updated, _, err := tx.MarkPaid(byKey)
		if err != nil {
			return err
		}
		id, err := c.store.CreateOrder(updated.Lines, updated.Contact, updated.Delivery, fulfillment.WithInvoice(no))
		if err != nil {
			return errors.Wrap(err, "store order")
		}
		if err := tx.LinkOrder(id); err != nil {
			return err
		}
		updated.OrderID = id
		orderID, paid = id, &updated
		return nil
	})
	if err != nil {
		return "", err
	}
	if paid == nil {
		return orderID, nil
	}

	quantity := 0
	for _, l := range paid.Lines {
		quantity += l.Quantity
	}
	c.tel.orders.Add(ctx, 1, attrs(attribute.String("mode", "invoice")))
	c.tel.fulfilled.Add(ctx, 1, attrs(attribute.String("status", string(fulfillment.StatusPaid))))
	c.tel.dispensed.Add(ctx, int64(quantity))

	zctx.From(ctx).Info("Invoice fulfilled",
		zap.String("invoice_no", no),
		zap.String("order_id", orderID),
	)
	c.deliver(ctx, paid.Contact, paid.Delivery, orderID, paid.Lines)
	return orderID, nil
}

// RedeemInvoice reports whether invoice no is paid, settling it on the way.
// Unknown and CANCELLED invoices report false. In gateway mode a PENDING
// invoice is resolved against the gateway; in direct mode redemption itself
// confirms payment and fulfils the invoice.
func (c *Coordinator) RedeemInvoice(ctx context.Context, no string) (bool, error) {
	no = strings.TrimSpace(no)
	inv, ok := c.store.FindInvoice(no)
	if !ok {
		return false, nil
	}
	switch inv.Status {
	case fulfillment.StatusPaid:
		return true, nil
	case fulfillment.StatusCancelled:
		return false, nil
	}

	if c.gateway == nil {
		return c.settle(ctx, no)
	}
	return c.resolve(ctx, no)
}

// ProcessGatewayCallback handles a payment notification for invoice no.
// Terminal invoices are answered locally so webhook retries have no effect.
// The returned bool reports whether the invoice is paid.
func (c *Coordinator) ProcessGatewayCallback(ctx context.Context, no string) (bool, error) {
	lg := zctx.From(ctx)

	no = strings.TrimSpace(no)
	if no == "" {
		return false, nil
	}
	inv, ok := c.store.FindInvoice(no)
	if !ok {
		lg.Warn("Callback for unknown invoice", zap.String("invoice_no", no))
		return false, nil
	}
	switch inv.Status {
	case fulfillment.StatusPaid:
		return true, nil
	case fulfillment.StatusCancelled:
		return false, nil
	}

	if c.gateway == nil {
		lg.Warn("Callback without a configured gateway", zap.String("invoice_no", no))
		return false, nil
	}
	return c.resolve(ctx, no)
}

// resolve asks the gateway for the status of a PENDING invoice and applies it.
func (c *Coordinator) resolve(ctx context.Context, no string) (bool, error) {
	status, err := c.gateway.CheckStatus(ctx, no)
	if err != nil {
		return false, &GatewayError{Op: "check status", Err: err}
	}

	switch status {
	case fulfillment.StatusPaid:
		return c.settle(ctx, no)
	case fulfillment.StatusCancelled:
		_, changed, err := c.store.MarkInvoiceCancelled(no)
		if errors.Is(err, fulfillment.ErrInvoicePaid) {
			// Paid concurrently by another caller.
			return true, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "cancel invoice")
		}
		if changed {
			c.tel.fulfilled.Add(ctx, 1, attrs(attribute.String("status", string(fulfillment.StatusCancelled))))
			zctx.From(ctx).Info("Invoice cancelled by gateway", zap.String("invoice_no", no))
		}
		return false, nil
	default:
		return false, nil
	}
}

func (c *Coordinator) settle(ctx context.Context, no string) (bool, error) {
	if _, err := c.Fulfill(ctx, no); err != nil {
		if errors.Is(err, fulfillment.ErrInvoiceCancelled) {
			return false, nil
		}
		return false, errors.Wrapf(err, "fulfill %s", no)
	}
	return true, nil
}
