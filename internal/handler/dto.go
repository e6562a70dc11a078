package handler

import (
	"time"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
)

type itemRequest struct {
	Family   string `json:"family" validate:"required,max=32"`
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"lte=1000"`
}

type purchaseRequest struct {
	Items   []itemRequest `json:"items" validate:"max=50,dive"`
	Email   string        `json:"email" validate:"omitempty,email,max=254"`
	MSISDN  string        `json:"msisdn" validate:"omitempty,max=32"`
	ByEmail bool          `json:"by_email"`
	BySMS   bool          `json:"by_sms"`
}

func (r *purchaseRequest) purchases() ([]checkout.Purchase, error) {
	out := make([]checkout.Purchase, len(r.Items))
	for i, it := range r.Items {
		key, err := catalog.NewKey(it.Family, it.SKU)
		if err != nil {
			return nil, err
		}
		out[i] = checkout.Purchase{Key: key, Quantity: it.Quantity}
	}
	return out, nil
}

func (r *purchaseRequest) contact() fulfillment.Contact {
	return fulfillment.Contact{Email: r.Email, MSISDN: r.MSISDN}
}

func (r *purchaseRequest) prefs() fulfillment.DeliveryPreferences {
	return fulfillment.DeliveryPreferences{ByEmail: r.ByEmail, BySMS: r.BySMS}
}

type catalogEntry struct {
	Key         string `json:"key"`
	Family      string `json:"family"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_minor"`
	Price       string `json:"price"`
	Active      bool   `json:"active"`
}

func newCatalogEntry(e catalog.Entry) catalogEntry {
	return catalogEntry{
		Key:         e.Key.String(),
		Family:      string(e.Key.Family()),
		SKU:         e.Key.SKU(),
		Name:        e.Name,
		Currency:    string(e.Price.Currency),
		AmountMinor: e.Price.AmountMinor,
		Price:       catalog.Format(e.Price),
		Active:      e.Active,
	}
}

type lineResponse struct {
	Key        string   `json:"key"`
	Quantity   int      `json:"quantity"`
	TotalMinor int64    `json:"total_minor"`
	Currency   string   `json:"currency"`
	Codes      []string `json:"codes"`
}

func newLines(lines []fulfillment.Line, mask bool) []lineResponse {
	out := make([]lineResponse, len(lines))
	for i, l := range lines {
		codes := make([]string, len(l.Codes))
		for j, c := range l.Codes {
			if mask {
				c = delivery.Mask(c)
			}
			codes[j] = c
		}
		out[i] = lineResponse{
			Key:        l.Key.String(),
			Quantity:   l.Quantity,
			TotalMinor: l.TotalMinor,
			Currency:   string(l.Currency),
			Codes:      codes,
		}
	}
	return out
}

type orderResponse struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	TotalMinor int64          `json:"total_minor"`
	Currency   string         `json:"currency"`
	Total      string         `json:"total"`
	InvoiceNo  string         `json:"invoice_no,omitempty"`
	Lines      []lineResponse `json:"lines"`
}

func newOrderResponse(o fulfillment.Order, mask bool) orderResponse {
	return orderResponse{
		ID:         o.ID,
		CreatedAt:  o.CreatedAt,
		TotalMinor: o.TotalMinor,
		Currency:   string(o.Currency),
		Total:      catalog.Format(catalog.Price{Currency: o.Currency, AmountMinor: o.TotalMinor}),
		InvoiceNo:  o.InvoiceNo,
		Lines:      newLines(o.Lines, mask),
	}
}

type invoiceResponse struct {
	No          string         `json:"invoice_no"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CheckoutURL string         `json:"checkout_url,omitempty"`
	TotalMinor  int64          `json:"total_minor"`
	Currency    string         `json:"currency"`
	Total       string         `json:"total"`
	OrderID     string         `json:"order_id,omitempty"`
	Lines       []lineResponse `json:"lines"`
}

func newInvoiceResponse(inv fulfillment.Invoice) invoiceResponse {
	return invoiceResponse{
		No:          inv.No,
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt,
		CheckoutURL: inv.CheckoutURL,
		TotalMinor:  inv.TotalMinor,
		Currency:    string(inv.Currency),
		Total:       catalog.Format(catalog.Price{Currency: inv.Currency, AmountMinor: inv.TotalMinor}),
		OrderID:     inv.OrderID,
		Lines:       newLines(inv.Lines, true),
	}
}

type receiptResponse struct {
	InvoiceNo   string `json:"invoice_no"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type redeemResponse struct {
	InvoiceNo string `json:"invoice_no"`
	Paid      bool   `json:"paid"`
}

type deliveryResponse struct {
	At        time.Time      `json:"at"`
	Channel   string         `json:"channel"`
	Address   string         `json:"address"`
	Reference string         `json:"reference"`
	Products  []productCodes `json:"products"`
}

type productCodes struct {
	Description string   `json:"description"`
	Codes       []string `json:"codes"`
}

func newDeliveryResponse(r delivery.Record) deliveryResponse {
	products := make([]productCodes, len(r.Products))
	for i, p := range r.Products {
		products[i] = productCodes{Description: p.Description, Codes: p.Codes}
	}
	return deliveryResponse{
		At:        r.At,
		Channel:   string(r.Recipient.Channel),
		Address:   r.Recipient.Address,
		Reference: r.Reference,
		Products:  products,
	}
}
