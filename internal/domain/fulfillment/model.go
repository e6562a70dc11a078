// Package fulfillment stores orders and invoices and drives the invoice
// status machine.
package fulfillment

import (
	"strings"
	"time"
	"unicode"

	"github.com/veristore/veristore/internal/domain/catalog"
)

// Status of an invoice. PENDING moves to PAID or CANCELLED, both terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Contact identifies the purchaser. Either field may be empty.
type Contact struct {
	Email  string
	MSISDN string
}

// Matches reports whether c and query share a normalized email or msisdn.
// Empty fields never match.
func (c Contact) Matches(query Contact) bool {
	if q := Normalize(query.Email); q != "" && q == Normalize(c.Email) {
		return true
	}
	if q := Normalize(query.MSISDN); q != "" && q == Normalize(c.MSISDN) {
		return true
	}
	return false
}

// Normalize lowercases s and drops all whitespace.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// DeliveryPreferences selects the channels codes are sent over.
type DeliveryPreferences struct {
	ByEmail bool
	BySMS   bool
}

// Line is one priced line of an order or invoice. Codes is filled when the
// line is fulfilled.
type Line struct {
	Key        catalog.Key
	Quantity   int
	TotalMinor int64
	Currency   catalog.Currency
	Codes      []string
}

// Order is an immutable record of a fulfilled purchase.
type Order struct {
	ID         string
	Contact    Contact
	Delivery   DeliveryPreferences
	CreatedAt  time.Time
	TotalMinor int64
	Currency   catalog.Currency
	Lines      []Line
	// InvoiceNo is set when the order was produced by paying an invoice.
	InvoiceNo string
}

// Invoice is a pay-later purchase awaiting payment.
type Invoice struct {
	No          string
	Contact     Contact
	Delivery    DeliveryPreferences
	CreatedAt   time.Time
	CheckoutURL string
	Status      Status
	TotalMinor  int64
	Currency    catalog.Currency
	Lines       []Line
	// OrderID is the order created when the invoice was fulfilled.
	OrderID string
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.Codes != nil {
			out[i].Codes = append([]string(nil), l.Codes...)
		}
	}
	return out
}

func (o Order) clone() Order {
	o.Lines = cloneLines(o.Lines)
	return o
}

func (inv Invoice) clone() Invoice {
	inv.Lines = cloneLines(inv.Lines)
	return inv
}
