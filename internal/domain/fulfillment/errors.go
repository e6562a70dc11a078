package fulfillment

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/catalog"
)

// Validation errors.
var (
	ErrEmptyLines       = errors.New("at least one line required")
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrCurrencyMismatch = errors.New("lines must share one currency")
	ErrTotalOverflow    = errors.New("total overflows")
	ErrDuplicateInvoice = errors.New("duplicate invoice number")
)

// State errors.
var (
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvoiceCancelled = errors.New("invoice is cancelled")
	ErrInvoicePaid      = errors.New("invoice is paid")
	ErrOrderLinked      = errors.New("invoice already linked to another order")
)

// InvalidQuantityError reports the line with a non-positive quantity.
type InvalidQuantityError struct {
	Key      catalog.Key
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for %s, got %d", e.Key, e.Quantity)
}

// Unwrap allows errors.Is(err, ErrInvalidQuantity).
func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// IsInvalidInput reports whether err was caused by bad caller input rather
// than store state.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrEmptyLines) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrTotalOverflow) ||
		errors.Is(err, ErrDuplicateInvoice)
}
