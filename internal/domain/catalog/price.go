package catalog

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code accepted by the storefront.
type Currency string

const (
	GHS Currency = "GHS"
	USD Currency = "USD"
)

// ErrUnsupportedCurrency is returned by ParseCurrency.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// ParseCurrency validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(s); c {
	case GHS, USD:
		return c, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedCurrency, "%q", s)
	}
}

// minorExp is the exponent between major and minor units for every
// supported currency.
const minorExp = 2

// Price is an amount in integer minor units (pesewas, cents).
type Price struct {
	Currency    Currency
	AmountMinor int64
}

// Major converts a whole major-unit amount into a Price.
func Major(c Currency, major int64) Price {
	return Price{Currency: c, AmountMinor: major * 100}
}

// Decimal returns the amount in major units. Used for display and for
// gateway payloads that carry decimal amounts.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(p.AmountMinor, -minorExp)
}

// Times multiplies the price by quantity, failing on int64 overflow.
func (p Price) Times(quantity int) (int64, error) {
	total, ok := mulMinor(p.AmountMinor, int64(quantity))
	if !ok {
		return 0, errors.Errorf("price %d x %d overflows", p.AmountMinor, quantity)
	}
	return total, nil
}

// Format renders a price for display, e.g. "$500.00" or "GHS 60.00".
func Format(p Price) string {
	amount := p.Decimal().StringFixed(minorExp)
	if p.Currency == USD {
		return "$" + amount
	}
	return string(p.Currency) + " " + amount
}

func mulMinor(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}
