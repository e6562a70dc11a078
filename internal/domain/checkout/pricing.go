package checkout

import (
	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/fulfillment"
)

type pricedPurchase struct {
	lines    []fulfillment.Line
	checkout []CheckoutLine
	currency catalog.Currency
	total    int64
	quantity int
}

// price validates and prices purchases without touching any state. Repeated
// keys are merged into the first line for that key.
func (c *Coordinator) price(purchases []Purchase) (*pricedPurchase, error) {
	if len(purchases) == 0 {
		return nil, fulfillment.ErrEmptyLines
	}

	merged := make([]Purchase, 0, len(purchases))
	index := make(map[catalog.Key]int, len(purchases))
	for _, p := range purchases {
		if p.Key == nil {
			return nil, errors.Wrap(catalog.ErrInvalidKey, "purchase without key")
		}
		if p.Quantity <= 0 {
			return nil, &fulfillment.InvalidQuantityError{Key: p.Key, Quantity: p.Quantity}
		}
		if i, ok := index[p.Key]; ok {
			merged[i].Quantity += p.Quantity
			continue
		}
		index[p.Key] = len(merged)
		merged = append(merged, p)
	}

	out := &pricedPurchase{
		lines:    make([]fulfillment.Line, 0, len(merged)),
		checkout: make([]CheckoutLine, 0, len(merged)),
	}
	for i, p := range merged {
		price, err := c.pricing.Get(p.Key)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out.currency = price.Currency
		} else if price.Currency != out.currency {
			return nil, errors.Wrapf(fulfillment.ErrCurrencyMismatch, "%s is priced in %s, order in %s",
				p.Key, price.Currency, out.currency)
		}
		lineTotal, err := price.Times(p.Quantity)
		if err != nil {
			return nil, errors.Wrapf(fulfillment.ErrTotalOverflow, "%s x%d", p.Key, p.Quantity)
		}
		if out.total > maxInt64-lineTotal {
			return nil, fulfillment.ErrTotalOverflow
		}
		out.total += lineTotal
		out.quantity += p.Quantity

		out.lines = append(out.lines, fulfillment.Line{
			Key:        p.Key,
			Quantity:   p.Quantity,
			TotalMinor: lineTotal,
			Currency:   price.Currency,
		})
		out.checkout = append(out.checkout, CheckoutLine{
			Key:         p.Key,
			Description: c.pricing.Describe(p.Key),
			Quantity:    p.Quantity,
			UnitPrice:   price,
			TotalMinor:  lineTotal,
		})
	}
	return out, nil
}

const maxInt64 = 1<<63 - 1
