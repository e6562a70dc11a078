// Package catalog holds the purchasable service variants, their prices and
// display names.
package catalog

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrUnknownKey is returned when a key has no active catalog entry.
var ErrUnknownKey = errors.New("unknown service key")

// UnknownKeyError reports the key that could not be priced.
type UnknownKeyError struct {
	Key Key
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown service key %s", e.Key)
}

// Unwrap allows errors.Is(err, ErrUnknownKey).
func (e *UnknownKeyError) Unwrap() error { return ErrUnknownKey }

// Entry is a single catalog row.
type Entry struct {
	Key    Key
	Name   string
	Price  Price
	Active bool
}

// Catalog is an immutable, ordered set of entries. It implements the
// pricing lookup consumed by checkout.
type Catalog struct {
	entries map[Key]Entry
	order   []Key
}

// New builds a Catalog and verifies its integrity: SKUs must be unique
// across both families, names non-empty and prices non-negative.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make(map[Key]Entry, len(entries)),
		order:   make([]Key, 0, len(entries)),
	}
	skus := make(map[string]Key, len(entries))
	for _, e := range entries {
		if e.Key == nil {
			return nil, errors.New("entry without key")
		}
		if prev, ok := skus[e.Key.SKU()]; ok {
			return nil, errors.Errorf("duplicate sku %q (%s and %s)", e.Key.SKU(), prev, e.Key)
		}
		if e.Name == "" {
			return nil, errors.Errorf("entry %s has no name", e.Key)
		}
		if e.Price.AmountMinor < 0 {
			return nil, errors.Errorf("entry %s has negative price", e.Key)
		}
		if _, err := ParseCurrency(string(e.Price.Currency)); err != nil {
			return nil, errors.Wrapf(err, "entry %s", e.Key)
		}
		skus[e.Key.SKU()] = e.Key
		c.entries[e.Key] = e
		c.order = append(c.order, e.Key)
	}
	return c, nil
}

// Default returns the built-in storefront catalog.
func Default() *Catalog {
	c, err := New(defaultEntries()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the price of an active entry.
func (c *Catalog) Get(key Key) (Price, error) {
	e, ok := c.entries[key]
	if !ok || !e.Active {
		return Price{}, &UnknownKeyError{Key: key}
	}
	return e.Price, nil
}

// Lookup returns the entry for key regardless of its active flag.
func (c *Catalog) Lookup(key Key) (Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Format implements the display side of the pricing lookup.
func (c *Catalog) Format(p Price) string {
	return Format(p)
}

// Describe returns the human readable product description used to group
// delivered codes. Unknown verification SKUs fall back to the raw SKU,
// unknown enrollment SKUs are prettified.
func (c *Catalog) Describe(key Key) string {
	if e, ok := c.entries[key]; ok {
		return e.Name
	}
	switch k := key.(type) {
	case Verification:
		return k.Variant
	case Enrollment:
		return prettify(k.Variant)
	default:
		return ""
	}
}

// Entries returns all entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k])
	}
	return out
}

// ActiveKeys returns the keys that can be purchased, in declaration order.
func (c *Catalog) ActiveKeys() []Key {
	out := make([]Key, 0, len(c.order))
	for _, k := range c.order {
		if c.entries[k].Active {
			out = append(out, k)
		}
	}
	return out
}

func prettify(sku string) string {
	parts := strings.Fields(strings.ReplaceAll(strings.ToLower(sku), "_", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
