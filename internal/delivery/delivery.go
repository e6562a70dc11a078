// Package delivery sends purchased codes to customers.
//
// Codes never leave this package in clear text except through the channel
// itself: records kept for inspection and log fields are masked.
package delivery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ErrNoAddress is returned when a recipient has a blank address.
var ErrNoAddress = errors.New("recipient address is blank")

// Recipient is where codes are sent.
type Recipient struct {
	Channel Channel
	Address string
}

// ProductCodes groups delivered codes under a product description.
type ProductCodes struct {
	Description string
	Codes       []string
}

// Record is one delivery as kept by the Outbox.
type Record struct {
	At        time.Time
	Recipient Recipient
	Reference string
	Products  []ProductCodes
}

// DefaultOutboxSize is the number of records an Outbox keeps by default.
const DefaultOutboxSize = 100

// Outbox delivers codes by logging them and keeps the most recent
// deliveries, masked, for inspection.
type Outbox struct {
	size int
	now  func() time.Time

	mu      sync.Mutex
	records []Record
}

// NewOutbox creates an Outbox keeping up to size records. A non-positive size
// means DefaultOutboxSize.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{size: size, now: time.Now}
}

// SendCodes delivers products to r.
func (o *Outbox) SendCodes(ctx context.Context, r Recipient, reference string, products []ProductCodes) error {
	if strings.TrimSpace(r.Address) == "" {
		return errors.Wrapf(ErrNoAddress, "%s delivery for %s", r.Channel, reference)
	}

	masked := make([]ProductCodes, len(products))
	total := 0
	for i, p := range products {
		codes := make([]string, len(p.Codes))
		for j, c := range p.Codes {
			codes[j] = Mask(c)
		}
		masked[i] = ProductCodes{Description: p.Description, Codes: codes}
		total += len(codes)
	}

	rec := Record{At: o.now(), Recipient: r, Reference: reference, Products: masked}
	o.mu.Lock()
	o.records = append(o.records, rec)
	if extra := len(o.records) - o.size; extra > 0 {
		o.records = append(o.records[:0:0], o.records[extra:]...)
	}
	o.mu.Unlock()

	zctx.From(ctx).Info("Codes delivered",
		zap.String("channel", string(r.Channel)),
		zap.String("reference", reference),
		zap.Int("products", len(products)),
		zap.Int("codes", total),
	)
	return nil
}

// Recent returns the kept records, newest first.
func (o *Outbox) Recent() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Record, len(o.records))
	for i, r := range o.records {
		out[len(out)-1-i] = r
	}
	return out
}

// Mask hides all but the first and last two characters of code. Codes of
// four characters or fewer are hidden entirely.
func Mask(code string) string {
	if len(code) <= 4 {
		return strings.Repeat("*", len(code))
	}
	return code[:2] + strings.Repeat("*", len(code)-4) + code[len(code)-2:]
}
