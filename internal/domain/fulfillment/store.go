package fulfillment

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/catalog"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and id years.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// OrderOption configures a single CreateOrder call.
type OrderOption func(*Order)

// WithInvoice links the new order to the invoice it fulfils.
func WithInvoice(no string) OrderOption {
	return func(o *Order) { o.InvoiceNo = no }
}

type orderEntry struct {
	order Order
	seq   int64
}

type invoiceEntry struct {
	mu  sync.Mutex
	inv Invoice
}

// Store is an in-memory order and invoice store.
//
// The maps are guarded by mu. Each invoice has its own mutex that serializes
// status changes; holders of an invoice mutex may take mu, never the other
// way round.
type Store struct {
	now func() time.Time

	orderSeq   atomic.Int64
	invoiceSeq atomic.Int64

	mu       sync.RWMutex
	orders   map[string]*orderEntry
	invoices map[string]*invoiceEntry
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		orders:   make(map[string]*orderEntry),
		invoices: make(map[string]*invoiceEntry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrder validates lines and stores a new immutable order.
func (s *Store) CreateOrder(lines []Line, contact Contact, prefs DeliveryPreferences, opts ...OrderOption) (string, error) {
	currency, total, err := validateLines(lines)
	if err != nil {
		return "", errors.Wrap(err, "create order")
	}

	now := s.now()
	seq := s.orderSeq.Add(1)
	o := Order{
		ID:         fmt.Sprintf("ORD-%d-%05d", now.Year(), seq),
		Contact:    contact,
		Delivery:   prefs,
		CreatedAt:  now,
		TotalMinor: total,
		Currency:   currency,
		Lines:      cloneLines(lines),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = &orderEntry{order: o, seq: seq}
	return o.ID, nil
}

// CreateInvoice validates lines and stores a PENDING invoice. A non-blank
// externalNo is used verbatim; otherwise a local number is assigned.
func (s *Store) CreateInvoice(lines []Line, contact Contact, prefs DeliveryPreferences, externalNo, checkoutURL string) (string, error) {
	currency, total, err := validateLines(lines)
	if err != nil {
		return "", errors.Wrap(err, "create invoice")
	}

	now := s.now()
	inv := Invoice{
		Contact:     contact,
		Delivery:    prefs,
		CreatedAt:   now,
		CheckoutURL: strings.TrimSpace(checkoutURL),
		Status:      StatusPending,
		TotalMinor:  total,
		Currency:    currency,
		Lines:       cloneLines(lines),
	}
	for i := range inv.Lines {
		inv.Lines[i].Codes = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if no := strings.TrimSpace(externalNo); no != "" {
		if _, ok := s.invoices[no]; ok {
			return "", errors.Wrapf(ErrDuplicateInvoice, "invoice %s", no)
		}
		inv.No = no
	} else {
		for {
			no := fmt.Sprintf("INV-%d-%05d", now.Year(), s.invoiceSeq.Add(1))
			if _, ok := s.invoices[no]; !ok {
				inv.No = no
				break
			}
		}
	}
	s.invoices[inv.No] = &invoiceEntry{inv: inv}
	return inv.No, nil
}

// FindOrder returns a copy of the order with id.
func (s *Store) FindOrder(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return e.order.clone(), true
}

// FindInvoice returns a snapshot of the invoice with no.
func (s *Store) FindInvoice(no string) (Invoice, bool) {
	e, ok := s.invoiceEntry(no)
	if !ok {
		return Invoice{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inv.clone(), true
}

// FindOrdersByContact returns orders whose email or msisdn matches contact,
// newest first.
func (s *Store) FindOrdersByContact(contact Contact) []Order {
	s.mu.RLock()
	matched := make([]*orderEntry, 0)
	for _, e := range s.orders {
		if e.order.Contact.Matches(contact) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]Order, len(matched))
	for i, e := range matched {
		out[i] = e.order.clone()
	}
	return out
}

// WithInvoiceLock runs fn while holding the lock of invoice no. All status
// changes of that invoice go through the InvoiceTx handed to fn, so callers
// can span several store and pool calls in one critical section.
func (s *Store) WithInvoiceLock(no string, fn func(tx *InvoiceTx) error) error {
	e, ok := s.invoiceEntry(no)
	if !ok {
		return errors.Wrapf(ErrInvoiceNotFound, "invoice %s", no)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &InvoiceTx{entry: e}
	defer func() { tx.entry = nil }()
	return fn(tx)
}

// MarkInvoicePaid moves a PENDING invoice to PAID, attaching codes to its
// lines. The bool reports whether this call performed the transition.
func (s *Store) MarkInvoicePaid(no string, codesByKey map[catalog.Key][]string) (inv Invoice, changed bool, err error) {
	err = s.WithInvoiceLock(no, func(tx *InvoiceTx) error {
		inv, changed, err = tx.MarkPaid(codesByKey)
		return err
	})
	return inv, changed, err
}

// MarkInvoiceCancelled moves a PENDING invoice to CANCELLED. The bool
// reports whether this call performed the transition.
func (s *Store) MarkInvoiceCancelled(no string) (inv Invoice, changed bool, err error) {
	err = s.WithInvoiceLock(no, func(tx *InvoiceTx) error {
		inv, changed, err = tx.MarkCancelled()
		return err
	})
	return inv, changed, err
}

// LinkOrder records the order produced by fulfilling invoice no.
func (s *Store) LinkOrder(no, orderID string) error {
	return s.WithInvoiceLock(no, func(tx *InvoiceTx) error {
		return tx.LinkOrder(orderID)
	})
}

func (s *Store) invoiceEntry(no string) (*invoiceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.invoices[no]
	return e, ok
}

func validateLines(lines []Line) (catalog.Currency, int64, error) {
	if len(lines) == 0 {
		return "", 0, ErrEmptyLines
	}
	currency := lines[0].Currency
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return "", 0, &InvalidQuantityError{Key: l.Key, Quantity: l.Quantity}
		}
		if l.Currency != currency {
			return "", 0, errors.Wrapf(ErrCurrencyMismatch, "%s and %s", currency, l.Currency)
		}
		if l.TotalMinor < 0 || total > math.MaxInt64-l.TotalMinor {
			return "", 0, ErrTotalOverflow
		}
		total += l.TotalMinor
	}
	return currency, total, nil
}
