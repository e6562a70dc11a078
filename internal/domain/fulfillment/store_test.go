package fulfillment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veristore/veristore/internal/domain/catalog"
)

var (
	keyY1 = catalog.Verification{Variant: "Y1"}
	keyCU = catalog.Enrollment{Variant: "CU"}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func line(key catalog.Key, qty int, minor int64, c catalog.Currency) Line {
	return Line{Key: key, Quantity: qty, TotalMinor: minor, Currency: c}
}

func TestCreateInvoice_TotalsAndStatus(t *testing.T) {
	s := NewStore(WithClock(fixedClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))))

	no, err := s.CreateInvoice(
		[]Line{line(keyCU, 1, 100, catalog.GHS), line(keyY1, 1, 200, catalog.GHS)},
		Contact{Email: "a@b.c"}, DeliveryPreferences{ByEmail: true}, "", "",
	)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", no)

	inv, ok := s.FindInvoice(no)
	require.True(t, ok)
	assert.Equal(t, int64(300), inv.TotalMinor)
	assert.Equal(t, StatusPending, inv.Status)
	assert.Equal(t, catalog.GHS, inv.Currency)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr error
	}{
		{name: "empty", lines: nil, wantErr: ErrEmptyLines},
		{name: "zero quantity", lines: []Line{line(keyY1, 0, 0, catalog.USD)}, wantErr: ErrInvalidQuantity},
		{
			name:    "currency mismatch",
			lines:   []Line{line(keyY1, 1, 50, catalog.USD), line(keyCU, 1, 50, catalog.GHS)},
			wantErr: ErrCurrencyMismatch,
		},
		{
			name:    "overflow",
			lines:   []Line{line(keyY1, 1, 1<<62, catalog.USD), line(keyY1, 1, 1<<62, catalog.USD)},
			wantErr: ErrTotalOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			_, err := s.CreateOrder(tt.lines, Contact{Email: "x@y.z"}, DeliveryPreferences{})
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsInvalidInput(err))
			assert.Empty(t, s.FindOrdersByContact(Contact{Email: "x@y.z"}), "no order stored")
		})
	}
}

func TestCreateOrder_CopiesInput(t *testing.T) {
	s := NewStore()
	lines := []Line{{Key: keyY1, Quantity: 1, TotalMinor: 50000, Currency: catalog.USD, Codes: []string{"CODE1"}}}

	id, err := s.CreateOrder(lines, Contact{}, DeliveryPreferences{}, WithInvoice("INV-1"))
	require.NoError(t, err)
	lines[0].Codes[0] = "MUTATED"

	o, ok := s.FindOrder(id)
	require.True(t, ok)
	assert.Equal(t, []string{"CODE1"}, o.Lines[0].Codes)
	assert.Equal(t, "INV-1", o.InvoiceNo)

	o.Lines[0].Codes[0] = "MUTATED"
	again, _ := s.FindOrder(id)
	assert.Equal(t, "CODE1", again.Lines[0].Codes[0])

	_, ok = s.FindOrder("ORD-0000-99999")
	assert.False(t, ok)
}

func TestCreateInvoice_ExternalNumber(t *testing.T) {
	s := NewStore()
	lines := []Line{line(keyY1, 1, 500, catalog.USD)}

	no, err := s.CreateInvoice(lines, Contact{}, DeliveryPreferences{}, "  GOV-77 ", "https://pay/x")
	require.NoError(t, err)
	assert.Equal(t, "GOV-77", no)

	_, err = s.CreateInvoice(lines, Contact{}, DeliveryPreferences{}, "GOV-77", "")
	require.ErrorIs(t, err, ErrDuplicateInvoice)

	inv, _ := s.FindInvoice("GOV-77")
	assert.Equal(t, "https://pay/x", inv.CheckoutURL)
}

func TestFindOrdersByContact(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	s := NewStore(WithClock(func() time.Time { return now }))
	lines := []Line{line(keyY1, 1, 1, catalog.USD)}

	first, err := s.CreateOrder(lines, Contact{Email: "Jane.Doe@Example.com"}, DeliveryPreferences{})
	require.NoError(t, err)
	now = base.Add(time.Hour)
	second, err := s.CreateOrder(lines, Contact{MSISDN: "+233 20 000 0000"}, DeliveryPreferences{})
	require.NoError(t, err)
	_, err = s.CreateOrder(lines, Contact{Email: "other@example.com"}, DeliveryPreferences{})
	require.NoError(t, err)

	got := s.FindOrdersByContact(Contact{Email: " jane.doe@example.COM ", MSISDN: "+23320 0000000"})
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID, "newest first")
	assert.Equal(t, first, got[1].ID)

	assert.Empty(t, s.FindOrdersByContact(Contact{}), "empty query never matches")
}

func TestMarkInvoicePaid(t *testing.T) {
	s := NewStore()
	no, err := s.CreateInvoice(
		[]Line{line(keyY1, 2, 1000, catalog.USD), line(keyCU, 1, 60, catalog.USD), line(keyY1, 1, 500, catalog.USD)},
		Contact{}, DeliveryPreferences{}, "", "",
	)
	require.NoError(t, err)

	inv, changed, err := s.MarkInvoicePaid(no, map[catalog.Key][]string{keyY1: {"A1", "A2", "A3"}})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Equal(t, []string{"A1", "A2"}, inv.Lines[0].Codes)
	assert.Empty(t, inv.Lines[1].Codes, "missing key gets no codes")
	assert.Equal(t, []string{"A3"}, inv.Lines[2].Codes)

	again, changed, err := s.MarkInvoicePaid(no, map[catalog.Key][]string{keyY1: {"B1", "B2", "B3"}})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, inv, again, "second payment is a no-op")

	_, _, err = s.MarkInvoiceCancelled(no)
	require.ErrorIs(t, err, ErrInvoicePaid)
	got, _ := s.FindInvoice(no)
	assert.Equal(t, StatusPaid, got.Status)

	_, _, err = s.MarkInvoicePaid("INV-NOPE", nil)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestMarkInvoiceCancelled(t *testing.T) {
	s := NewStore()
	no, err := s.CreateInvoice([]Line{line(keyY1, 1, 1, catalog.USD)}, Contact{}, DeliveryPreferences{}, "INV-X", "")
	require.NoError(t, err)

	inv, changed, err := s.MarkInvoiceCancelled(no)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCancelled, inv.Status)

	_, changed, err = s.MarkInvoiceCancelled(no)
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = s.MarkInvoicePaid(no, map[catalog.Key][]string{keyY1: {"C1"}})
	require.ErrorIs(t, err, ErrInvoiceCancelled)
	assert.False(t, changed)
	got, _ := s.FindInvoice(no)
	assert.Equal(t, StatusCancelled, got.Status, "never resurrected")
	assert.Empty(t, got.Lines[0].Codes)
}

func TestLinkOrder(t *testing.T) {
	s := NewStore()
	no, err := s.CreateInvoice([]Line{line(keyY1, 1, 1, catalog.USD)}, Contact{}, DeliveryPreferences{}, "", "")
	require.NoError(t, err)

	require.NoError(t, s.LinkOrder(no, "ORD-1"))
	require.NoError(t, s.LinkOrder(no, "ORD-1"))
	require.ErrorIs(t, s.LinkOrder(no, "ORD-2"), ErrOrderLinked)

	inv, _ := s.FindInvoice(no)
	assert.Equal(t, "ORD-1", inv.OrderID)
}

func TestWithInvoiceLock_SpansStoreCalls(t *testing.T) {
	s := NewStore()
	no, err := s.CreateInvoice([]Line{line(keyY1, 1, 1, catalog.USD)}, Contact{Email: "a@b"}, DeliveryPreferences{}, "", "")
	require.NoError(t, err)

	err = s.WithInvoiceLock(no, func(tx *InvoiceTx) error {
		inv, changed, err := tx.MarkPaid(map[catalog.Key][]string{keyY1: {"Z1"}})
		require.NoError(t, err)
		require.True(t, changed)
		id, err := s.CreateOrder(inv.Lines, inv.Contact, inv.Delivery, WithInvoice(no))
		require.NoError(t, err)
		return tx.LinkOrder(id)
	})
	require.NoError(t, err)

	inv, _ := s.FindInvoice(no)
	o, ok := s.FindOrder(inv.OrderID)
	require.True(t, ok)
	assert.Equal(t, no, o.InvoiceNo)
	assert.Equal(t, []string{"Z1"}, o.Lines[0].Codes)
}

func TestStore_ConcurrentCreatesHaveUniqueIDs(t *testing.T) {
	s := NewStore()
	lines := []Line{line(keyY1, 1, 1, catalog.USD)}

	const n = 200
	ids := make([]string, 2*n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := s.CreateOrder(lines, Contact{}, DeliveryPreferences{})
			assert.NoError(t, err)
			ids[i] = id
		}()
		go func() {
			defer wg.Done()
			no, err := s.CreateInvoice(lines, Contact{}, DeliveryPreferences{}, "", "")
			assert.NoError(t, err)
			ids[n+i] = no
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, id)
		seen[id] = struct{}{}
	}
}

func TestStore_ConcurrentPayExactlyOnce(t *testing.T) {
	s := NewStore()
	no, err := s.CreateInvoice([]Line{line(keyY1, 1, 1, catalog.USD)}, Contact{}, DeliveryPreferences{}, "", "")
	require.NoError(t, err)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes := map[catalog.Key][]string{keyY1: {string(rune('a' + i%26))}}
			_, changed, err := s.MarkInvoicePaid(no, codes)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, transitions)
}

func TestContactMatches(t *testing.T) {
	tests := []struct {
		name  string
		c, q  Contact
		match bool
	}{
		{name: "email case and spaces", c: Contact{Email: "A@B.com"}, q: Contact{Email: " a @b.COM"}, match: true},
		{name: "msisdn", c: Contact{MSISDN: "020 111"}, q: Contact{MSISDN: "020111"}, match: true},
		{name: "empty vs empty", c: Contact{}, q: Contact{}, match: false},
		{name: "different", c: Contact{Email: "a@b"}, q: Contact{Email: "c@d"}, match: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.c.Matches(tt.q))
		})
	}
}
