package fulfillment

import (
	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/catalog"
)

// InvoiceTx mutates one invoice while its lock is held. It is only valid
// inside the WithInvoiceLock callback that created it.
type InvoiceTx struct {
	entry *invoiceEntry
}

// Invoice returns a snapshot of the locked invoice.
func (tx *InvoiceTx) Invoice() Invoice {
	return tx.entry.inv.clone()
}

// MarkPaid transitions PENDING to PAID. Codes for a key are handed out to
// that key's lines in order, each line taking at most its quantity; a key
// missing from codesByKey leaves its lines empty. An already PAID invoice is
// returned unchanged.
func (tx *InvoiceTx) MarkPaid(codesByKey map[catalog.Key][]string) (Invoice, bool, error) {
	inv := &tx.entry.inv
	switch inv.Status {
	case StatusPaid:
		return inv.clone(), false, nil
	case StatusCancelled:
		return inv.clone(), false, errors.Wrapf(ErrInvoiceCancelled, "pay %s", inv.No)
	}

	cursor := make(map[catalog.Key]int, len(codesByKey))
	for i := range inv.Lines {
		l := &inv.Lines[i]
		avail := codesByKey[l.Key][cursor[l.Key]:]
		n := min(l.Quantity, len(avail))
		l.Codes = append([]string{}, avail[:n]...)
		cursor[l.Key] += n
	}
	inv.Status = StatusPaid
	return inv.clone(), true, nil
}

// MarkCancelled transitions PENDING to CANCELLED. A PAID invoice cannot be
// cancelled.
func (tx *InvoiceTx) MarkCancelled() (Invoice, bool, error) {
	inv := &tx.entry.inv
	switch inv.Status {
	case StatusCancelled:
		return inv.clone(), false, nil
	case StatusPaid:
		return inv.clone(), false, errors.Wrapf(ErrInvoicePaid, "cancel %s", inv.No)
	}
	inv.Status = StatusCancelled
	return inv.clone(), true, nil
}

// LinkOrder sets the fulfilling order id once. Relinking to the same id is a
// no-op.
func (tx *InvoiceTx) LinkOrder(orderID string) error {
	inv := &tx.entry.inv
	switch inv.OrderID {
	case "":
		inv.OrderID = orderID
		return nil
	case orderID:
		return nil
	default:
		return errors.Wrapf(ErrOrderLinked, "invoice %s has %s", inv.No, inv.OrderID)
	}
}
