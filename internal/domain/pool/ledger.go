package pool

import "github.com/bits-and-blooms/bloom/v3"

// minLedgerFPR stops the per-stage rate from shrinking without bound.
const minLedgerFPR = 1e-12

// ledger remembers every code the pool has ever held. It is a chain of bloom
// filters: once the newest stage holds capacity codes a fresh stage is added
// with half the false-positive rate, so the ledger never saturates and the
// combined rate stays below twice the configured one.
type ledger struct {
	capacity uint
	fpr      float64
	stages   []*bloom.BloomFilter
	added    uint
}

func newLedger(capacity uint, fpr float64) *ledger {
	l := &ledger{capacity: capacity, fpr: fpr}
	l.stages = []*bloom.BloomFilter{bloom.NewWithEstimates(capacity, fpr)}
	return l
}

// testOrAdd reports whether code may have been recorded before, recording it
// otherwise.
func (l *ledger) testOrAdd(code string) bool {
	for _, s := range l.stages {
		if s.TestString(code) {
			return true
		}
	}
	if l.added >= l.capacity {
		l.fpr = max(l.fpr/2, minLedgerFPR)
		l.stages = append(l.stages, bloom.NewWithEstimates(l.capacity, l.fpr))
		l.added = 0
	}
	l.stages[len(l.stages)-1].AddString(code)
	l.added++
	return false
}
