// Package pool dispenses unique single-use redemption codes per catalog key.
//
// All keys share one mutex: every Take, Ensure and Load is serialized
// against every other call. Dispensing is not a hot path, and a single lock
// keeps the uniqueness argument local to this file.
package pool

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/go-faster/errors"

	"github.com/veristore/veristore/internal/domain/catalog"
)

// Alphabet excludes the visually confusable 0/O, 1/I and lowercase letters.
// Its length is 32, so a random byte masked with 31 maps onto it uniformly.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// DefaultCodeLength is the length of generated codes.
	DefaultCodeLength = 14

	defaultLedgerCapacity = 1_000_000
	defaultLedgerFPR      = 1e-6

	// maxMintAttempts bounds regeneration when the ledger reports a
	// possible duplicate.
	maxMintAttempts = 64
)

var (
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrOutOfStock is returned when replenishment is disabled and the
	// provisioned stock cannot cover a request.
	ErrOutOfStock = errors.New("out of stock")
)

// Config controls code generation and replenishment.
type Config struct {
	// CodeLength defaults to DefaultCodeLength.
	CodeLength int
	// Replenish enables synchronous generation of fresh codes when a key
	// runs short. When false, only provisioned stock (see Load) is
	// dispensed.
	Replenish bool
	// Reserve is the stock a replenishing take leaves behind, so a key
	// seeded at startup never drains to zero. Ignored without Replenish.
	Reserve int
	// LedgerCapacity and LedgerFPR size each stage of the ledger that
	// remembers every code the pool has ever held. The ledger grows by a
	// stage per LedgerCapacity codes.
	LedgerCapacity uint
	LedgerFPR      float64
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Demand is one line of a multi-key take.
type Demand struct {
	Key      catalog.Key
	Quantity int
}

// Pool is the per-key code inventory.
type Pool struct {
	cfg Config

	mu     sync.Mutex
	stock  map[catalog.Key][]string
	ledger *ledger
}

// LoadStats is the outcome of loading one batch of provisioned codes.
type LoadStats struct {
	Accepted int
	// Skipped counts blank codes and codes the ledger may have seen before.
	Skipped int
}

// New creates an empty Pool.
func New(cfg Config) *Pool {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.LedgerCapacity == 0 {
		cfg.LedgerCapacity = defaultLedgerCapacity
	}
	if cfg.LedgerFPR <= 0 || cfg.LedgerFPR >= 1 {
		cfg.LedgerFPR = defaultLedgerFPR
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Pool{
		cfg:    cfg,
		stock:  make(map[catalog.Key][]string),
		ledger: newLedger(cfg.LedgerCapacity, cfg.LedgerFPR),
	}
}

// Take removes and returns exactly quantity distinct codes for key, oldest
// first.
func (p *Pool) Take(key catalog.Key, quantity int) ([]string, error) {
	out, err := p.TakeMany([]Demand{{Key: key, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// TakeMany satisfies every demand or none: stock is checked and topped up
// for all demands before any code is removed. Result i belongs to demand i.
func (p *Pool) TakeMany(demands []Demand) ([][]string, error) {
	need := make(map[catalog.Key]int, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "take %s", d.Key)
		}
		need[d.Key] += d.Quantity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, n := range need {
		have := len(p.stock[key])
		if !p.cfg.Replenish {
			if have < n {
				return nil, errors.Wrapf(ErrOutOfStock, "%s: want %d, have %d", key, n, have)
			}
			continue
		}
		if err := p.fillLocked(key, n+max(p.cfg.Reserve, 0)); err != nil {
			return nil, err
		}
	}

	out := make([][]string, len(demands))
	for i, d := range demands {
		q := p.stock[d.Key]
		codes := make([]string, d.Quantity)
		copy(codes, q[:d.Quantity])
		p.stock[d.Key] = q[d.Quantity:]
		out[i] = codes
	}
	return out, nil
}

// Ensure tops up key to at least minimum codes. A non-positive minimum is a
// no-op.
func (p *Pool) Ensure(key catalog.Key, minimum int) error {
	if minimum <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked(key, minimum)
}

// Available returns the live stock for key.
func (p *Pool) Available(key catalog.Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stock[key])
}

// Load appends externally provisioned codes to key. Blank codes and codes
// the ledger may have seen before are skipped.
func (p *Pool) Load(key catalog.Key, codes []string) LoadStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var st LoadStats
	for _, c := range codes {
		if c == "" || p.ledger.testOrAdd(c) {
			st.Skipped++
			continue
		}
		p.stock[key] = append(p.stock[key], c)
		st.Accepted++
	}
	return st
}

func (p *Pool) fillLocked(key catalog.Key, minimum int) error {
	q := p.stock[key]
	if len(q) >= minimum {
		return nil
	}
	// Reallocate so the FIFO does not keep growing its drained prefix.
	grown := make([]string, len(q), minimum)
	copy(grown, q)
	for len(grown) < minimum {
		code, err := p.mintLocked()
		if err != nil {
			return errors.Wrapf(err, "replenish %s", key)
		}
		grown = append(grown, code)
	}
	p.stock[key] = grown
	return nil
}

// mintLocked generates a code the ledger has never reported. Bloom filters
// have no false negatives, so a code that passes is new. The ledger keeps
// its false-positive rate bounded, so retries stay rare however many codes
// have been minted.
func (p *Pool) mintLocked() (string, error) {
	buf := make([]byte, p.cfg.CodeLength)
	for range maxMintAttempts {
		if _, err := io.ReadFull(p.cfg.Rand, buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		for i, b := range buf {
			buf[i] = Alphabet[b&31]
		}
		code := string(buf)
		if !p.ledger.testOrAdd(code) {
			return code, nil
		}
	}
	return "", errors.Errorf("no fresh code after %d attempts", maxMintAttempts)
}
