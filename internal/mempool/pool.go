// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyConfirmed    = errors.New("transaction already confirmed on the main chain")
	ErrInsufficientBalance = errors.New("amount plus fee, combined with already-pending spends, exceeds balance")
	ErrPoolFull            = errors.New("mempool is full")
)

// ChainView is the read-only chain access the mempool needs to admit a
// transaction: its confirmed status and its source account's settled
// balance. Implemented by *internal/chain.Chain.
type ChainView interface {
	GetBalance(account types.Account, asset string) uint64
	GetTransactionByHash(hash types.Hash) (*tx.Transaction, bool)
}

// entry wraps a pooled transaction with its precomputed hash.
type entry struct {
	tx   *tx.Transaction
	hash types.Hash
}

// Pool holds unconfirmed transactions, keyed by tx_hash with a secondary
// fee-descending order maintained incrementally on every push. No
// transaction may appear twice, and within equal fees, insertion order is
// preserved (stable).
type Pool struct {
	mu      sync.Mutex
	chain   ChainView
	maxSize int

	txs   map[types.Hash]*entry
	order []types.Hash // sorted by fee descending, stable on ties

	// pendingDebits tracks amount+fee already committed to the pool per
	// source account and asset, so a second transaction from the same
	// unconfirmed balance is rejected before either one lands on chain.
	pendingDebits map[string]uint64
}

// New creates an empty pool bound to chain for balance/confirmation
// lookups. maxSize <= 0 means unbounded.
func New(chain ChainView, maxSize int) *Pool {
	return &Pool{
		chain:         chain,
		maxSize:       maxSize,
		txs:           make(map[types.Hash]*entry),
		pendingDebits: make(map[string]uint64),
	}
}

func debitKey(account types.Account, asset string) string {
	return string(account) + ":" + asset
}

// Push validates t for mempool admission and, if accepted, inserts it at
// the position that keeps the pool sorted by fee descending. Returns false
// (not an error) for a plain duplicate, per the push(tx) -> bool contract;
// admission rejections for other reasons return a descriptive error.
func (p *Pool) Push(t *tx.Transaction) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := t.Hash()
	if _, exists := p.txs[hash]; exists {
		return false, nil
	}
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("validate: %w", err)
	}
	if _, confirmed := p.chain.GetTransactionByHash(hash); confirmed {
		return false, ErrAlreadyConfirmed
	}

	key := debitKey(t.Source, t.Asset)
	pending := p.pendingDebits[key]
	available := p.chain.GetBalance(t.Source, t.Asset)
	if pending+t.Amount+t.Fee > available {
		return false, fmt.Errorf("%w: pending=%d amount=%d fee=%d balance=%d", ErrInsufficientBalance, pending, t.Amount, t.Fee, available)
	}

	if p.maxSize > 0 && len(p.txs) >= p.maxSize {
		if !p.evictLowestFeeLocked(t.Fee) {
			return false, ErrPoolFull
		}
	}

	p.txs[hash] = &entry{tx: t, hash: hash}
	p.pendingDebits[key] = pending + t.Amount + t.Fee
	p.insertOrderedLocked(hash, t.Fee)
	return true, nil
}

// insertOrderedLocked inserts hash into p.order at the first position
// whose existing fee is lower than fee, preserving fee-descending
// order and the relative order of equal-fee entries (stable).
func (p *Pool) insertOrderedLocked(hash types.Hash, fee uint64) {
	i := 0
	for ; i < len(p.order); i++ {
		if p.txs[p.order[i]].tx.Fee < fee {
			break
		}
	}
	p.order = append(p.order, types.Hash{})
	copy(p.order[i+1:], p.order[i:])
	p.order[i] = hash
}

// evictLowestFeeLocked drops the lowest-fee entry if it pays less than
// candidateFee, making room for a transaction that outbids it. Reports
// whether an entry was evicted.
func (p *Pool) evictLowestFeeLocked(candidateFee uint64) bool {
	if len(p.order) == 0 {
		return false
	}
	lowest := p.order[len(p.order)-1]
	if p.txs[lowest].tx.Fee >= candidateFee {
		return false
	}
	p.removeLocked(lowest)
	return true
}

// Remove drops a transaction from the pool by hash. Returns whether it was
// present.
func (p *Pool) Remove(hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash types.Hash) bool {
	e, exists := p.txs[hash]
	if !exists {
		return false
	}
	key := debitKey(e.tx.Source, e.tx.Asset)
	debit := e.tx.Amount + e.tx.Fee
	if p.pendingDebits[key] <= debit {
		delete(p.pendingDebits, key)
	} else {
		p.pendingDebits[key] -= debit
	}
	delete(p.txs, hash)
	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveBatch drops every transaction in txs from the pool, ignoring ones
// not present.
func (p *Pool) RemoveBatch(txs []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range txs {
		p.removeLocked(t.Hash())
	}
}

// Get returns a pooled transaction by hash.
func (p *Pool) Get(hash types.Hash) (*tx.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, exists := p.txs[hash]
	if !exists {
		return nil, false
	}
	return e.tx, true
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// IterAll returns every pooled transaction, fee-descending, as a snapshot
// slice safe to range over without holding the pool lock.
func (p *Pool) IterAll() []*tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*tx.Transaction, len(p.order))
	for i, h := range p.order {
		out[i] = p.txs[h].tx
	}
	return out
}

// TakeChunk returns up to maxN pooled transactions with the highest fees,
// fee-descending, without removing them from the pool.
func (p *Pool) TakeChunk(maxN int) []*tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxN > len(p.order) {
		maxN = len(p.order)
	}
	out := make([]*tx.Transaction, maxN)
	for i := 0; i < maxN; i++ {
		out[i] = p.txs[p.order[i]].tx
	}
	return out
}
