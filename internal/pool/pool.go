// Package pool implements the pending-transaction buffer consensus
// proposals draw from: a submission-ordered queue guarded by a single
// mutex, with age-based expiry of transactions that never make it into
// a finalized block.
package pool

import (
	"sync"
	"time"

	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

// MaxTransactionAge is how long a transaction may sit in the pool
// before the cleaner reaps it, even if never included in a block.
const MaxTransactionAge = 5 * time.Minute

// MaxDrainSize is the largest number of transactions a single
// proposal may drain from the pool.
const MaxDrainSize = 1000

// Pool is the pending-transaction buffer shared between transaction
// submitters and the block proposer.
type Pool struct {
	mu      sync.Mutex
	order   []string
	entries map[string]poetypes.Transaction
}

// New constructs an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[string]poetypes.Transaction)}
}

// Submit adds tx to the pool if its hash isn't already present,
// preserving submission order.
func (p *Pool) Submit(tx poetypes.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[tx.Hash]; exists {
		return nil
	}
	p.entries[tx.Hash] = tx
	p.order = append(p.order, tx.Hash)
	return nil
}

// Drain removes and returns up to MaxDrainSize transactions in
// submission order, for a block proposer to build a block from.
func (p *Pool) Drain() []poetypes.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := MaxDrainSize
	if limit > len(p.order) {
		limit = len(p.order)
	}

	drained := make([]poetypes.Transaction, 0, limit)
	for i := 0; i < limit; i++ {
		hash := p.order[i]
		drained = append(drained, p.entries[hash])
		delete(p.entries, hash)
	}
	p.order = p.order[limit:]
	return drained
}

// Remove reaps tx hashes that were included in a finalized block but
// not drained through Drain (e.g. a resubmission race).
func (p *Pool) Remove(hashes []string) {
	if len(hashes) == 0 {
		return
	}
	toRemove := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		toRemove[h] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.order[:0]
	for _, h := range p.order {
		if _, remove := toRemove[h]; remove {
			delete(p.entries, h)
			continue
		}
		kept = append(kept, h)
	}
	p.order = kept
}

// CleanExpired removes every transaction whose own timestamp is older
// than MaxTransactionAge, returning how many were reaped. Intended to
// be called from a periodic pool-cleaner goroutine.
func (p *Pool) CleanExpired() int {
	nowMs := time.Now().UnixMilli()
	maxAgeMs := MaxTransactionAge.Milliseconds()

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.order[:0]
	removed := 0
	for _, h := range p.order {
		if tx, ok := p.entries[h]; ok && tx.IsExpired(nowMs, maxAgeMs) {
			delete(p.entries, h)
			removed++
			continue
		}
		kept = append(kept, h)
	}
	p.order = kept
	return removed
}

// Count returns the number of transactions currently pending.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// RunCleaner starts a goroutine that calls CleanExpired every interval
// until stop is closed.
func (p *Pool) RunCleaner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.CleanExpired()
			case <-stop:
				return
			}
		}
	}()
}
