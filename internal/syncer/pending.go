package syncer

import (
	"sync"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
)

// PendingWrites tracks local writes that have not been acknowledged yet.
// Feed batches tagged with one of their mutation ids are held back until
// the write returns, then replayed.
type PendingWrites struct {
	mu   sync.Mutex
	held map[string][]orders.ChangeBatch
}

func NewPendingWrites() *PendingWrites {
	return &PendingWrites{held: make(map[string][]orders.ChangeBatch)}
}

func (p *PendingWrites) Add(id string) {
	p.mu.Lock()
	p.held[id] = nil
	p.mu.Unlock()
}

// Hold keeps b when its mutation is still pending and reports whether it did.
func (p *PendingWrites) Hold(b orders.ChangeBatch) bool {
	if b.MutationID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	held, ok := p.held[b.MutationID]
	if !ok {
		return false
	}
	p.held[b.MutationID] = append(held, b)
	return true
}

// Done forgets id and returns the batches held for it, oldest first.
func (p *PendingWrites) Done(id string) []orders.ChangeBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	held := p.held[id]
	delete(p.held, id)
	return held
}

func (p *PendingWrites) Has(id string) bool {
	if id == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.held[id]
	return ok
}

func (p *PendingWrites) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}
