package coord

import (
	"context"
	"sync"
)

// pendingSet tracks in-flight requests by id so teardown can abort them.
// Each entry holds the cancel func for that request's context.
type pendingSet struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newPendingSet() *pendingSet {
	return &pendingSet{cancels: make(map[string]context.CancelFunc)}
}

func (p *pendingSet) add(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[id] = cancel
}

// remove releases the entry and its context regardless of how the request
// settled. Safe to call after cancel.
func (p *pendingSet) remove(id string) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	delete(p.cancels, id)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *pendingSet) cancel(id string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// cancelAll fires every registered cancel func and returns how many were
// pending. Entries are removed by each request's own settle path.
func (p *pendingSet) cancelAll() int {
	p.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(p.cancels))
	for _, cancel := range p.cancels {
		cancels = append(cancels, cancel)
	}
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}
