package isotp

import "sync"

// registry holds all live links of a stack. Mutation happens under a short
// write lock; the dispatcher and poll driver traverse a copied snapshot, so
// NewLink/Close never race with an iteration in progress. Snapshots
// preserve registration order, which fixes the fan-out delivery order.
type registry struct {
	mu    sync.RWMutex
	links []*Link
}

func (r *registry) add(l *Link) {
	r.mu.Lock()
	r.links = append(r.links, l)
	r.mu.Unlock()
}

func (r *registry) remove(l *Link) {
	r.mu.Lock()
	for i, cur := range r.links {
		if cur == l {
			r.links = append(r.links[:i], r.links[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *registry) snapshot() []*Link {
	r.mu.RLock()
	out := make([]*Link, len(r.links))
	copy(out, r.links)
	r.mu.RUnlock()
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	n := len(r.links)
	r.mu.RUnlock()
	return n
}
