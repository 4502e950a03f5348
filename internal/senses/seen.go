package senses

import "sync"

// seenRing is a bounded set of recently processed message IDs. It keeps
// redelivered gateway events from producing duplicate log writes without
// growing without bound: when full, the oldest entry is evicted.
type seenRing struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenRing(size int) *seenRing {
	return &seenRing{
		ids:   make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// Add records the ID and reports whether it was new.
func (r *seenRing) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}
	if old := r.order[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.ids[id] = struct{}{}
	return true
}
