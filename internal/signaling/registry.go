package signaling

import "sync"

// DefaultCapacity bounds the remembered processed and cancelled call ids.
const DefaultCapacity = 256

// Registry is a device's shared view of call state: whether it is busy, which calls were
// already handled and which were cancelled before being handled.
//
// One Registry is created per process and handed to every adapter and the resolver.
// All methods are safe for concurrent use, idempotent and never fail.
type Registry struct {
	mu        sync.Mutex
	busy      bool
	capacity  int
	processed boundedSet
	cancelled boundedSet
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity:  capacity,
		processed: newBoundedSet(),
		cancelled: newBoundedSet(),
	}
}

func (r *Registry) MarkBusy(busy bool) {
	r.mu.Lock()
	r.busy = busy
	r.mu.Unlock()
}

func (r *Registry) IsBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

func (r *Registry) MarkProcessed(callID string) {
	if callID == "" {
		return
	}
	r.mu.Lock()
	r.processed.add(callID, r.capacity)
	r.mu.Unlock()
}

func (r *Registry) IsProcessed(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed.has(callID)
}

func (r *Registry) MarkCancelled(callID string) {
	if callID == "" {
		return
	}
	r.mu.Lock()
	r.cancelled.add(callID, r.capacity)
	r.mu.Unlock()
}

func (r *Registry) IsCancelled(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled.has(callID)
}

// Reset forgets everything, as on a fresh app launch.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.busy = false
	r.processed = newBoundedSet()
	r.cancelled = newBoundedSet()
	r.mu.Unlock()
}

// boundedSet is an insertion-ordered set that evicts its oldest ids past capacity.
type boundedSet struct {
	index map[string]struct{}
	order []string
}

func newBoundedSet() boundedSet {
	return boundedSet{index: map[string]struct{}{}}
}

func (s *boundedSet) add(id string, capacity int) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.order) > capacity {
		delete(s.index, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *boundedSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}
