package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process, in append order, with a
// per-number index so tests can read one caller's history.
type MemoryRepo struct {
	mu      sync.RWMutex
	log     []Event
	byPhone map[string][]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byPhone: make(map[string][]int)}
}

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Phone != "" {
		r.byPhone[e.Phone] = append(r.byPhone[e.Phone], len(r.log))
	}
	r.log = append(r.log, e)
	return nil
}

// Events returns a snapshot of every event.
func (r *MemoryRepo) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.log...)
}

// History returns the events about one normalized number, oldest first.
func (r *MemoryRepo) History(phone string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.byPhone[phone]
	out := make([]Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.log[i])
	}
	return out
}
