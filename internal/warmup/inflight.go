package warmup

import (
	"slices"
	"sync"
)

// Registry tracks accounts with a run in flight. It is shared by the
// scheduler and the direct triggers so one account never has two runs.
type Registry struct {
	mu      sync.Mutex
	running map[int64]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[int64]struct{})}
}

// TryAcquire claims accountID. It returns false if a run already holds it.
func (r *Registry) TryAcquire(accountID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[accountID]; busy {
		return false
	}
	r.running[accountID] = struct{}{}
	return true
}

// Release frees accountID.
func (r *Registry) Release(accountID int64) {
	r.mu.Lock()
	delete(r.running, accountID)
	r.mu.Unlock()
}

// Count returns the number of runs in flight.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Running returns the sorted ids of accounts with a run in flight.
func (r *Registry) Running() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}
