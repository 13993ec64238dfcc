package dispatch

import (
	"sync"

	"github.com/admeshlabs/mediation-bridge/internal/handle"
)

// RegistryStats is a point-in-time snapshot of registry counters
type RegistryStats struct {
	Live       int
	Registered int64
	Removed    int64
	GetHits    int64
	GetMisses  int64
}

// Registry tracks live ad handles between load and invalidate. Handles
// are exclusively owned by the adapter; the registry is the only shared
// index over them.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*handle.Handle

	registered int64
	removed    int64
	getHits    int64
	getMisses  int64
}

// NewRegistry creates an empty handle registry
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*handle.Handle),
	}
}

// Add registers a loaded handle
func (r *Registry) Add(h *handle.Handle) {
	r.mu.Lock()
	r.handles[h.ID()] = h
	r.registered++
	r.mu.Unlock()
}

// Get looks up a live handle by id
func (r *Registry) Get(id string) (*handle.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if ok {
		r.getHits++
	} else {
		r.getMisses++
	}
	return h, ok
}

// Remove deregisters and returns a handle, if present
func (r *Registry) Remove(id string) (*handle.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
		r.removed++
	} else {
		r.getMisses++
	}
	return h, ok
}

// Len returns the number of live handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Stats returns a snapshot of the registry counters
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{
		Live:       len(r.handles),
		Registered: r.registered,
		Removed:    r.removed,
		GetHits:    r.getHits,
		GetMisses:  r.getMisses,
	}
}
