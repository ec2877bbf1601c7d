package credential

import "sync"

// Registry is the set of permissions an application knows about. It is
// built at startup and handed to whatever needs to enumerate or validate
// permissions; registration order does not matter.
type Registry struct {
	mu    sync.RWMutex
	known Permissions
}

func NewRegistry(ps ...Permission) *Registry {
	r := &Registry{}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register records p as known. Registering twice is a no-op.
func (r *Registry) Register(p Permission) {
	if !p.valid() {
		return
	}
	r.mu.Lock()
	r.known.Add(p)
	r.mu.Unlock()
}

// RegisterAll records every permission in s.
func (r *Registry) RegisterAll(s Permissions) {
	for _, p := range s.List() {
		r.Register(p)
	}
}

func (r *Registry) Known(p Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known.Contains(p)
}

func (r *Registry) List() []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known.List()
}
