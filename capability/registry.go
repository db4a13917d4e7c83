package capability

import (
	"errors"
	"sort"
	"sync"
)

// Registry is the closed whitelist of capability names that may be
// embedded in a signed access token. Names are registered at startup and
// the registry is frozen before use, so an unexpected or newly-added
// directory flag can never inject an unvetted capability string.
type Registry struct {
	mu     sync.RWMutex
	names  map[string]struct{}
	frozen bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// Register adds a capability name. Must be called before Freeze.
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if name == "" {
		return errors.New("capability name cannot be empty")
	}
	if _, exists := r.names[name]; exists {
		return errors.New("capability already registered")
	}

	r.names[name] = struct{}{}
	return nil
}

// Freeze prevents further registrations. Must be called before the
// registry is used for filtering.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Known reports whether name is whitelisted.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Count returns the number of registered capability names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
