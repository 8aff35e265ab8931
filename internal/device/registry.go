package device

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry maps device serials to their wrappers. Reads are safe from any
// goroutine.
type Registry struct {
	wrappers cmap.ConcurrentMap[string, Wrapper]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{wrappers: cmap.New[Wrapper]()}
}

// Add registers w. It returns false if a wrapper with the same ID exists.
func (r *Registry) Add(w Wrapper) bool {
	return r.wrappers.SetIfAbsent(w.ID(), w)
}

// Remove unregisters and returns the wrapper of id.
func (r *Registry) Remove(id string) (Wrapper, bool) {
	return r.wrappers.Pop(id)
}

// Lookup returns the wrapper of id.
func (r *Registry) Lookup(id string) (Wrapper, bool) {
	return r.wrappers.Get(id)
}

// List returns the registered IDs in sorted order.
func (r *Registry) List() []string {
	ids := r.wrappers.Keys()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered wrappers.
func (r *Registry) Len() int {
	return r.wrappers.Count()
}

// Drain removes and returns every wrapper.
func (r *Registry) Drain() []Wrapper {
	var out []Wrapper
	for _, id := range r.wrappers.Keys() {
		if w, ok := r.wrappers.Pop(id); ok {
			out = append(out, w)
		}
	}
	return out
}
