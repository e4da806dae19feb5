package templates

import (
	"maps"
	"slices"
	"sync"
)

// Registry maps template names to compiled templates for one generation pass.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Compiled
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Compiled)}
}

// Register stores c under its name and returns the entry it replaced, if any.
func (r *Registry) Register(c *Compiled) *Compiled {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.templates[c.Name]
	r.templates[c.Name] = c
	return prev
}

// Lookup returns the template registered under name.
func (r *Registry) Lookup(name string) (*Compiled, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.templates[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.templates))
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
