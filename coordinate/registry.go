package coordinate

import (
	"sync"
)

// Registry interns coordinates so that equal coordinates share one handle.
// Entries are never evicted; the number of coordinates is bounded by the graphs visited
// during the lifetime of the owning session.
type Registry struct {
	mu      sync.Mutex
	entries map[Coordinate]*Coordinate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Coordinate]*Coordinate)}
}

// Intern returns the shared handle for the given coordinate fields.
func (r *Registry) Intern(group, artifact, version, classifier string) *Coordinate {
	return r.InternValue(New(group, artifact, version, classifier))
}

// InternValue returns the shared handle for c. Entries are keyed by the field tuple, so
// coordinates whose canonical strings coincide still get distinct handles.
func (r *Registry) InternValue(c Coordinate) *Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[c]; ok {
		return existing
	}
	handle := &c
	r.entries[c] = handle
	return handle
}

// Validated interns c after checking it with Validate.
func (r *Registry) Validated(c Coordinate) (*Coordinate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return r.InternValue(c), nil
}

// Len returns the number of interned coordinates.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
