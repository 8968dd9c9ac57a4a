package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownWorld is returned when a world name is not registered.
var ErrUnknownWorld = errors.New("unknown world")

// Registry holds the worlds a process can populate.
type Registry struct {
	mu     sync.RWMutex
	worlds map[string]*World
}

// NewRegistry creates loaded worlds for names, all sharing cfg.
func NewRegistry(names []string, cfg Config, logger *zap.Logger) *Registry {
	r := &Registry{worlds: make(map[string]*World, len(names))}
	for _, name := range names {
		r.worlds[name] = NewWorld(name, cfg, logger)
	}
	return r
}

// Lookup returns the named world.
func (r *Registry) Lookup(name string) (*World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorld, name)
	}
	return w, nil
}

// Names returns registered world names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.worlds))
	for name := range r.worlds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every world.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.worlds {
		w.Close()
	}
}
