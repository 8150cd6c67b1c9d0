// Package registry
// Author: momentics <momentics@gmail.com>
//
// Extension-point registry keyed by a stable identifier. Implementations
// register themselves at process startup; consumers look them up by id.

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/vfs"
	"github.com/momentics/hioload-fdstream/volume"
)

// Factory builds an implementation of T.
type Factory[T any] func() (T, error)

// Registry maps ids to factories.
type Registry[T any] struct {
	name      string
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New returns an empty registry. name only appears in errors.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, factories: make(map[string]Factory[T])}
}

// Register binds id to f. Ids are registered once.
func (r *Registry[T]) Register(id string, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("registry %s: nil factory for %q", r.name, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; ok {
		return fmt.Errorf("registry %s: %q: %w", r.name, id, api.ErrAlreadyExists)
	}
	r.factories[id] = f
	return nil
}

// MustRegister is Register for init functions.
func (r *Registry[T]) MustRegister(id string, f Factory[T]) {
	if err := r.Register(id, f); err != nil {
		panic(err)
	}
}

// Lookup builds the implementation registered under id.
func (r *Registry[T]) Lookup(id string) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("registry %s: %q: %w", r.name, id, api.ErrNotFound)
	}
	return f()
}

// IDs returns the registered ids in sorted order.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MonitorFactory builds a volume monitor over a device event source,
// publishing on a reactor.
type MonitorFactory func(src api.DeviceEvents, r api.Reactor) (api.VolumeMonitor, error)

// Process-wide extension points.
var (
	Resolvers = New[api.Resolver]("resolvers")
	Monitors  = New[MonitorFactory]("monitors")
)

// Built-in ids.
const (
	LocalResolver = "local"
	DeviceMonitor = "device"
)

func init() {
	Resolvers.MustRegister(LocalResolver, func() (api.Resolver, error) {
		return vfs.Local{}, nil
	})
	Monitors.MustRegister(DeviceMonitor, func() (MonitorFactory, error) {
		return func(src api.DeviceEvents, r api.Reactor) (api.VolumeMonitor, error) {
			m, err := volume.New(src, r)
			if err != nil {
				return nil, err
			}
			return m, nil
		}, nil
	})
}
