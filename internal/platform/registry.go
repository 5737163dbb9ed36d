package platform

import (
	"fmt"
	"sort"
)

// Registry holds the adapters for every configured platform. It is built
// once at startup and never mutated afterwards, so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for the same platform key is a programming error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		key := a.Platform()
		if _, exists := m[key]; exists {
			return nil, fmt.Errorf("duplicate adapter for platform: %s", key)
		}
		m[key] = a
	}
	return &Registry{adapters: m}, nil
}

// Lookup returns the adapter for a platform key, or ErrUnsupportedPlatform.
func (r *Registry) Lookup(platform string) (Adapter, error) {
	adapter, exists := r.adapters[platform]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return adapter, nil
}

// Platforms returns the registered platform keys, sorted for stable output.
func (r *Registry) Platforms() []string {
	keys := make([]string, 0, len(r.adapters))
	for key := range r.adapters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
