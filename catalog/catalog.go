// Package catalog tracks which uploads are visible to the presentation side.
package catalog

import (
	"context"
	"sync"
)

// Catalog is an idempotent set of stored upload names
type Catalog interface {
	// Seed adds names discovered at startup without notifying subscribers.
	Seed(ctx context.Context, names []string) error
	// Announce adds name and reports whether it was new.
	Announce(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Memory keeps the catalog in process, ordered by first announcement
type Memory struct {
	mu       sync.Mutex
	names    []string
	index    map[string]struct{}
	onUpdate func(name string)
}

// NewMemory returns an empty catalog. onUpdate, if not nil, is called once per new name.
func NewMemory(onUpdate func(name string)) *Memory {
	return &Memory{index: make(map[string]struct{}), onUpdate: onUpdate}
}

func (m *Memory) Seed(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		m.addLocked(name)
	}
	return nil
}

func (m *Memory) Announce(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	added := m.addLocked(name)
	m.mu.Unlock()

	if added && m.onUpdate != nil {
		m.onUpdate(name)
	}
	return added, nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...), nil
}

func (m *Memory) addLocked(name string) bool {
	if _, ok := m.index[name]; ok {
		return false
	}
	m.index[name] = struct{}{}
	m.names = append(m.names, name)
	return true
}
