package subscription

import (
	"context"
	"sync"
)

// MemoryStore keeps subscriptions in process memory. Used in mock mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	items map[string]Subscription
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Subscription)}
}

func (m *MemoryStore) Create(ctx context.Context, s Subscription) error {
	key := s.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return ErrAlreadyExists
	}
	m.items[key] = s
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subscription, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, s Subscription) (int, error) {
	key := s.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok {
		return 0, nil
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (m *MemoryStore) Close() error { return nil }
