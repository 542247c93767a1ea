package navigation

import (
	"context"
	"errors"
	"sync"
)

// Persisted selection keys.
const (
	keyTeam         = "selectedTeam"
	keyAgent        = "selectedAgent"
	keyEntityPrefix = "selectedEntity_"
)

// ErrNotFound is returned by Store.Get for a key that was never saved.
var ErrNotFound = errors.New("navigation: selection not found")

// Store persists plain string selections per client.
type Store interface {
	Get(ctx context.Context, client, key string) (string, error)
	Set(ctx context.Context, client, key, value string) error
}

func entityKey(team Team) string {
	return keyEntityPrefix + string(team)
}

// MemoryStore keeps selections in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, client, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[client][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, client, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[client] == nil {
		m.values[client] = make(map[string]string)
	}
	m.values[client][key] = value
	return nil
}
