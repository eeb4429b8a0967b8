package staging

import (
	"context"
	"fmt"
	"sync"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// MemoryStore is an in-process StagingStore for local development and
// tests, with no external dependency.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Store copies data into the in-process map.
func (m *MemoryStore) Store(ctx context.Context, path rag.StoragePath, data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.objects[path.String()] = cp
	return int64(len(cp)), nil
}

// Fetch returns a copy of the staged bytes.
func (m *MemoryStore) Fetch(ctx context.Context, path rag.StoragePath) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path.String()]
	if !ok {
		return nil, fmt.Errorf("staging: %s: %w", path, errNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the staged object, idempotently.
func (m *MemoryStore) Delete(ctx context.Context, path rag.StoragePath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path.String())
	return nil
}

// Head reports the size of a staged object.
func (m *MemoryStore) Head(ctx context.Context, path rag.StoragePath) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path.String()]
	if !ok {
		return 0, fmt.Errorf("staging: %s: %w", path, errNotFound)
	}
	return int64(len(data)), nil
}

var errNotFound = fmt.Errorf("object not found")

var _ rag.StagingStore = (*MemoryStore)(nil)
