package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs: make(map[string]map[string]string),
	}
}

func (m *MemoryBackend) Get(_ context.Context, doc, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.docs[doc][key]
	return value, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, doc, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.docs[doc]
	if !ok {
		values = make(map[string]string)
		m.docs[doc] = values
	}
	values[key] = value
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
