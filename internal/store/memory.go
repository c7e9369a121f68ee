package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBlobStore keeps blobs in process memory. Used for local runs and tests.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]Blob)}
}

func (m *MemoryBlobStore) Put(_ context.Context, key string, blob Blob) error {
	data := make([]byte, len(blob.Data))
	copy(data, blob.Data)
	m.mu.Lock()
	m.blobs[key] = Blob{Data: data, ContentType: blob.ContentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBlobStore) Get(_ context.Context, key string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return Blob{}, ErrNotFound
	}
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Blob{Data: data, ContentType: b.ContentType}, nil
}

func (m *MemoryBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.blobs, k)
	}
	return nil
}

func (m *MemoryBlobStore) Close() error { return nil }
