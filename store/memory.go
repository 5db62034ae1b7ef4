package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store, mainly for tests and embedding.
// Buckets spring into existence on first put, so a handle to a deleted
// store transparently recreates it on the next write.
type MemoryStore struct {
	mutex *sync.RWMutex
	db    map[string]map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string]*Record),
	}
}

func (m *MemoryStore) Open(name string) Handle {
	return &memoryHandle{store: m, name: name}
}

func (m *MemoryStore) ListNames(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, name)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

type memoryHandle struct {
	store *MemoryStore
	name  string
}

func (h *memoryHandle) Name() string {
	return h.name
}

func (h *memoryHandle) Get(ctx context.Context, key string) (*Record, bool, error) {
	h.store.mutex.RLock()
	defer h.store.mutex.RUnlock()
	bucket, ok := h.store.db[h.name]
	if !ok {
		return nil, false, nil
	}
	rec, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	return rec, true, nil
}

func (h *memoryHandle) Put(ctx context.Context, key string, rec *Record) error {
	h.store.mutex.Lock()
	defer h.store.mutex.Unlock()
	bucket, ok := h.store.db[h.name]
	if !ok {
		bucket = make(map[string]*Record)
		h.store.db[h.name] = bucket
	}
	bucket[key] = rec
	return nil
}

func (h *memoryHandle) Delete(ctx context.Context, key string) error {
	h.store.mutex.Lock()
	defer h.store.mutex.Unlock()
	if bucket, ok := h.store.db[h.name]; ok {
		delete(bucket, key)
	}
	return nil
}

func (h *memoryHandle) Keys(ctx context.Context) ([]string, error) {
	h.store.mutex.RLock()
	defer h.store.mutex.RUnlock()
	bucket, ok := h.store.db[h.name]
	if !ok {
		return []string{}, nil
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
