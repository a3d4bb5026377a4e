package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// MemoryStore — потокобезопасный Store в памяти.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte // bucket -> key -> data
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte) (domain.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.objects[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.objects[bucket] = b
	}
	b[key] = append([]byte(nil), data...)

	return domain.ObjectRef(bucket, key), nil
}

func (m *MemoryStore) Get(ctx context.Context, ref domain.Reference) ([]byte, error) {
	bucket, key, err := ref.Object()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryStore) RemovePrefix(ctx context.Context, bucket, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects[bucket], key)
		}
	}
	return nil
}

// Len возвращает количество объектов в bucket.
func (m *MemoryStore) Len(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[bucket])
}
