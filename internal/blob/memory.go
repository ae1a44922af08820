package blob

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore — in-memory blob store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	gets    int
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Put сохраняет копию данных.
func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = slices.Clone(data)
	return nil
}

// Get возвращает копию данных.
func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	data, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// Gets возвращает число вызовов Get.
func (s *MemoryStore) Gets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}

// Keys возвращает отсортированные ключи bucket'а.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := bucket + "/"
	var keys []string
	for id := range s.objects {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			keys = append(keys, id[len(prefix):])
		}
	}
	slices.Sort(keys)
	return keys
}
