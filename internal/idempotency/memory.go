package idempotency

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore — in-memory ключи идемпотентности с TTL.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore создаёт хранилище.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// Reserve занимает ключ или возвращает текущую запись.
func (s *MemoryStore) Reserve(ctx context.Context, key, hash string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		entry := e.entry
		entry.Response = slices.Clone(entry.Response)
		return &entry, false, nil
	}
	s.entries[key] = memEntry{entry: Entry{Hash: hash}, expiresAt: now.Add(s.ttl)}
	return nil, true, nil
}

// Complete сохраняет ответ.
func (s *MemoryStore) Complete(ctx context.Context, key string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Response = slices.Clone(entry.Response)
	s.entries[key] = memEntry{entry: entry, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Release удаляет ключ.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
