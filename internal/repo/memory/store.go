// Package memory — in-memory реализация repo.Store.
//
// Используется в тестах и при локальном запуске без PostgreSQL.
// Условие и изменения применяются под одним мьютексом, что даёт
// ту же атомарность, что и UPDATE ... WHERE.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/repo"
)

// Store — in-memory хранилище записей оркестрации.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.Record
	now     func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		records: make(map[string]*domain.Record),
		now:     time.Now,
	}
}

var _ repo.Store = (*Store)(nil)

// SetClock подменяет источник времени (для тестов sweeper'а).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create сохраняет копию записи.
func (s *Store) Create(ctx context.Context, rec *domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.RequestID]; ok {
		return repo.ErrAlreadyExists
	}
	c := rec.Clone()
	c.FinalStatus = c.FinalStatus.OrPending()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.records[rec.RequestID] = c
	return nil
}

// Get возвращает копию записи.
func (s *Store) Get(ctx context.Context, requestID string) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[requestID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update применяет изменения, если выполнено условие.
func (s *Store) Update(ctx context.Context, requestID string, upd repo.Update, cond repo.Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[requestID]
	if !ok {
		return repo.ErrNotFound
	}
	if !cond.Matches(rec) {
		return repo.ErrConditionFailed
	}
	upd.Apply(rec, s.now())
	return nil
}

// ListStale возвращает до f.Limit записей под фильтром, самые старые первыми.
func (s *Store) ListStale(ctx context.Context, f repo.StaleFilter) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Record
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, *rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.Record) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RequestID, b.RequestID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountStale возвращает число записей под фильтром.
func (s *Store) CountStale(ctx context.Context, f repo.StaleFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if f.Matches(rec) {
			n++
		}
	}
	return n, nil
}
