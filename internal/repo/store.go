package repo

import (
	"context"
	"time"

	"github.com/shaiso/Gather/internal/domain"
)

// Store — хранилище записей оркестрации.
//
// Реализации: OrchestrationRepo (PostgreSQL) и memory.Store.
// Update атомарен: условие проверяется и изменения применяются одной операцией.
type Store interface {
	// Create сохраняет новую запись. ErrAlreadyExists при повторе request id.
	Create(ctx context.Context, rec *domain.Record) error

	// Get возвращает запись (строго согласованное чтение). ErrNotFound если нет.
	Get(ctx context.Context, requestID string) (*domain.Record, error)

	// Update применяет изменения, если выполнено условие.
	// ErrNotFound — записи нет, ErrConditionFailed — условие не выполнено.
	Update(ctx context.Context, requestID string, upd Update, cond Condition) error

	// ListStale возвращает до f.Limit записей под фильтром, самые старые первыми.
	ListStale(ctx context.Context, f StaleFilter) ([]domain.Record, error)

	// CountStale возвращает число записей под фильтром (Limit не учитывается).
	CountStale(ctx context.Context, f StaleFilter) (int, error)
}

// StaleFilter — выборка записей без прогресса.
type StaleFilter struct {
	// Status — общий статус записи.
	Status domain.FinalStatus

	// Before — записи, не обновлявшиеся с этого момента.
	Before time.Time

	// WorkersDone — воркеры, которые должны быть DONE.
	// С Unfinished=true условие инвертируется: хотя бы один не DONE.
	WorkersDone []string
	Unfinished  bool

	Limit int
}

// Matches проверяет фильтр для записи (in-memory реализация).
func (f StaleFilter) Matches(rec *domain.Record) bool {
	if rec.FinalStatus.OrPending() != f.Status || !rec.UpdatedAt.Before(f.Before) {
		return false
	}
	if len(f.WorkersDone) == 0 {
		return !f.Unfinished
	}
	return rec.AllDone(f.WorkersDone) != f.Unfinished
}

// Update — набор изменений одной записи. Нулевые поля не меняются.
type Update struct {
	// Engine — статусы воркеров, сливаются с текущими.
	Engine map[string]domain.WorkerStatus

	// Outputs — ключи результатов, сливаются с текущими.
	Outputs map[string]string

	FinalStatus domain.FinalStatus
	MergedKey   string
	MergedAt    *time.Time
}

// Condition — предикат над текущей записью.
// Все заданные части должны выполняться одновременно.
type Condition struct {
	// FinalStatus — ожидаемый общий статус. Пустое значение не проверяется.
	FinalStatus domain.FinalStatus

	// WorkersDone — воркеры, которые должны быть в статусе DONE.
	WorkersDone []string

	// HasWorkers — воркеры, которые должны присутствовать в engine.
	HasWorkers []string
}

// Matches проверяет условие для записи.
// Используется in-memory реализацией; PostgreSQL проверяет то же самое в WHERE.
func (c Condition) Matches(rec *domain.Record) bool {
	if c.FinalStatus != "" && rec.FinalStatus.OrPending() != c.FinalStatus {
		return false
	}
	for _, name := range c.WorkersDone {
		if !rec.Engine[name].IsDone() {
			return false
		}
	}
	for _, name := range c.HasWorkers {
		if _, ok := rec.Engine[name]; !ok {
			return false
		}
	}
	return true
}

// Apply применяет изменения к записи на месте.
func (u Update) Apply(rec *domain.Record, now time.Time) {
	if rec.Engine == nil {
		rec.Engine = map[string]domain.WorkerStatus{}
	}
	for name, status := range u.Engine {
		rec.Engine[name] = status
	}
	if rec.Outputs == nil {
		rec.Outputs = map[string]string{}
	}
	for name, key := range u.Outputs {
		rec.Outputs[name] = key
	}
	if u.FinalStatus != "" {
		rec.FinalStatus = u.FinalStatus
	}
	if u.MergedKey != "" {
		rec.MergedKey = u.MergedKey
	}
	if u.MergedAt != nil {
		t := *u.MergedAt
		rec.MergedAt = &t
	}
	rec.UpdatedAt = now
}
