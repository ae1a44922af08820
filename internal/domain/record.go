package domain

import (
	"maps"
	"time"
)

// Record — запись оркестрации, одна на запрос.
//
// Единственное разделяемое состояние между dispatch, воркерами и merger'ом.
// Все изменения идут через условные обновления в repo.Store.
type Record struct {
	// RequestID — идентификатор запроса (UUID v4), неизменяемый.
	RequestID string `json:"requestId"`

	// Engine — статус каждого воркера.
	// Набор ключей фиксируется при создании записи.
	Engine map[string]WorkerStatus `json:"engine"`

	// Outputs — ключ blob'а с результатом каждого завершившего воркера.
	Outputs map[string]string `json:"outputs,omitempty"`

	// FinalStatus — общий статус запроса.
	FinalStatus FinalStatus `json:"finalStatus"`

	// MergedKey — ключ итогового документа, заполняется при DONE.
	MergedKey string `json:"mergedKey,omitempty"`

	// MergedAt — время финализации.
	MergedAt *time.Time `json:"mergedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord создаёт начальную запись: все воркеры IN_PROGRESS, статус PENDING.
func NewRecord(requestID string, workers []string, now time.Time) *Record {
	engine := make(map[string]WorkerStatus, len(workers))
	for _, name := range workers {
		engine[name] = WorkerStatusInProgress
	}
	return &Record{
		RequestID:   requestID,
		Engine:      engine,
		Outputs:     map[string]string{},
		FinalStatus: FinalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AllDone проверяет, что каждый из перечисленных воркеров в статусе DONE.
// Для пустого списка возвращает false: сливать нечего.
func (r *Record) AllDone(workers []string) bool {
	if len(workers) == 0 {
		return false
	}
	for _, name := range workers {
		if !r.Engine[name].IsDone() {
			return false
		}
	}
	return true
}

// Unfinished возвращает воркеров из списка, ещё не перешедших в DONE.
func (r *Record) Unfinished(workers []string) []string {
	var out []string
	for _, name := range workers {
		if !r.Engine[name].IsDone() {
			out = append(out, name)
		}
	}
	return out
}

// Clone возвращает глубокую копию записи.
func (r *Record) Clone() *Record {
	c := *r
	c.Engine = maps.Clone(r.Engine)
	c.Outputs = maps.Clone(r.Outputs)
	if c.Outputs == nil {
		c.Outputs = map[string]string{}
	}
	if r.MergedAt != nil {
		t := *r.MergedAt
		c.MergedAt = &t
	}
	return &c
}
