package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// StatusResult — состояние запроса.
type StatusResult struct {
	RequestID   string                         `json:"requestId"`
	Engine      map[string]domain.WorkerStatus `json:"engine"`
	FinalStatus domain.FinalStatus             `json:"finalStatus"`
	MergedKey   string                         `json:"mergedKey,omitempty"`
}

// PendingResult — ответ на запрос результатов до финализации.
type PendingResult struct {
	RequestID   string                         `json:"requestId"`
	FinalStatus domain.FinalStatus             `json:"finalStatus"`
	Engine      map[string]domain.WorkerStatus `json:"engine"`
}

// Page — страница итогового документа.
type Page struct {
	RequestID string            `json:"requestId"`
	MergedKey string            `json:"mergedKey"`
	Page      int               `json:"page"`
	Size      int               `json:"size"`
	Total     int               `json:"total"`
	Items     []json.RawMessage `json:"items"`
}

// FindingsQuery — параметры запроса результатов.
type FindingsQuery struct {
	RequestID string

	// Key переопределяет ключ документа в bucket.
	Key string

	Page int
	Size int
}

// FindingsResult содержит ровно одно из Pending и Page.
type FindingsResult struct {
	Pending *PendingResult
	Page    *Page
}

// Config — конфигурация Service.
type Config struct {
	Store repo.Store
	Blobs blob.Store

	// MergedBucket — bucket итоговых документов.
	MergedBucket string

	Logger *slog.Logger
}

// Service — чтение состояния и результатов.
type Service struct {
	store        repo.Store
	blobs        blob.Store
	mergedBucket string
	logger       *slog.Logger
}

// New создаёт сервис.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        cfg.Store,
		blobs:        cfg.Blobs,
		mergedBucket: cfg.MergedBucket,
		logger:       logger,
	}
}

// Status возвращает состояние запроса или repo.ErrNotFound.
func (s *Service) Status(ctx context.Context, requestID string) (*StatusResult, error) {
	rec, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &StatusResult{
		RequestID:   rec.RequestID,
		Engine:      rec.Engine,
		FinalStatus: rec.FinalStatus.OrPending(),
		MergedKey:   rec.MergedKey,
	}, nil
}

// Findings возвращает результаты запроса.
//
// Пока запрос не DONE, blob store не читается: результат — PendingResult.
// Ключ документа: q.Key, иначе mergedKey записи, иначе {requestId}.json.
// Отсутствующий документ — blob.ErrNotFound.
func (s *Service) Findings(ctx context.Context, q FindingsQuery) (*FindingsResult, error) {
	rec, err := s.store.Get(ctx, q.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	if status := rec.FinalStatus.OrPending(); status != domain.FinalStatusDone {
		return &FindingsResult{Pending: &PendingResult{
			RequestID:   rec.RequestID,
			FinalStatus: status,
			Engine:      rec.Engine,
		}}, nil
	}

	key := strings.TrimSpace(q.Key)
	if key == "" {
		key = rec.MergedKey
	}
	if key == "" {
		key = domain.MergedKey(rec.RequestID)
	}

	doc, err := s.blobs.Get(ctx, s.mergedBucket, key)
	if err != nil {
		return nil, fmt.Errorf("read merged document %s: %w", key, err)
	}

	page := q.Page
	if page <= 0 {
		page = DefaultPage
	}
	size := clampSize(q.Size)

	items, total, err := Paginate(doc, page, size)
	if err != nil {
		telemetry.WithRequestID(s.logger, rec.RequestID).Error("merged document is not valid JSON", "key", key)
		return nil, err
	}

	return &FindingsResult{Page: &Page{
		RequestID: rec.RequestID,
		MergedKey: key,
		Page:      page,
		Size:      size,
		Total:     total,
		Items:     items,
	}}, nil
}
