// Package dispatch принимает запрос и раздаёт его всем сконфигурированным воркерам.
//
// Порядок операций:
//  1. Разбор и проверка payload'а (без побочных эффектов при ошибке)
//  2. Генерация requestId
//  3. Создание записи оркестрации: все воркеры IN_PROGRESS, статус PENDING
//  4. Отправка envelope в очередь каждого воркера
//
// Запись создаётся до первой отправки, поэтому воркер всегда находит её.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// Result — ответ на успешный dispatch.
type Result struct {
	RequestID  string            `json:"requestId"`
	MessageIDs map[string]string `json:"messageIds"`
}

// Config — конфигурация сервиса.
type Config struct {
	Store   repo.Store
	Sender  mq.Sender
	Workers domain.WorkerSet
	Logger  *slog.Logger

	// NewID генерирует requestId. По умолчанию uuid.NewString.
	NewID func() string

	// Now — источник времени. По умолчанию time.Now.
	Now func() time.Time
}

// Service — сервис dispatch.
type Service struct {
	store   repo.Store
	sender  mq.Sender
	workers domain.WorkerSet
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// New создаёт сервис.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   cfg.Store,
		sender:  cfg.Sender,
		workers: cfg.Workers,
		logger:  logger,
		newID:   newID,
		now:     now,
	}
}

// Dispatch разбирает входной JSON и раздаёт payload воркерам.
//
// Частичная ошибка отправки возвращается как одна ошибка (ErrEnqueue);
// запись и уже отправленные сообщения остаются.
func (s *Service) Dispatch(ctx context.Context, raw []byte) (*Result, error) {
	payload, err := ResolvePayload(raw)
	if err != nil {
		telemetry.Dispatches.WithLabelValues(telemetry.OutcomeInvalid).Inc()
		return nil, err
	}

	requestID := s.newID()
	logger := telemetry.WithRequestID(s.logger, requestID)

	body, err := json.Marshal(domain.Envelope{RequestID: requestID, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	names := s.workers.Names()
	if len(names) == 0 {
		logger.Warn("no workers configured, request will never be merged")
	}

	if err := s.store.Create(ctx, domain.NewRecord(requestID, names, s.now())); err != nil {
		telemetry.Dispatches.WithLabelValues(telemetry.OutcomeError).Inc()
		return nil, fmt.Errorf("record start: %w", err)
	}

	messageIDs := make(map[string]string, len(names))
	for _, w := range s.workers.All() {
		id, err := s.sender.Send(ctx, w.Queue, body)
		if err != nil {
			telemetry.Dispatches.WithLabelValues(telemetry.OutcomeError).Inc()
			logger.Error("failed to enqueue envelope",
				"worker", w.Name,
				"queue", w.Queue,
				"sent", len(messageIDs),
				"error", err,
			)
			return nil, fmt.Errorf("%w: worker %s: %w", ErrEnqueue, w.Name, err)
		}
		messageIDs[w.Name] = id
	}

	telemetry.Dispatches.WithLabelValues(telemetry.OutcomeOK).Inc()
	logger.Info("request dispatched", "workers", len(messageIDs))

	return &Result{RequestID: requestID, MessageIDs: messageIDs}, nil
}

// ResolvePayload выделяет payload из входного JSON.
//
// Если вход — объект с ключом "payload", payload — его значение,
// иначе payload — весь вход. Отклоняются null, пустой объект,
// пустая или пробельная строка и некорректный JSON.
func ResolvePayload(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrInvalidPayload
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
	}

	payload := json.RawMessage(raw)
	if raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if inner, ok := obj["payload"]; ok {
			payload = inner
		}
	}

	if isEmptyPayload(payload) {
		return nil, ErrInvalidPayload
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return compact.Bytes(), nil
}

// isEmptyPayload проверяет null, пустой объект и пустую строку.
func isEmptyPayload(payload json.RawMessage) bool {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return true
	}
	switch payload[0] {
	case '{':
		var obj map[string]json.RawMessage
		return json.Unmarshal(payload, &obj) == nil && len(obj) == 0
	case '"':
		var s string
		return json.Unmarshal(payload, &s) == nil && len(bytes.TrimSpace([]byte(s))) == 0
	}
	return false
}
