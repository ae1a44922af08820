package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Gather/internal/domain"
)

// Processor превращает envelope в документ результата воркера.
//
// Реализации: DelayProcessor (локальная нормализация), HTTPProcessor
// (внешний сервис анализа).
//
// Ошибка означает, что сообщение нужно доставить повторно.
type Processor interface {
	Process(ctx context.Context, worker string, env domain.Envelope) (map[string]any, error)
}

// ProcessorFunc позволяет использовать функцию как Processor.
type ProcessorFunc func(ctx context.Context, worker string, env domain.Envelope) (map[string]any, error)

// Process вызывает f.
func (f ProcessorFunc) Process(ctx context.Context, worker string, env domain.Envelope) (map[string]any, error) {
	return f(ctx, worker, env)
}

// NormalizePayload разбирает payload и помечает его именем воркера.
//
// Поля объекта копируются как есть, любое другое значение
// оборачивается в {"payload": value}, null даёт пустой документ.
// Всегда добавляется serviceName.
func NormalizePayload(worker string, raw json.RawMessage) (map[string]any, error) {
	var v any
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return normalize(worker, v), nil
}

func normalize(worker string, v any) map[string]any {
	out := make(map[string]any)
	switch val := v.(type) {
	case map[string]any:
		for k, field := range val {
			out[k] = field
		}
	case nil:
	default:
		out["payload"] = val
	}
	out["serviceName"] = worker
	return out
}
