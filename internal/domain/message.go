package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope — сообщение во входной очереди воркера.
//
// Payload не интерпретируется dispatch'ем и передаётся как есть.
type Envelope struct {
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// MergeTrigger — сообщение в очереди слияния.
type MergeTrigger struct {
	RequestID string `json:"requestId"`
}

// WorkerOutput — документ, который воркер пишет в blob store.
type WorkerOutput struct {
	RequestID string         `json:"requestId"`
	Payload   map[string]any `json:"payload"`
}

// MergedDocument — итоговый документ запроса.
//
// Items — результаты воркеров в порядке имён воркеров,
// поэтому содержимое зависит только от набора результатов.
type MergedDocument struct {
	RequestID string            `json:"requestId"`
	MergedAt  time.Time         `json:"mergedAt"`
	Items     []json.RawMessage `json:"items"`
}

// DecodeEnvelope разбирает тело сообщения воркера.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodeMergeTrigger разбирает тело сообщения из очереди слияния.
func DecodeMergeTrigger(body []byte) (MergeTrigger, error) {
	var t MergeTrigger
	if err := json.Unmarshal(body, &t); err != nil {
		return MergeTrigger{}, fmt.Errorf("decode merge trigger: %w", err)
	}
	return t, nil
}
