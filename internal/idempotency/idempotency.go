// Package idempotency реализует ключи идемпотентности для submit.
//
// Клиент передаёт заголовок Idempotency-Key. Под ключом хранится
// SHA-256 нормализованного payload'а и, после успешного dispatch, ответ.
//   - тот же ключ и тот же payload — повтор сохранённого ответа
//   - тот же ключ и другой payload — ErrConflict
//   - dispatch по ключу ещё идёт — ErrInProgress
//
// Реализации Store: RedisStore (SET NX + TTL) и MemoryStore.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConflict — ключ уже использован с другим payload'ом.
	ErrConflict = errors.New("idempotency key reused with different payload")

	// ErrInProgress — запрос с этим ключом ещё обрабатывается.
	ErrInProgress = errors.New("request with this idempotency key is in progress")
)

// Entry — состояние ключа.
type Entry struct {
	// Hash — SHA-256 нормализованного payload'а.
	Hash string `json:"hash"`

	// Response — сохранённый ответ. Пустой, пока dispatch не завершён.
	Response json.RawMessage `json:"response,omitempty"`
}

// Completed возвращает true, если ответ уже сохранён.
func (e *Entry) Completed() bool {
	return len(e.Response) > 0
}

// Store — хранилище ключей идемпотентности.
type Store interface {
	// Reserve атомарно занимает ключ.
	// Если ключ уже занят, возвращает текущую запись и false.
	Reserve(ctx context.Context, key, hash string) (*Entry, bool, error)

	// Complete сохраняет ответ под ключом.
	Complete(ctx context.Context, key string, entry Entry) error

	// Release освобождает ключ (после неудачного dispatch).
	Release(ctx context.Context, key string) error
}

// Guard — логика проверки ключа поверх Store.
type Guard struct {
	store Store
}

// NewGuard создаёт Guard.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Begin занимает ключ для payload'а с хешем hash.
//
// Возвращает сохранённый ответ, если запрос уже выполнен с тем же payload'ом;
// nil без ошибки — ключ занят нами, можно выполнять dispatch.
func (g *Guard) Begin(ctx context.Context, key, hash string) (json.RawMessage, error) {
	existing, reserved, err := g.store.Reserve(ctx, key, hash)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}
	if existing.Hash != hash {
		return nil, ErrConflict
	}
	if !existing.Completed() {
		return nil, ErrInProgress
	}
	return existing.Response, nil
}

// Finish сохраняет ответ под ключом.
func (g *Guard) Finish(ctx context.Context, key, hash string, response json.RawMessage) error {
	if err := g.store.Complete(ctx, key, Entry{Hash: hash, Response: response}); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Abort освобождает ключ после неудачи.
func (g *Guard) Abort(ctx context.Context, key string) error {
	if err := g.store.Release(ctx, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// HashPayload возвращает SHA-256 нормализованного JSON.
// Порядок ключей и пробелы на хеш не влияют; числа сохраняются точно.
func HashPayload(payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("normalize payload: %w", err)
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("normalize payload: %w", err)
	}

	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}
