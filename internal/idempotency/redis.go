package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL — время жизни ключа идемпотентности.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "gather:idem:"

// RedisStore — ключи идемпотентности в Redis.
//
// Reserve — SET NX с TTL, поэтому из конкурентных запросов ключ
// получает ровно один. Вызывающий владеет клиентом.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisClient создаёт клиента Redis.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStore создаёт хранилище.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

var _ Store = (*RedisStore)(nil)

// Reserve занимает ключ или возвращает текущую запись.
func (s *RedisStore) Reserve(ctx context.Context, key, hash string) (*Entry, bool, error) {
	value, err := json.Marshal(Entry{Hash: hash})
	if err != nil {
		return nil, false, fmt.Errorf("marshal entry: %w", err)
	}

	// Ключ мог истечь между SETNX и GET: одна повторная попытка.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, value, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("get: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, false, fmt.Errorf("unmarshal entry: %w", err)
		}
		return &entry, false, nil
	}
	return nil, false, fmt.Errorf("reserve %q: key expired concurrently", key)
}

// Complete сохраняет ответ, продлевая TTL.
func (s *RedisStore) Complete(ctx context.Context, key string, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// Release удаляет ключ.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
