// Package blob — хранилище документов по ключу (результаты воркеров и итоговые документы).
//
// Реализации:
//   - MongoStore — MongoDB, bucket = коллекция, ключ = _id
//   - MemoryStore — in-memory, для тестов и локального запуска
package blob

import (
	"context"
	"errors"
)

// ErrNotFound — объект с таким ключом не найден.
var ErrNotFound = errors.New("blob not found")

// Store — хранилище объектов.
// Put с существующим ключом перезаписывает объект.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}
