package dispatch

import "errors"

var (
	// ErrInvalidPayload — payload отсутствует, пустой или не является JSON.
	ErrInvalidPayload = errors.New("payload is required")

	// ErrEnqueue — не удалось поставить envelope в очередь воркера.
	// Запись уже создана; отправленные сообщения не отзываются.
	ErrEnqueue = errors.New("enqueue failed")
)
