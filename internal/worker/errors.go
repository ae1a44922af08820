package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidPayload — payload envelope'а не является JSON.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownWorker — воркер не входит в набор воркеров запроса.
	ErrUnknownWorker = errors.New("worker is not part of the request")

	// ErrHTTPRequest — запрос к внешнему сервису завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
