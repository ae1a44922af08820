// Package api содержит HTTP API Gather.
//
// Структура:
//   - handler.go       — Handler с DI (dispatch, query, idempotency, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery, rate limit)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - scan_handler.go  — POST /api/v1/scan
//   - query_handler.go — GET /api/v1/status/{requestId}, GET /api/v1/findings/{requestId}
//
// Внутренние ошибки логируются, клиенту возвращается общий ответ 500.
package api
