// Package telemetry обеспечивает наблюдаемость Gather.
//
// Включает:
//   - logging.go — structured logging через slog (request_id, worker, message_id)
//   - metrics.go — Prometheus метрики gather_* (dispatch, воркеры, merge, sweeper)
//
// Все бинарники используют единый формат логирования
// и отдают метрики на /metrics.
package telemetry
