// Package sweeper находит запросы без прогресса и восстанавливает их.
//
// Sweeper запускается по cron-расписанию. На каждом тике:
//   - MERGING дольше StuckAfter — merge-trigger отправляется повторно
//     (слияние идемпотентно)
//   - PENDING дольше StuckAfter, все воркеры DONE — повтор перехода в MERGING
//     (trigger потерян после отката)
//   - PENDING дольше StuckAfter с незавершёнными воркерами — только
//     логируется и учитывается в gather_stuck_requests
//
// Структура:
//   - sweeper.go — жизненный цикл, тик и Sweep
//   - cron.go    — разбор расписания
//
// Leader Election:
//
// Тик выполняет только владелец Locker (pg_try_advisory_lock, см.
// repo.AdvisoryLock). Без Locker каждый экземпляр считает себя лидером.
package sweeper
