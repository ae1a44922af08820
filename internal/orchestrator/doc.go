// Package orchestrator координирует слияние результатов воркеров.
//
// Состоит из двух частей:
//   - Trigger — переход PENDING → MERGING, когда все воркеры DONE.
//     Выполняется воркером после записи своего результата; из
//     конкурентных попыток проходит ровно одна.
//   - Merger — потребитель очереди слияния: собирает результаты в один
//     документ и финализирует запись (MERGING → DONE).
//
// Файлы:
//   - trigger.go — условный переход и отправка merge-trigger
//   - orchestrator.go — жизненный цикл Merger и цикл опроса
//   - handlers.go — обработка одного merge-trigger
//   - document.go — сборка итогового документа
package orchestrator
