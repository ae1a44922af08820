// Package domain содержит доменные модели Gather.
//
// Файлы:
//   - status.go — статусы воркеров и общий статус запроса
//   - workers.go — реестр сконфигурированных воркеров (WorkerSet)
//   - record.go — запись оркестрации (одна на запрос)
//   - message.go — сообщения очередей и форматы документов
//   - keys.go — построение ключей в blob store
package domain
