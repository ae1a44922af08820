// Package mq предоставляет очереди сообщений Gather.
//
// Структура:
//   - queue.go      — интерфейсы Sender/Receiver и Delivery
//   - connection.go — соединение с RabbitMQ (reconnect, publisher confirms, graceful shutdown)
//   - topology.go   — объявление exchanges, quorum-очередей и DLQ
//   - publisher.go  — отправка сообщений (Sender поверх RabbitMQ)
//   - consumer.go   — пакетное получение сообщений (Receiver поверх basic.get)
//   - memory.go     — in-memory очередь для тестов и локального запуска
//
// Очереди:
//   - work.<worker>  — входная очередь каждого воркера (envelope запроса)
//   - merge.trigger  — очередь слияния ({"requestId": ...})
//   - dlq.work       — сообщения, исчерпавшие лимит доставок
//
// Exchanges:
//   - gather.work    — direct, routing key = имя очереди
//   - gather.dlq     — dead letter exchange
package mq
