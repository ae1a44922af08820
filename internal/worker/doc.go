// Package worker обрабатывает входную очередь одного воркера.
//
// # Обзор
//
// Каждый экземпляр Worker привязан к одному воркеру (имя, очередь, bucket).
// Экземпляры одного воркера масштабируются горизонтально и читают из
// общей очереди.
//
//	w := worker.New(worker.Config{
//	    Self:      self,
//	    Store:     store,
//	    Blobs:     blobs,
//	    Receiver:  consumer,
//	    Trigger:   trigger,
//	    Processor: worker.DelayProcessor{Min: 3 * time.Minute, Max: 5 * time.Minute},
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка сообщения
//
//  1. Разбор envelope (нераспознанное сообщение уходит в DLQ,
//     пустой requestId возвращается в очередь)
//  2. Processor строит документ результата
//  3. Документ пишется в bucket воркера
//  4. engine[воркер] = DONE, outputs[воркер] = ключ документа
//  5. Попытка перехода запроса в MERGING
//  6. Ack; ошибка на любом шаге — Nack с возвратом в очередь
//
// Повторы обеспечивает брокер: после QUEUE_DELIVERY_LIMIT доставок
// сообщение попадает в DLQ.
//
// # Processor
//
//   - DelayProcessor — пауза в заданном диапазоне и нормализация payload'а
//   - HTTPProcessor — вызов внешнего сервиса анализа
package worker
