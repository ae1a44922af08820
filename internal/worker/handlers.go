package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// handleDelivery обрабатывает одно сообщение входной очереди.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) {
	start := time.Now()
	defer func() {
		telemetry.ProcessingDuration.WithLabelValues("worker").Observe(time.Since(start).Seconds())
	}()

	logger := telemetry.WithMessageID(w.logger, d.ID())

	env, err := domain.DecodeEnvelope(d.Body())
	if err != nil {
		// Сообщение не разобрать никогда — сразу в DLQ.
		logger.Error("failed to decode envelope", "error", err)
		telemetry.WorkerMessages.WithLabelValues(w.self.Name, telemetry.OutcomeInvalid).Inc()
		_ = d.Nack(false)
		return
	}
	if strings.TrimSpace(env.RequestID) == "" {
		logger.Error("envelope without requestId, leaving unacknowledged")
		telemetry.WorkerMessages.WithLabelValues(w.self.Name, telemetry.OutcomeInvalid).Inc()
		_ = d.Nack(true)
		return
	}

	logger = telemetry.WithRequestID(logger, env.RequestID)

	key, err := w.Process(ctx, env, d.ID())
	if err != nil {
		logger.Error("failed to process message", "error", err)
		telemetry.WorkerMessages.WithLabelValues(w.self.Name, telemetry.OutcomeError).Inc()
		_ = d.Nack(true)
		return
	}

	telemetry.WorkerMessages.WithLabelValues(w.self.Name, telemetry.OutcomeOK).Inc()
	if err := d.Ack(); err != nil {
		logger.Warn("failed to ack message", "error", err)
		return
	}
	logger.Info("stored worker output", "key", key)
}

// Process обрабатывает envelope и возвращает ключ записанного результата.
//
// Шаги выполняются по порядку, ошибка на любом прерывает обработку:
//  1. Processor строит документ
//  2. Документ пишется в bucket воркера
//  3. engine[воркер] = DONE, outputs[воркер] = ключ
//  4. Попытка перехода в MERGING
//
// Повторная обработка того же сообщения безопасна: ключ тот же,
// статус уже DONE, переход в MERGING не повторяется.
func (w *Worker) Process(ctx context.Context, env domain.Envelope, messageID string) (string, error) {
	if messageID == "" {
		messageID = w.newID()
	}

	// 1. Результат
	payload, err := w.processor.Process(ctx, w.self.Name, env)
	if err != nil {
		return "", fmt.Errorf("process payload: %w", err)
	}
	body, err := json.Marshal(domain.WorkerOutput{
		RequestID: env.RequestID,
		Payload:   payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}

	// 2. Blob
	key := domain.OutputKey(w.self.Name, env.RequestID, messageID, w.now())
	if err := w.blobs.Put(ctx, w.self.Bucket, key, body); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	// 3. Статус воркера (только для воркеров, заведённых в записи)
	err = w.store.Update(ctx, env.RequestID,
		repo.Update{
			Engine:  map[string]domain.WorkerStatus{w.self.Name: domain.WorkerStatusDone},
			Outputs: map[string]string{w.self.Name: key},
		},
		repo.Condition{HasWorkers: []string{w.self.Name}},
	)
	if errors.Is(err, repo.ErrConditionFailed) {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorker, w.self.Name)
	}
	if err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}

	// 4. Слияние
	if _, err := w.trigger.TryTrigger(ctx, env.RequestID); err != nil {
		return "", fmt.Errorf("merge trigger: %w", err)
	}

	return key, nil
}
