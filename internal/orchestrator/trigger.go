package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// revertTimeout — сколько ждём откат MERGING → PENDING,
// даже если контекст вызывающего уже отменён.
const revertTimeout = 5 * time.Second

// Trigger выполняет переход "все воркеры DONE → поставить слияние в очередь".
//
// Переход — одна условная запись PENDING → MERGING с проверкой DONE
// для каждого воркера. Из конкурентных попыток проходит ровно одна,
// и только она отправляет merge-trigger.
type Trigger struct {
	store      repo.Store
	sender     mq.Sender
	mergeQueue string
	workers    []string
	logger     *slog.Logger
}

// TriggerConfig — конфигурация Trigger.
type TriggerConfig struct {
	Store      repo.Store
	Sender     mq.Sender
	MergeQueue string
	Workers    domain.WorkerSet
	Logger     *slog.Logger
}

// NewTrigger создаёт Trigger.
func NewTrigger(cfg TriggerConfig) *Trigger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		store:      cfg.Store,
		sender:     cfg.Sender,
		mergeQueue: cfg.MergeQueue,
		workers:    cfg.Workers.Names(),
		logger:     logger,
	}
}

// TryTrigger пытается перевести запрос в MERGING и поставить слияние в очередь.
//
// Возвращает true, если эта попытка выиграла. Проигрыш (условие не выполнено)
// — штатный исход и не ошибка. Если отправка не удалась, статус
// откатывается в PENDING и возвращается ошибка: сообщение воркера
// будет доставлено повторно и попытка повторится.
func (t *Trigger) TryTrigger(ctx context.Context, requestID string) (bool, error) {
	logger := telemetry.WithRequestID(t.logger, requestID)

	if len(t.workers) == 0 {
		logger.Warn("no workers configured, skipping merge trigger")
		telemetry.TriggerAttempts.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return false, nil
	}

	err := t.store.Update(ctx, requestID,
		repo.Update{FinalStatus: domain.FinalStatusMerging},
		repo.Condition{FinalStatus: domain.FinalStatusPending, WorkersDone: t.workers},
	)
	if errors.Is(err, repo.ErrConditionFailed) {
		logger.Debug("merge trigger condition not met")
		telemetry.TriggerAttempts.WithLabelValues(telemetry.OutcomeLost).Inc()
		return false, nil
	}
	if err != nil {
		telemetry.TriggerAttempts.WithLabelValues(telemetry.OutcomeError).Inc()
		return false, fmt.Errorf("transition to merging: %w", err)
	}

	if err := t.Enqueue(ctx, requestID); err != nil {
		t.revert(ctx, logger, requestID)
		telemetry.TriggerAttempts.WithLabelValues(telemetry.OutcomeReverted).Inc()
		return false, err
	}

	logger.Info("merge triggered")
	telemetry.TriggerAttempts.WithLabelValues(telemetry.OutcomeWon).Inc()
	return true, nil
}

// Enqueue отправляет merge-trigger без изменения статуса.
// Используется sweeper'ом для зависших в MERGING запросов.
func (t *Trigger) Enqueue(ctx context.Context, requestID string) error {
	body, err := json.Marshal(domain.MergeTrigger{RequestID: requestID})
	if err != nil {
		return fmt.Errorf("marshal merge trigger: %w", err)
	}
	if _, err := t.sender.Send(ctx, t.mergeQueue, body); err != nil {
		return fmt.Errorf("enqueue merge trigger: %w", err)
	}
	return nil
}

// revert откатывает MERGING → PENDING после неудачной отправки.
func (t *Trigger) revert(ctx context.Context, logger *slog.Logger, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()

	err := t.store.Update(ctx, requestID,
		repo.Update{FinalStatus: domain.FinalStatusPending},
		repo.Condition{FinalStatus: domain.FinalStatusMerging},
	)
	switch {
	case err == nil:
		logger.Warn("merge trigger enqueue failed, status reverted to PENDING")
	case errors.Is(err, repo.ErrConditionFailed):
		logger.Warn("merge trigger revert skipped, status already changed")
	default:
		// Запрос останется в MERGING; его подхватит sweeper.
		logger.Error("failed to revert merging status", "error", err)
	}
}
