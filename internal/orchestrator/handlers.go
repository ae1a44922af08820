package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// MergeOutcome — результат обработки merge-trigger.
type MergeOutcome string

const (
	// MergeOutcomeMerged — документ собран, запись финализирована.
	MergeOutcomeMerged MergeOutcome = "merged"

	// MergeOutcomeAlreadyDone — запрос уже DONE (повторная доставка).
	MergeOutcomeAlreadyDone MergeOutcome = "already_done"

	// MergeOutcomeStale — запрос в PENDING: trigger устарел после отката.
	MergeOutcomeStale MergeOutcome = "stale"

	// MergeOutcomeUnknown — записи с таким requestId нет.
	MergeOutcomeUnknown MergeOutcome = "unknown"
)

// handleDelivery обрабатывает одно сообщение и подтверждает его
// только после успешного слияния (или подтверждённого DONE).
func (m *Merger) handleDelivery(ctx context.Context, d *mq.Delivery) {
	start := time.Now()
	defer func() {
		telemetry.ProcessingDuration.WithLabelValues("merger").Observe(time.Since(start).Seconds())
	}()

	logger := telemetry.WithMessageID(m.logger, d.ID())

	trigger, err := domain.DecodeMergeTrigger(d.Body())
	if err != nil {
		// Сообщение не разобрать никогда — сразу в DLQ.
		logger.Error("failed to decode merge trigger", "error", err, "body", string(d.Body()))
		telemetry.Merges.WithLabelValues(telemetry.OutcomeInvalid).Inc()
		_ = d.Nack(false)
		return
	}
	if strings.TrimSpace(trigger.RequestID) == "" {
		logger.Error("merge trigger without requestId, leaving unacknowledged")
		telemetry.Merges.WithLabelValues(telemetry.OutcomeInvalid).Inc()
		_ = d.Nack(true)
		return
	}

	logger = telemetry.WithRequestID(logger, trigger.RequestID)

	outcome, err := m.Merge(ctx, trigger.RequestID)
	if err != nil {
		logger.Error("merge failed", "error", err)
		telemetry.Merges.WithLabelValues(telemetry.OutcomeError).Inc()
		_ = d.Nack(true)
		return
	}

	logger.Info("merge trigger handled", "outcome", outcome)
	telemetry.Merges.WithLabelValues(string(outcome)).Inc()
	if err := d.Ack(); err != nil {
		logger.Warn("failed to ack merge trigger", "error", err)
	}
}

// Merge собирает документ для запроса и финализирует запись.
//
// Ошибка означает, что сообщение нужно доставить повторно.
func (m *Merger) Merge(ctx context.Context, requestID string) (MergeOutcome, error) {
	logger := telemetry.WithRequestID(m.logger, requestID)

	// 1. Строго согласованное чтение записи
	rec, err := m.store.Get(ctx, requestID)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Warn("merge trigger for unknown request")
		return MergeOutcomeUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("load record: %w", err)
	}

	switch rec.FinalStatus.OrPending() {
	case domain.FinalStatusDone:
		logger.Debug("request already merged", "merged_key", rec.MergedKey)
		return MergeOutcomeAlreadyDone, nil
	case domain.FinalStatusPending:
		logger.Warn("stale merge trigger, request is not merging")
		return MergeOutcomeStale, nil
	}

	// 2. Каждый воркер обязан иметь результат
	workers := m.workers.All()
	for _, w := range workers {
		if rec.Outputs[w.Name] == "" {
			return "", fmt.Errorf("%w: worker %s", ErrMissingOutput, w.Name)
		}
	}

	// 3. Параллельно читаем результаты
	outputs := make([][]byte, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		g.Go(func() error {
			data, err := m.blobs.Get(gctx, w.Bucket, rec.Outputs[w.Name])
			if err != nil {
				return fmt.Errorf("read output of %s (%s): %w", w.Name, rec.Outputs[w.Name], err)
			}
			outputs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	// 4. Пишем итоговый документ
	mergedAt := m.now().UTC()
	doc, err := BuildMergedDocument(requestID, outputs, mergedAt)
	if err != nil {
		return "", err
	}
	key := domain.MergedKey(requestID)
	if err := m.blobs.Put(ctx, m.mergedBucket, key, doc); err != nil {
		return "", fmt.Errorf("write merged document: %w", err)
	}

	// 5. Финализация MERGING → DONE
	err = m.store.Update(ctx, requestID,
		repo.Update{
			FinalStatus: domain.FinalStatusDone,
			MergedKey:   key,
			MergedAt:    &mergedAt,
		},
		repo.Condition{FinalStatus: domain.FinalStatusMerging},
	)
	if errors.Is(err, repo.ErrConditionFailed) {
		// Параллельное слияние финализировало запись раньше, а наш Put мог
		// затереть документ своим mergedAt. Переписываем документ по записи.
		if err := m.alignMergedDocument(ctx, requestID, outputs); err != nil {
			return "", err
		}
		logger.Warn("finalize skipped, request already finalized")
		return MergeOutcomeAlreadyDone, nil
	}
	if err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}

	logger.Info("request merged", "merged_key", key, "items", len(outputs))
	return MergeOutcomeMerged, nil
}

// alignMergedDocument переписывает итоговый документ с mergedAt из записи.
func (m *Merger) alignMergedDocument(ctx context.Context, requestID string, outputs [][]byte) error {
	rec, err := m.store.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("reload record: %w", err)
	}
	if rec.FinalStatus != domain.FinalStatusDone || rec.MergedAt == nil {
		return nil
	}

	doc, err := BuildMergedDocument(requestID, outputs, rec.MergedAt.UTC())
	if err != nil {
		return err
	}
	key := rec.MergedKey
	if key == "" {
		key = domain.MergedKey(requestID)
	}
	if err := m.blobs.Put(ctx, m.mergedBucket, key, doc); err != nil {
		return fmt.Errorf("rewrite merged document: %w", err)
	}
	return nil
}
