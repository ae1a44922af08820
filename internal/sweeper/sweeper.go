package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// Default configuration values.
const (
	DefaultSchedule   = "*/1 * * * *"
	defaultStuckAfter = 15 * time.Minute
	defaultBatchSize  = 100
)

// Trigger — переход в MERGING и отправка merge-trigger.
// Реализуется orchestrator.Trigger.
type Trigger interface {
	TryTrigger(ctx context.Context, requestID string) (bool, error)
	Enqueue(ctx context.Context, requestID string) error
}

// Locker — блокировка лидера. Реализуется repo.AdvisoryLock.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Report — итог одного прохода.
type Report struct {
	Requeued  int // MERGING: trigger отправлен повторно
	Triggered int // PENDING: переход в MERGING выполнен
	Stuck     int // PENDING: воркеры не завершены
	Failed    int // ошибки по отдельным запросам
}

// Sweeper — периодический поиск зависших запросов.
type Sweeper struct {
	store      repo.Store
	trigger    Trigger
	locker     Locker
	workers    []string
	schedule   cron.Schedule
	stuckAfter time.Duration
	batchSize  int
	now        func() time.Time

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Sweeper.
type Config struct {
	Store   repo.Store
	Trigger Trigger

	// Locker (опционально) — выбор лидера между экземплярами.
	Locker Locker

	// Workers — воркеры, завершение которых проверяется для PENDING.
	Workers domain.WorkerSet

	Schedule   string        // cron-выражение (default: каждую минуту)
	StuckAfter time.Duration // порог отсутствия прогресса (default: 15m)
	BatchSize  int           // записей каждого статуса за проход (default: 100)

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт Sweeper. Ошибка — некорректное расписание.
func New(cfg Config) (*Sweeper, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	stuckAfter := cfg.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		store:      cfg.Store,
		trigger:    cfg.Trigger,
		locker:     cfg.Locker,
		workers:    cfg.Workers.Names(),
		schedule:   schedule,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
		now:        now,
		logger:     logger,
	}, nil
}

// Start запускает цикл по расписанию.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting sweeper",
		"stuck_after", s.stuckAfter,
		"batch_size", s.batchSize,
		"next_run", NextRun(s.schedule, s.now()),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	return nil
}

// Stop останавливает Sweeper и отпускает блокировку лидера.
func (s *Sweeper) Stop() {
	s.stoppedMu.Lock()
	s.stopped = true
	s.stoppedMu.Unlock()

	s.logger.Info("stopping sweeper...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	if s.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Unlock(ctx); err != nil {
			s.logger.Warn("failed to release leader lock", "error", err)
		}
	}

	s.logger.Info("sweeper stopped")
}

// IsStopped проверяет, остановлен ли Sweeper.
func (s *Sweeper) IsStopped() bool {
	s.stoppedMu.RLock()
	defer s.stoppedMu.RUnlock()
	return s.stopped
}

func (s *Sweeper) loop(ctx context.Context) {
	for {
		wait := time.Until(NextRun(s.schedule, time.Now()))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweeper tick failed", "error", err)
		}
	}
}

// Tick выполняет проход, если этот экземпляр — лидер.
func (s *Sweeper) Tick(ctx context.Context) error {
	if s.locker != nil {
		leader, err := s.locker.TryLock(ctx)
		if err != nil {
			return fmt.Errorf("leader lock: %w", err)
		}
		if !leader {
			s.logger.Debug("not a leader, skipping sweep")
			return nil
		}
	}

	report, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if report != (Report{}) {
		s.logger.Info("sweep completed",
			"requeued", report.Requeued,
			"triggered", report.Triggered,
			"stuck", report.Stuck,
			"failed", report.Failed,
		)
	}
	return nil
}

// Sweep выполняет один проход по зависшим запросам.
//
// Ошибка одного запроса не прерывает обработку остальных и
// учитывается в Report.Failed.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	before := s.now().Add(-s.stuckAfter)

	// 1. Зависшие в MERGING
	merging, err := s.store.ListStale(ctx, repo.StaleFilter{
		Status: domain.FinalStatusMerging,
		Before: before,
		Limit:  s.batchSize,
	})
	if err != nil {
		return report, fmt.Errorf("list merging: %w", err)
	}
	for i := range merging {
		if s.requeue(ctx, merging[i].RequestID) {
			report.Requeued++
		} else {
			report.Failed++
		}
	}

	// 2. PENDING, где все воркеры DONE: trigger потерян
	if len(s.workers) > 0 {
		ready, err := s.store.ListStale(ctx, repo.StaleFilter{
			Status:      domain.FinalStatusPending,
			Before:      before,
			WorkersDone: s.workers,
			Limit:       s.batchSize,
		})
		if err != nil {
			return report, fmt.Errorf("list pending: %w", err)
		}
		for i := range ready {
			id := ready[i].RequestID
			won, err := s.trigger.TryTrigger(ctx, id)
			if err != nil {
				telemetry.WithRequestID(s.logger, id).Error("failed to trigger merge for stuck request", "error", err)
				report.Failed++
				continue
			}
			if won {
				telemetry.WithRequestID(s.logger, id).Warn("triggered merge for stuck request")
				report.Triggered++
			}
		}
	}

	// 3. PENDING с незавершёнными воркерами: только учёт
	stuck := repo.StaleFilter{
		Status:      domain.FinalStatusPending,
		Before:      before,
		WorkersDone: s.workers,
		Unfinished:  true,
		Limit:       s.batchSize,
	}
	if len(s.workers) == 0 {
		// Без воркеров запрос не сольётся никогда.
		stuck.WorkersDone, stuck.Unfinished = nil, false
	}
	count, err := s.store.CountStale(ctx, stuck)
	if err != nil {
		return report, fmt.Errorf("count pending: %w", err)
	}
	report.Stuck = count
	telemetry.StuckRequests.Set(float64(count))

	if count > 0 {
		sample, err := s.store.ListStale(ctx, stuck)
		if err != nil {
			return report, fmt.Errorf("list pending: %w", err)
		}
		for i := range sample {
			rec := &sample[i]
			telemetry.WithRequestID(s.logger, rec.RequestID).Warn("request has unfinished workers",
				"unfinished", rec.Unfinished(s.workers),
				"updated_at", rec.UpdatedAt,
			)
		}
	}

	return report, nil
}

// requeue повторно отправляет merge-trigger и сдвигает updated_at,
// чтобы следующая попытка была не раньше чем через stuckAfter.
func (s *Sweeper) requeue(ctx context.Context, requestID string) bool {
	logger := telemetry.WithRequestID(s.logger, requestID)

	if err := s.trigger.Enqueue(ctx, requestID); err != nil {
		logger.Error("failed to re-enqueue merge trigger", "error", err)
		return false
	}
	logger.Warn("re-enqueued merge trigger for stuck request")

	err := s.store.Update(ctx, requestID, repo.Update{},
		repo.Condition{FinalStatus: domain.FinalStatusMerging})
	if err != nil && !errors.Is(err, repo.ErrConditionFailed) {
		logger.Warn("failed to touch stuck request", "error", err)
	}
	return true
}
