package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize    = 10
	defaultPollWait     = 20 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// MergeTrigger пытается перевести запрос в MERGING.
// Реализуется orchestrator.Trigger.
type MergeTrigger interface {
	TryTrigger(ctx context.Context, requestID string) (bool, error)
}

// Worker обрабатывает сообщения входной очереди одного воркера.
//
// Для каждого сообщения:
//   - строит результат через Processor
//   - пишет его в blob store
//   - отмечает воркера DONE в записи оркестрации
//   - пробует запустить слияние
//
// Сообщение подтверждается только после успеха всех шагов,
// иначе возвращается в очередь. Несколько экземпляров одного
// воркера могут потреблять из одной очереди.
type Worker struct {
	self      domain.Worker
	store     repo.Store
	blobs     blob.Store
	receiver  mq.Receiver
	trigger   MergeTrigger
	processor Processor

	batchSize    int
	pollWait     time.Duration
	errorBackoff time.Duration
	now          func() time.Time
	newID        func() string

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Self — имя, входная очередь и bucket этого воркера.
	Self domain.Worker

	Store    repo.Store
	Blobs    blob.Store
	Receiver mq.Receiver
	Trigger  MergeTrigger

	// Processor (опционально; если nil — DelayProcessor без паузы).
	Processor Processor

	BatchSize    int           // сообщений за один опрос (default: 10)
	PollWait     time.Duration // ожидание в опросе (default: 20s)
	ErrorBackoff time.Duration // пауза после ошибки опроса (default: 5s)

	Logger *slog.Logger
	Now    func() time.Time

	// NewID — message id для сообщений без него. По умолчанию uuid.NewString.
	NewID func() string
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	pollWait := cfg.PollWait
	if pollWait <= 0 {
		pollWait = defaultPollWait
	}
	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = defaultErrorBackoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	processor := cfg.Processor
	if processor == nil {
		processor = DelayProcessor{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Worker{
		self:         cfg.Self,
		store:        cfg.Store,
		blobs:        cfg.Blobs,
		receiver:     cfg.Receiver,
		trigger:      cfg.Trigger,
		processor:    processor,
		batchSize:    batchSize,
		pollWait:     pollWait,
		errorBackoff: errorBackoff,
		now:          now,
		newID:        newID,
		logger:       telemetry.WithWorker(logger, cfg.Self.Name),
	}
}

// Start запускает цикл опроса входной очереди.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", w.self.Queue,
		"bucket", w.self.Bucket,
		"batch_size", w.batchSize,
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
// Сообщения уже полученной пачки обрабатываются до конца.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — основной цикл. Пустой опрос сразу повторяется:
// ожидание уже заложено в PollWait.
func (w *Worker) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to poll queue", "queue", w.self.Queue, "error", err)
			telemetry.PollErrors.WithLabelValues("worker").Inc()
			sleep(ctx, w.errorBackoff)
		}
	}
}

// PollOnce получает одну пачку сообщений и обрабатывает каждое.
// Возвращает число полученных сообщений.
func (w *Worker) PollOnce(ctx context.Context) (int, error) {
	deliveries, err := w.receiver.Receive(ctx, w.self.Queue, w.batchSize, w.pollWait)
	if err != nil {
		return 0, err
	}
	if len(deliveries) > 0 {
		w.logger.Debug("received messages", "count", len(deliveries))
	}

	handleCtx := context.WithoutCancel(ctx)
	for _, d := range deliveries {
		w.handleDelivery(handleCtx, d)
	}
	return len(deliveries), nil
}

// sleep ждёт d или отмены контекста.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
