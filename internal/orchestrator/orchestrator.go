package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/domain"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize    = 5
	defaultPollWait     = 20 * time.Second
	defaultIdleSleep    = 40 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// Merger — координатор слияния.
//
// Читает merge-trigger сообщения, собирает результаты всех воркеров
// в один документ и финализирует запись (MERGING → DONE).
// Повторная доставка того же trigger безопасна: DONE-запросы
// подтверждаются без повторного слияния.
type Merger struct {
	store        repo.Store
	blobs        blob.Store
	receiver     mq.Receiver
	queue        string
	workers      domain.WorkerSet
	mergedBucket string

	batchSize    int
	pollWait     time.Duration
	idleSleep    time.Duration
	errorBackoff time.Duration
	now          func() time.Time

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Merger.
type Config struct {
	Store    repo.Store
	Blobs    blob.Store
	Receiver mq.Receiver

	// Queue — очередь merge-trigger сообщений.
	Queue string

	// Workers — воркеры, чьи результаты входят в документ.
	Workers domain.WorkerSet

	// MergedBucket — bucket итоговых документов.
	MergedBucket string

	BatchSize    int           // сообщений за один опрос (default: 5)
	PollWait     time.Duration // ожидание в опросе (default: 20s)
	IdleSleep    time.Duration // пауза после пустого опроса (default: 40s)
	ErrorBackoff time.Duration // пауза после ошибки опроса (default: 5s)

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт новый Merger.
func New(cfg Config) *Merger {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	pollWait := cfg.PollWait
	if pollWait <= 0 {
		pollWait = defaultPollWait
	}
	idleSleep := cfg.IdleSleep
	if idleSleep <= 0 {
		idleSleep = defaultIdleSleep
	}
	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = defaultErrorBackoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Merger{
		store:        cfg.Store,
		blobs:        cfg.Blobs,
		receiver:     cfg.Receiver,
		queue:        cfg.Queue,
		workers:      cfg.Workers,
		mergedBucket: cfg.MergedBucket,
		batchSize:    batchSize,
		pollWait:     pollWait,
		idleSleep:    idleSleep,
		errorBackoff: errorBackoff,
		now:          now,
		logger:       logger,
	}
}

// Start запускает цикл опроса очереди слияния.
func (m *Merger) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel

	m.logger.Info("starting merger",
		"queue", m.queue,
		"workers", m.workers.Names(),
		"batch_size", m.batchSize,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollLoop(ctx)
	}()

	m.logger.Info("merger started")
	return nil
}

// Stop останавливает Merger и ждёт завершения текущей пачки.
func (m *Merger) Stop() {
	m.stoppedMu.Lock()
	m.stopped = true
	m.stoppedMu.Unlock()

	m.logger.Info("stopping merger...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	m.wg.Wait()

	m.logger.Info("merger stopped")
}

// IsStopped проверяет, остановлен ли Merger.
func (m *Merger) IsStopped() bool {
	m.stoppedMu.RLock()
	defer m.stoppedMu.RUnlock()
	return m.stopped
}

// pollLoop — основной цикл: опрос, обработка, пауза.
func (m *Merger) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := m.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("merge queue poll failed", "queue", m.queue, "error", err)
			telemetry.PollErrors.WithLabelValues("merger").Inc()
			sleep(ctx, m.errorBackoff)
			continue
		}
		if n == 0 {
			sleep(ctx, m.idleSleep)
		}
	}
}

// PollOnce получает одну пачку сообщений и обрабатывает каждое.
// Возвращает число полученных сообщений.
func (m *Merger) PollOnce(ctx context.Context) (int, error) {
	deliveries, err := m.receiver.Receive(ctx, m.queue, m.batchSize, m.pollWait)
	if err != nil {
		return 0, err
	}

	// Начатую пачку доводим до конца даже при остановке.
	handleCtx := context.WithoutCancel(ctx)
	for _, d := range deliveries {
		m.handleDelivery(handleCtx, d)
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
