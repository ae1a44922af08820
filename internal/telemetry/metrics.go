package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки, используемые как значение label "outcome".
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeInvalid  = "invalid"
	OutcomeSkipped  = "skipped"
	OutcomeWon      = "won"
	OutcomeLost     = "lost"
	OutcomeReverted = "reverted"
)

var (
	// Dispatches — принятые и отклонённые запросы dispatch.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gather",
		Name:      "dispatches_total",
		Help:      "Dispatch attempts by outcome.",
	}, []string{"outcome"})

	// WorkerMessages — обработанные воркерами сообщения.
	WorkerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gather",
		Name:      "worker_messages_total",
		Help:      "Worker messages by worker and outcome.",
	}, []string{"worker", "outcome"})

	// TriggerAttempts — попытки перехода PENDING → MERGING.
	TriggerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gather",
		Name:      "merge_trigger_attempts_total",
		Help:      "Merge-trigger transition attempts by outcome.",
	}, []string{"outcome"})

	// Merges — обработанные merge-trigger сообщения.
	Merges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gather",
		Name:      "merges_total",
		Help:      "Merge coordinator results by outcome.",
	}, []string{"outcome"})

	// PollErrors — ошибки опроса очередей.
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gather",
		Name:      "poll_errors_total",
		Help:      "Queue poll failures by loop.",
	}, []string{"loop"})

	// StuckRequests — запросы, найденные sweeper'ом без прогресса.
	StuckRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gather",
		Name:      "stuck_requests",
		Help:      "Pending requests with unfinished workers older than the stuck threshold.",
	})

	// ProcessingDuration — длительность обработки одного сообщения.
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gather",
		Name:      "processing_duration_seconds",
		Help:      "Time spent handling a single message.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"loop"})
)
