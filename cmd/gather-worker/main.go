// Gather Worker — обрабатывает сообщения одного воркера.
//
// Worker:
//   - Получает сообщения из своей очереди RabbitMQ
//   - Вызывает сервис анализа (WORKER_ENDPOINT) или нормализует payload локально
//   - Сохраняет результат в MongoDB и отмечает себя DONE в Postgres
//   - Последний завершившийся воркер ставит запрос в очередь слияния
//
// Один процесс обслуживает один воркер (WORKER_NAME), процессы
// масштабируются горизонтально.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/config"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/orchestrator"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
	"github.com/shaiso/Gather/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	workers := cfg.WorkerSet()
	self, ok := workers.Lookup(cfg.WorkerName)
	if !ok {
		logger.Error("WORKER_NAME is not one of EXPECTED_WORKERS", "worker", cfg.WorkerName, "workers", cfg.Workers)
		os.Exit(1)
	}
	logger = telemetry.WithWorker(logger, self.Name)
	logger.Info("starting gather-worker", "queue", self.Queue, "bucket", self.Bucket)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")
	store := repo.NewOrchestrationRepo(pool)

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	topology := mq.Topology{Queues: cfg.Queues(), DeliveryLimit: cfg.DeliveryLimit}
	if err := topology.Setup(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	mqConn.OnReconnect(func(c *mq.Connection) error {
		return topology.Setup(context.Background(), c)
	})

	// MongoDB
	mongoClient, err := blob.NewMongoClient(ctx, cfg.MongoURI)
	if err != nil {
		logger.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())

	var processor worker.Processor
	if cfg.WorkerEndpoint != "" {
		processor = &worker.HTTPProcessor{Endpoint: cfg.WorkerEndpoint, Timeout: cfg.WorkerEndpointTimeout}
		logger.Info("using analysis endpoint", "endpoint", cfg.WorkerEndpoint)
	} else {
		processor = worker.DelayProcessor{Min: cfg.WorkerDelayMin, Max: cfg.WorkerDelayMax}
	}

	w := worker.New(worker.Config{
		Self:     self,
		Store:    store,
		Blobs:    blob.NewMongoStore(mongoClient.Database(cfg.MongoDatabase)),
		Receiver: mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{}),
		Trigger: orchestrator.NewTrigger(orchestrator.TriggerConfig{
			Store:      store,
			Sender:     mq.NewPublisher(mqConn, logger),
			MergeQueue: cfg.MergeQueue,
			Workers:    workers,
			Logger:     logger,
		}),
		Processor:    processor,
		BatchSize:    cfg.BatchSize,
		PollWait:     cfg.PollWait,
		ErrorBackoff: cfg.ErrorBackoff,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() || !mqConn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("not ready"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.WorkerPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("gather-worker stopped")
}
