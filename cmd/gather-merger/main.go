// Gather Merger — собирает результаты воркеров в итоговый документ.
//
// Merger читает очередь слияния, скачивает результаты всех воркеров
// из MongoDB, пишет итоговый документ и переводит запрос в DONE.
// Повторная доставка одного и того же requestId безопасна.
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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting gather-merger", "queue", cfg.MergeQueue)

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

	merger := orchestrator.New(orchestrator.Config{
		Store:        repo.NewOrchestrationRepo(pool),
		Blobs:        blob.NewMongoStore(mongoClient.Database(cfg.MongoDatabase)),
		Receiver:     mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{}),
		Queue:        cfg.MergeQueue,
		Workers:      cfg.WorkerSet(),
		MergedBucket: cfg.MergedBucket,
		BatchSize:    cfg.MergeBatchSize,
		PollWait:     cfg.PollWait,
		IdleSleep:    cfg.MergeIdleSleep,
		ErrorBackoff: cfg.ErrorBackoff,
		Logger:       logger,
	})

	if err := merger.Start(ctx); err != nil {
		logger.Error("failed to start merger", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if merger.IsStopped() || !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.MergerPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	merger.Stop()
	logger.Info("gather-merger stopped")
}
