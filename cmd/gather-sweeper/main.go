// Gather Sweeper — периодически подбирает зависшие запросы.
//
// Запускается по cron-расписанию (SWEEP_CRON). Из нескольких
// экземпляров действует только держатель advisory lock в Postgres.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Gather/internal/config"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/orchestrator"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/sweeper"
	"github.com/shaiso/Gather/internal/telemetry"
)

const sweepLockKey int64 = 424242

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting gather-sweeper", "schedule", cfg.SweepCron, "stuck_after", cfg.StuckAfter)

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

	workers := cfg.WorkerSet()
	s, err := sweeper.New(sweeper.Config{
		Store: store,
		Trigger: orchestrator.NewTrigger(orchestrator.TriggerConfig{
			Store:      store,
			Sender:     mq.NewPublisher(mqConn, logger),
			MergeQueue: cfg.MergeQueue,
			Workers:    workers,
			Logger:     logger,
		}),
		Locker:     repo.NewAdvisoryLock(pool, sweepLockKey),
		Workers:    workers,
		Schedule:   cfg.SweepCron,
		StuckAfter: cfg.StuckAfter,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.SweeperPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	s.Stop()
	logger.Info("gather-sweeper stopped")
}
