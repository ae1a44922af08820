// Gather API — HTTP-вход системы: submit, статус и результаты.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Gather/internal/api"
	"github.com/shaiso/Gather/internal/blob"
	"github.com/shaiso/Gather/internal/config"
	"github.com/shaiso/Gather/internal/dispatch"
	"github.com/shaiso/Gather/internal/idempotency"
	"github.com/shaiso/Gather/internal/mq"
	"github.com/shaiso/Gather/internal/query"
	"github.com/shaiso/Gather/internal/repo"
	"github.com/shaiso/Gather/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting gather-api", "workers", cfg.Workers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")
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
	publisher := mq.NewPublisher(mqConn, logger)

	// MongoDB
	mongoClient, err := blob.NewMongoClient(ctx, cfg.MongoURI)
	if err != nil {
		logger.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())
	blobs := blob.NewMongoStore(mongoClient.Database(cfg.MongoDatabase))

	// Redis
	redisClient := idempotency.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	guard := idempotency.NewGuard(idempotency.NewRedisStore(redisClient, cfg.IdempotencyTTL))

	workers := cfg.WorkerSet()
	handler := api.NewHandler(api.Config{
		Dispatcher: dispatch.New(dispatch.Config{
			Store:   store,
			Sender:  publisher,
			Workers: workers,
			Logger:  logger,
		}),
		Querier: query.New(query.Config{
			Store:        store,
			Blobs:        blobs,
			MergedBucket: cfg.MergedBucket,
			Logger:       logger,
		}),
		Guard:     guard,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("gather-api stopped")
}
