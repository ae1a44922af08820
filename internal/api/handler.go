package api

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/shaiso/Gather/internal/dispatch"
	"github.com/shaiso/Gather/internal/idempotency"
	"github.com/shaiso/Gather/internal/query"
)

// Dispatcher принимает новый запрос. Реализуется dispatch.Service.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) (*dispatch.Result, error)
}

// Querier читает состояние и результаты. Реализуется query.Service.
type Querier interface {
	Status(ctx context.Context, requestID string) (*query.StatusResult, error)
	Findings(ctx context.Context, q query.FindingsQuery) (*query.FindingsResult, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dispatcher Dispatcher
	querier    Querier
	guard      *idempotency.Guard
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Dispatcher Dispatcher
	Querier    Querier

	// Guard (опционально) — проверка Idempotency-Key. Без него заголовок игнорируется.
	Guard *idempotency.Guard

	// RateLimit — запросов в секунду на submit; 0 — без ограничения.
	RateLimit float64
	RateBurst int

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Handler{
		dispatcher: cfg.Dispatcher,
		querier:    cfg.Querier,
		guard:      cfg.Guard,
		limiter:    limiter,
		logger:     logger,
	}
}
