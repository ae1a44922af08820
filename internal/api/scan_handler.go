package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Gather/internal/dispatch"
	"github.com/shaiso/Gather/internal/idempotency"
	"github.com/shaiso/Gather/internal/telemetry"
)

const (
	// IdempotencyKeyHeader — заголовок ключа идемпотентности.
	IdempotencyKeyHeader = "Idempotency-Key"

	// ReplayedHeader выставляется, когда ответ взят из сохранённого.
	ReplayedHeader = "Idempotent-Replayed"

	maxBodySize = 1 << 20

	// submitTimeout ограничивает dispatch и учёт ключа идемпотентности.
	// Разрыв соединения клиентом их не отменяет.
	submitTimeout = 30 * time.Second
)

// Scan принимает новый запрос и раздаёт его воркерам.
// POST /api/v1/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			BadRequest(w, "request body too large")
			return
		}
		BadRequest(w, "failed to read request body")
		return
	}

	// Проверяем payload до ключа идемпотентности: некорректный запрос ключ не занимает.
	payload, err := dispatch.ResolvePayload(body)
	if HandleError(w, logger, err) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), submitTimeout)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || h.guard == nil {
		h.dispatch(ctx, w, logger, body)
		return
	}

	hash, err := idempotency.HashPayload(payload)
	if HandleError(w, logger, err) {
		return
	}

	stored, err := h.guard.Begin(ctx, key, hash)
	if HandleError(w, logger, err) {
		return
	}
	if stored != nil {
		w.Header().Set(ReplayedHeader, "true")
		RawJSON(w, http.StatusAccepted, stored)
		return
	}

	resp, ok := h.dispatch(ctx, w, logger, body)
	if !ok {
		if err := h.guard.Abort(ctx, key); err != nil {
			logger.Warn("failed to release idempotency key", "key", key, "error", err)
		}
		return
	}
	if err := h.guard.Finish(ctx, key, hash, resp); err != nil {
		logger.Warn("failed to store idempotent response", "key", key, "error", err)
	}
}

// dispatch выполняет dispatch и пишет ответ 202.
// Возвращает тело ответа и признак успеха.
func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, body []byte) (json.RawMessage, bool) {
	res, err := h.dispatcher.Dispatch(ctx, body)
	if HandleError(w, logger, err) {
		return nil, false
	}

	resp, err := json.Marshal(res)
	if HandleError(w, logger, err) {
		return nil, false
	}

	RawJSON(w, http.StatusAccepted, resp)
	return resp, true
}
