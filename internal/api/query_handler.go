package api

import (
	"net/http"
	"strings"

	"github.com/shaiso/Gather/internal/query"
	"github.com/shaiso/Gather/internal/telemetry"
)

// GetStatus возвращает состояние запроса.
// GET /api/v1/status/{requestId}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.PathValue("requestId"))
	if requestID == "" {
		BadRequest(w, "requestId is required")
		return
	}

	res, err := h.querier.Status(r.Context(), requestID)
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	JSON(w, http.StatusOK, res)
}

// GetFindings возвращает страницу итогового документа.
// Пока запрос не слит — 202 с состоянием воркеров.
// GET /api/v1/findings/{requestId}?key=...&page=...&size=...
func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.PathValue("requestId"))
	if requestID == "" {
		BadRequest(w, "requestId is required")
		return
	}

	q := r.URL.Query()
	res, err := h.querier.Findings(r.Context(), query.FindingsQuery{
		RequestID: requestID,
		Key:       q.Get("key"),
		Page:      query.ParsePage(q.Get("page")),
		Size:      query.ParseSize(q.Get("size")),
	})
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	if res.Pending != nil {
		JSON(w, http.StatusAccepted, res.Pending)
		return
	}
	JSON(w, http.StatusOK, res.Page)
}
