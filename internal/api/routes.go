package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)
	submit := Chain(chain, RateLimit(h.limiter))

	mux.Handle("POST /api/v1/scan", submit(http.HandlerFunc(h.Scan)))
	mux.Handle("GET /api/v1/status/{requestId}", chain(http.HandlerFunc(h.GetStatus)))
	mux.Handle("GET /api/v1/findings/{requestId}", chain(http.HandlerFunc(h.GetFindings)))

	// Всё остальное, включая другие методы на известных путях, — 404.
	mux.Handle("/", chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFound(w, "route not found")
	})))
}
