package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Health))

	// Pipeline
	mux.Handle("GET /api/v1/pipeline", chain(http.HandlerFunc(h.GetPipeline)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.TriggerRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
}
