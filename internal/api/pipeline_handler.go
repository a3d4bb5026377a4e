package api

import (
	"net/http"
)

// GetPipeline возвращает описание pipeline.
// GET /api/v1/pipeline
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	Success(w, PipelineFromEngine(h.runner.Pipeline()))
}

// Health — проверка живости.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Pipeline:   h.runner.Pipeline().Name,
		ActiveRuns: len(h.runner.ActiveRuns()),
	})
}
