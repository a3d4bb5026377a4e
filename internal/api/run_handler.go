package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?status=...&limit=...&offset=...&active=true
//
// Без истории (DB_URL не задан) или с active=true возвращаются только
// runs, выполняющиеся в этом процессе. total — число runs по фильтру
// без учёта limit и offset.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repo.RunFilter{
		Pipeline: h.runner.Pipeline().Name,
		Status:   domain.RunStatus(q.Get("status")),
		Limit:    defaultListLimit,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		BadRequest(w, "invalid status")
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), defaultListLimit); err != nil || filter.Limit <= 0 {
		BadRequest(w, "invalid limit")
		return
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		BadRequest(w, "invalid offset")
		return
	}

	active := h.activeByID()

	if q.Get("active") == "true" || h.history == nil {
		result := make([]RunResponse, 0, len(active))
		for _, run := range h.runner.ActiveRuns() {
			if filter.Status != "" && run.Status != filter.Status {
				continue
			}
			result = append(result, h.runResponse(run, true))
		}
		List(w, result, len(result))
		return
	}

	runs, err := h.history.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	total, err := h.history.Count(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		// Активный run в истории может отставать от состояния в памяти
		if snap, ok := active[run.ID]; ok {
			result[i] = h.runResponse(snap, true)
			continue
		}
		result[i] = h.runResponse(run, false)
	}

	List(w, result, total)
}

// TriggerRun запускает pipeline вручную.
// POST /api/v1/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	slot := h.now().UTC().Truncate(time.Second)
	if req.ScheduledAt != nil {
		slot = req.ScheduledAt.UTC()
	}

	run, err := h.runner.Submit(slot, domain.TriggerManual)
	if HandleRunError(w, h.logger, err) {
		return
	}

	h.logger.Info("run triggered via api", "run_id", run.ID, "slot", slot)
	Accepted(w, h.runResponse(run, true))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if run, ok := h.activeByID()[id]; ok {
		Success(w, h.runResponse(run, true))
		return
	}

	if h.history == nil {
		NotFound(w, "run not found")
		return
	}

	run, err := h.history.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, h.runResponse(*run, false))
}

// CancelRun отменяет активный run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if h.runner.Cancel(id) {
		Accepted(w, CancelRunResponse{ID: id, Cancelled: true})
		return
	}

	if h.history == nil {
		NotFound(w, "run not found")
		return
	}

	run, err := h.history.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if run.IsFinished() {
		InvalidState(w, "run is already finished")
		return
	}

	// В истории не завершён, но в этом процессе не выполняется
	Conflict(w, "run is not active in this process")
}

func (h *Handler) activeByID() map[uuid.UUID]domain.Run {
	runs := h.runner.ActiveRuns()
	byID := make(map[uuid.UUID]domain.Run, len(runs))
	for _, run := range runs {
		byID[run.ID] = run
	}
	return byID
}

func (h *Handler) runResponse(run domain.Run, active bool) RunResponse {
	resp := RunFromDomain(run)
	resp.Active = active
	if active {
		if stats, ok := h.runner.Stats(run.ID); ok {
			resp.Stats = &stats
		}
	}
	return resp
}

// intParam парсит query параметр с значением по умолчанию.
func intParam(s string, defaultVal int) (int, error) {
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}
