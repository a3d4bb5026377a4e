package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/orchestrator"
)

// Run DTOs

// TriggerRunRequest — запрос на ручной запуск pipeline.
type TriggerRunRequest struct {
	// ScheduledAt — логический слот. Пустой — текущий момент.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// OutcomeResponse — итог stage.
type OutcomeResponse struct {
	Stage      string     `json:"stage"`
	Ordinal    int        `json:"ordinal"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID             uuid.UUID         `json:"id"`
	Pipeline       string            `json:"pipeline"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	Status         string            `json:"status"`
	Trigger        string            `json:"trigger"`
	Outcomes       []OutcomeResponse `json:"outcomes,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	Error          string            `json:"error,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at"`

	// Active — run выполняется в этом процессе.
	Active bool                   `json:"active"`
	Stats  *orchestrator.RunStats `json:"stats,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		Pipeline:       r.Pipeline,
		ScheduledAt:    r.ScheduledAt,
		Status:         string(r.Status),
		Trigger:        string(r.Trigger),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Error:          r.Error,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
	for _, o := range r.Outcomes {
		resp.Outcomes = append(resp.Outcomes, OutcomeResponse{
			Stage:      o.Stage,
			Ordinal:    o.Ordinal,
			Status:     string(o.Status),
			Attempts:   o.Attempts,
			Output:     string(o.Output),
			Error:      o.Error,
			StartedAt:  o.StartedAt,
			FinishedAt: o.FinishedAt,
		})
	}
	return resp
}

// CancelRunResponse — ответ на запрос отмены.
type CancelRunResponse struct {
	ID        uuid.UUID `json:"id"`
	Cancelled bool      `json:"cancelled"`
}

// Pipeline DTOs

// StageResponse — описание stage.
type StageResponse struct {
	Name         string              `json:"name"`
	Ordinal      int                 `json:"ordinal"`
	Type         string              `json:"type"`
	Upstream     string              `json:"upstream,omitempty"`
	MaxAttempts  int                 `json:"max_attempts"`
	Retry        *domain.RetryPolicy `json:"retry,omitempty"`
	TimeoutSec   int                 `json:"timeout_sec,omitempty"`
	TimeoutFatal bool                `json:"timeout_fatal,omitempty"`
}

// PipelineResponse — описание pipeline.
type PipelineResponse struct {
	Name             string          `json:"name"`
	Schedule         string          `json:"schedule,omitempty"`
	Timezone         string          `json:"timezone,omitempty"`
	Catchup          bool            `json:"catchup"`
	SensorIntervalMs int64           `json:"sensor_interval_ms"`
	SensorTimeoutMs  int64           `json:"sensor_timeout_ms"`
	Stages           []StageResponse `json:"stages"`
}

// PipelineFromEngine конвертирует engine.Pipeline в PipelineResponse.
func PipelineFromEngine(p *engine.Pipeline) PipelineResponse {
	resp := PipelineResponse{
		Name:             p.Name,
		Schedule:         p.Schedule.CronExpr,
		Timezone:         p.Schedule.Timezone,
		Catchup:          p.Schedule.Catchup,
		SensorIntervalMs: p.SensorInterval.Milliseconds(),
		SensorTimeoutMs:  p.SensorTimeout.Milliseconds(),
		Stages:           make([]StageResponse, 0, len(p.Nodes)),
	}
	for _, n := range p.Nodes {
		s := StageResponse{
			Name:         n.Name(),
			Ordinal:      n.Def.Ordinal,
			Type:         n.Def.Type,
			MaxAttempts:  n.Def.MaxAttempts(),
			Retry:        n.Def.Retry,
			TimeoutSec:   n.Def.TimeoutSec,
			TimeoutFatal: n.Def.TimeoutFatal,
		}
		if n.Upstream != nil {
			s.Upstream = n.Upstream.Name()
		}
		resp.Stages = append(resp.Stages, s)
	}
	return resp
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Pipeline   string `json:"pipeline"`
	ActiveRuns int    `json:"active_runs"`
}
