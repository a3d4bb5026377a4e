package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/orchestrator"
	"github.com/shaiso/Stockpipe/internal/repo"
)

// Runner — управление runs (реализуется orchestrator.Coordinator).
type Runner interface {
	Pipeline() *engine.Pipeline
	Submit(slot time.Time, trigger domain.TriggerKind) (domain.Run, error)
	Cancel(runID uuid.UUID) bool
	ActiveRuns() []domain.Run
	Stats(runID uuid.UUID) (orchestrator.RunStats, bool)
}

// RunHistory — история завершённых runs (реализуется repo.RunRepo).
type RunHistory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	Count(ctx context.Context, filter repo.RunFilter) (int, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runner  Runner
	history RunHistory
	logger  *slog.Logger
	now     func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runner Runner

	// History — опционально. Без неё доступны только активные runs.
	History RunHistory

	Logger *slog.Logger
	Now    func() time.Time
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		runner:  cfg.Runner,
		history: cfg.History,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}
