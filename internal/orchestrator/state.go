package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
)

// Фазы активного run.
const (
	PhaseSensor = "sensor"
	PhaseQueued = "queued"
	PhaseStages = "stages"
)

// RunState — состояние активного run в памяти.
//
// Создаётся при регистрации run в координаторе и удаляется после
// перехода в терминальный статус. Run изменяется только через методы
// RunState, чтобы API мог читать снимки параллельно с выполнением.
type RunState struct {
	run    *domain.Run
	total  int
	cancel context.CancelFunc

	phase     string
	current   string
	attempts  int
	cancelled bool

	mu sync.RWMutex
}

// NewRunState создаёт RunState для run с total stages.
func NewRunState(run *domain.Run, total int, cancel context.CancelFunc) *RunState {
	return &RunState{
		run:    run,
		total:  total,
		cancel: cancel,
	}
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.run.ID
}

// SlotKey возвращает ключ идемпотентности слота.
func (s *RunState) SlotKey() string {
	return s.run.IdempotencyKey
}

// Snapshot возвращает копию run.
func (s *RunState) Snapshot() domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := *s.run
	snap.Outcomes = append([]domain.StageOutcome(nil), s.run.Outcomes...)
	return snap
}

// MarkRunning переводит run в running и начинает фазу sensor.
func (s *RunState) MarkRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.run.MarkRunning(); err != nil {
		return err
	}
	s.phase = PhaseSensor
	return nil
}

// Queue отмечает ожидание очереди stages после sensor.
func (s *RunState) Queue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseQueued
}

// StartStage отмечает начало stage.
func (s *RunState) StartStage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseStages
	s.current = name
}

// AddOutcome добавляет итог stage.
func (s *RunState) AddOutcome(o domain.StageOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.AddOutcome(o)
	s.attempts += o.Attempts
	s.current = ""
}

// Finish переводит run в терминальный статус. errMsg пустой — succeeded.
func (s *RunState) Finish(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = ""
	if errMsg == "" {
		return s.run.MarkSucceeded()
	}
	return s.run.MarkFailed(errMsg)
}

// Cancel запрашивает кооперативную отмену run.
func (s *RunState) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// IsCancelled возвращает true, если отмена была запрошена.
func (s *RunState) IsCancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{
		RunID:        s.run.ID,
		Pipeline:     s.run.Pipeline,
		ScheduledAt:  s.run.ScheduledAt,
		Status:       s.run.Status,
		Phase:        s.phase,
		CurrentStage: s.current,
		TotalStages:  s.total,
		Attempts:     s.attempts,
		Cancelled:    s.cancelled,
	}
	for _, o := range s.run.Outcomes {
		switch o.Status {
		case domain.OutcomeSucceeded:
			stats.CompletedStages++
		case domain.OutcomeFailed:
			stats.FailedStages++
		case domain.OutcomeSkipped:
			stats.SkippedStages++
		}
	}
	if s.run.StartedAt != nil {
		stats.Elapsed = time.Since(*s.run.StartedAt)
	}
	return stats
}

// RunStats — статистика выполнения активного run.
type RunStats struct {
	RunID           uuid.UUID        `json:"run_id"`
	Pipeline        string           `json:"pipeline"`
	ScheduledAt     time.Time        `json:"scheduled_at"`
	Status          domain.RunStatus `json:"status"`
	Phase           string           `json:"phase,omitempty"`
	CurrentStage    string           `json:"current_stage,omitempty"`
	TotalStages     int              `json:"total_stages"`
	CompletedStages int              `json:"completed_stages"`
	FailedStages    int              `json:"failed_stages"`
	SkippedStages   int              `json:"skipped_stages"`
	Attempts        int              `json:"attempts"`
	Cancelled       bool             `json:"cancelled"`
	Elapsed         time.Duration    `json:"elapsed_ns"`
}
