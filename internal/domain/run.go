package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerKind — источник, создавший run.
type TriggerKind string

const (
	// TriggerSchedule — run создан планировщиком для слота расписания.
	TriggerSchedule TriggerKind = "schedule"

	// TriggerManual — run запущен вручную (API, CLI, очередь runs.trigger).
	TriggerManual TriggerKind = "manual"
)

// Run — один запуск pipeline для конкретного слота расписания.
//
// Run создаётся когда:
// - Scheduler срабатывает для очередного слота
// - Оператор запускает pipeline вручную
//
// Изменяется только Coordinator'ом. После выхода из running — терминален.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя pipeline (например, "stock_market").
	Pipeline string `json:"pipeline"`

	// ScheduledAt — логический слот расписания, для которого выполняется run.
	ScheduledAt time.Time `json:"scheduled_at"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Trigger — кто создал run.
	Trigger TriggerKind `json:"trigger"`

	// Outcomes — итоги stages в порядке их следования в pipeline.
	Outcomes []StageOutcome `json:"outcomes,omitempty"`

	// StartedAt — время перехода в running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с failed.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — "{pipeline}@{slot}", один активный run на слот.
	IdempotencyKey string `json:"idempotency_key"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе pending.
func NewRun(pipeline string, slot time.Time, trigger TriggerKind) *Run {
	slot = slot.UTC()
	return &Run{
		ID:             uuid.New(),
		Pipeline:       pipeline,
		ScheduledAt:    slot,
		Status:         RunStatusPending,
		Trigger:        trigger,
		IdempotencyKey: IdempotencyKey(pipeline, slot),
		CreatedAt:      time.Now(),
	}
}

// IdempotencyKey формирует ключ идемпотентности run для слота.
func IdempotencyKey(pipeline string, slot time.Time) string {
	return fmt.Sprintf("%s@%s", pipeline, slot.UTC().Format(time.RFC3339))
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус running.
func (r *Run) MarkRunning() error {
	if err := r.transition(RunStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	r.StartedAt = &now
	return nil
}

// MarkSucceeded переводит run в статус succeeded.
func (r *Run) MarkSucceeded() error {
	if err := r.transition(RunStatusSucceeded); err != nil {
		return err
	}
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

// MarkFailed переводит run в статус failed с ошибкой.
func (r *Run) MarkFailed(errMsg string) error {
	if err := r.transition(RunStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	r.FinishedAt = &now
	r.Error = errMsg
	return nil
}

// AddOutcome добавляет итог stage.
func (r *Run) AddOutcome(o StageOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Outcome возвращает итог stage по имени.
func (r *Run) Outcome(stage string) (StageOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// FailedStage возвращает имя упавшего stage или пустую строку.
func (r *Run) FailedStage() string {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			return o.Stage
		}
	}
	return ""
}

func (r *Run) transition(next RunStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}
