package domain

import "errors"

// ErrInvalidTransition — недопустимый переход статуса run.
var ErrInvalidTransition = errors.New("invalid run status transition")

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	pending → running → succeeded
//	                  ↘ failed
//
// succeeded и failed — терминальные, повторный вход невозможен.
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — run в процессе выполнения (sensor или stages).
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded — последний stage отдал выходную ссылку.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed — timeout sensor'а, фатальная ошибка stage или исчерпаны retry.
	RunStatusFailed RunStatus = "failed"
)

// IsValid проверяет, что статус известен.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход в статус next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next == RunStatusSucceeded || next == RunStatusFailed
	default:
		return false
	}
}

// ParseRunStatus парсит строку в RunStatus.
// Возвращает false, если строка не является известным статусом.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
		return RunStatus(s), true
	default:
		return "", false
	}
}

// OutcomeStatus — итоговый статус stage внутри run.
type OutcomeStatus string

const (
	// OutcomeSucceeded — stage вернул выходную ссылку.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeFailed — stage упал (фатально или после всех попыток).
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomeSkipped — stage не запускался, потому что run уже упал.
	OutcomeSkipped OutcomeStatus = "skipped"
)
