package orchestrator

import "errors"

// Ошибки координатора.
var (
	// ErrRunNotPending — run не в статусе pending.
	ErrRunNotPending = errors.New("run is not pending")

	// ErrRunAlreadyActive — для слота уже выполняется run.
	ErrRunAlreadyActive = errors.New("run for this slot is already active")

	// ErrCoordinatorStopped — координатор остановлен.
	ErrCoordinatorStopped = errors.New("coordinator stopped")

	// ErrRunNotActive — run не найден среди активных.
	ErrRunNotActive = errors.New("run is not active")

	// ErrMissingStage — для узла pipeline нет реализации stage.
	ErrMissingStage = errors.New("no stage implementation for node")

	// ErrEmptyReference — stage завершился успешно, но не вернул ссылку.
	ErrEmptyReference = errors.New("stage produced empty reference")

	// ErrNotifierPanic — Notifier.Send запаниковал.
	ErrNotifierPanic = errors.New("notifier panicked")

	// ErrInvalidConfig — в Config не хватает обязательных зависимостей.
	ErrInvalidConfig = errors.New("invalid coordinator config")
)
