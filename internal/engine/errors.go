package engine

import "errors"

// Ошибки валидации PipelineSpec.
var (
	// ErrEmptyName — pipeline без имени.
	ErrEmptyName = errors.New("pipeline spec has no name")

	// ErrEmptyStages — pipeline не содержит stages.
	ErrEmptyStages = errors.New("pipeline spec has no stages")

	// ErrEmptyStageName — stage не имеет имени.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrDuplicateStage — несколько stages с одинаковым именем.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrUnknownStageType — для типа stage нет реализации.
	ErrUnknownStageType = errors.New("unknown stage type")

	// ErrMissingDependency — stage зависит от несуществующего stage.
	ErrMissingDependency = errors.New("stage depends on unknown stage")

	// ErrSelfDependency — stage зависит от самого себя.
	ErrSelfDependency = errors.New("stage depends on itself")

	// ErrNotChain — зависимость нарушает линейную цепочку (fan-in или не предыдущий stage).
	ErrNotChain = errors.New("stage dependency breaks the linear chain")

	// ErrInvalidOrdinal — ordinal stages не строго возрастают.
	ErrInvalidOrdinal = errors.New("stage ordinals must be strictly increasing")

	// ErrInvalidRetry — некорректная политика retry.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidTimeout — отрицательный таймаут.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrUnsupportedFormat — неизвестный формат файла спецификации.
	ErrUnsupportedFormat = errors.New("unsupported spec format")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Stage   string // имя stage, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Stage != "" {
		return "stage " + e.Stage + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stage, field, message string, err error) *ValidationError {
	return &ValidationError{
		Stage:   stage,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
