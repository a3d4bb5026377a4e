package domain

import "time"

// StageDef — определение stage в pipeline.
//
// Неизменяемо после построения pipeline. Разделяется всеми runs.
type StageDef struct {
	// Name — уникальное имя stage в рамках pipeline.
	Name string `json:"name" yaml:"name"`

	// Ordinal — позиция stage в цепочке (с 1).
	// Если не задан в спецификации — проставляется по порядку.
	Ordinal int `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`

	// Type — тип реализации stage ("store_prices", "format_prices", ...).
	// По умолчанию совпадает с Name.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// DependsOn — upstream stage. Для цепочки — не более одного, и только предыдущий.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Retry — политика повторных попыток. Переопределяет defaults.retry.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// TimeoutSec — таймаут одной попытки в секундах. 0 — без таймаута.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`

	// TimeoutFatal — таймаут попытки считается фатальной ошибкой, а не retriable.
	TimeoutFatal bool `json:"timeout_fatal,omitempty" yaml:"timeout_fatal,omitempty"`
}

// Timeout возвращает таймаут попытки как time.Duration.
func (d StageDef) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// MaxAttempts возвращает максимальное число попыток (минимум 1).
func (d StageDef) MaxAttempts() int {
	if d.Retry == nil || d.Retry.MaxAttempts <= 0 {
		return 1
	}
	return d.Retry.MaxAttempts
}

// Backoff — стратегия задержки между попытками.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "exponential" (по умолчанию), "fixed".
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
}

// StageOutcome — итог выполнения stage в рамках run.
//
// Ровно один терминальный итог на stage на run.
type StageOutcome struct {
	// Stage — имя stage.
	Stage string `json:"stage"`

	// Ordinal — позиция stage в цепочке.
	Ordinal int `json:"ordinal"`

	// Attempts — количество выполненных попыток (0 для skipped).
	Attempts int `json:"attempts"`

	// Status — итоговый статус.
	Status OutcomeStatus `json:"status"`

	// Output — выходная ссылка (только для succeeded).
	Output Reference `json:"output,omitempty"`

	// Error — описание ошибки (только для failed).
	Error string `json:"error,omitempty"`

	// StartedAt — начало первой попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — конец последней попытки.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность выполнения stage.
func (o *StageOutcome) Duration() time.Duration {
	if o.StartedAt == nil || o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(*o.StartedAt)
}

// SensorResult — результат ожидания доступности источника.
type SensorResult struct {
	// Ready — источник готов.
	Ready bool `json:"ready"`

	// Context — непрозрачное значение последней успешной проверки.
	// Становится входной ссылкой первого stage.
	Context Reference `json:"context,omitempty"`
}
