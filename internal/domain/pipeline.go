package domain

// PipelineSpec — спецификация pipeline (содержимое YAML/JSON файла).
//
// Это "программа" для движка — упорядоченная цепочка stages,
// параметры sensor'а и расписание.
type PipelineSpec struct {
	// Name — имя pipeline (например, "stock_market").
	Name string `json:"name" yaml:"name"`

	// Description — описание назначения pipeline.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Schedule — расписание запуска (поля schedule, timezone, catchup на верхнем уровне).
	Schedule `yaml:",inline"`

	// Tags — произвольные метки.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Sensor — параметры ожидания доступности источника.
	Sensor SensorDef `json:"sensor" yaml:"sensor"`

	// Defaults — настройки по умолчанию для всех stages.
	Defaults *StageDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Stages — цепочка stages в порядке выполнения.
	Stages []StageDef `json:"stages" yaml:"stages"`
}

// SensorDef — параметры sensor'а.
type SensorDef struct {
	// IntervalSec — интервал между проверками в секундах (default: 30).
	IntervalSec int `json:"interval_sec,omitempty" yaml:"interval_sec,omitempty"`

	// TimeoutSec — общий бюджет ожидания в секундах (default: 300).
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// StageDefaults — настройки по умолчанию для stages.
type StageDefaults struct {
	// Retry — политика повторных попыток.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// TimeoutSec — таймаут попытки в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}
