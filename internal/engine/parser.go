package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// Format — формат файла спецификации.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath определяет формат по расширению файла.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseSpec парсит PipelineSpec из YAML или JSON.
// Неизвестные поля считаются ошибкой.
func ParseSpec(data []byte, format Format) (*domain.PipelineSpec, error) {
	var spec domain.PipelineSpec

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode yaml spec: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode json spec: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return &spec, nil
}

// Validate выполняет полную валидацию PipelineSpec.
//
// Проверяет:
// - Наличие имени и stages
// - Уникальность имён stages
// - Наличие реализации для типа stage (если передан knownTypes)
// - Линейность цепочки: depends_on указывает только на предыдущий stage
// - Строгое возрастание ordinal
// - Корректность retry и таймаутов
func Validate(spec *domain.PipelineSpec, knownTypes map[string]bool) error {
	if spec == nil || len(spec.Stages) == 0 {
		return ErrEmptyStages
	}
	if strings.TrimSpace(spec.Name) == "" {
		return ErrEmptyName
	}
	if spec.Sensor.IntervalSec < 0 || spec.Sensor.TimeoutSec < 0 {
		return NewValidationError("", "sensor", "sensor interval and timeout must not be negative", ErrInvalidTimeout)
	}
	if spec.Defaults != nil {
		if err := validateRetry("", spec.Defaults.Retry); err != nil {
			return err
		}
		if spec.Defaults.TimeoutSec < 0 {
			return NewValidationError("", "defaults.timeout_sec", "timeout must not be negative", ErrInvalidTimeout)
		}
	}

	names := make(map[string]bool, len(spec.Stages))
	prevOrdinal := 0

	for i := range spec.Stages {
		stage := &spec.Stages[i]

		if err := ValidateStage(stage, names, knownTypes); err != nil {
			return err
		}

		if stage.Ordinal != 0 {
			if stage.Ordinal <= prevOrdinal {
				return NewValidationError(stage.Name, "ordinal",
					fmt.Sprintf("ordinal %d after %d", stage.Ordinal, prevOrdinal), ErrInvalidOrdinal)
			}
			prevOrdinal = stage.Ordinal
		} else {
			prevOrdinal++
		}

		names[stage.Name] = true
	}

	return validateChain(spec.Stages)
}

// ValidateStage валидирует отдельный stage.
// seen — имена stages, объявленных до этого.
func ValidateStage(stage *domain.StageDef, seen map[string]bool, knownTypes map[string]bool) error {
	if strings.TrimSpace(stage.Name) == "" {
		return NewValidationError("", "name", "stage name is required", ErrEmptyStageName)
	}
	if seen[stage.Name] {
		return NewValidationError(stage.Name, "name", "duplicate stage name", ErrDuplicateStage)
	}

	if knownTypes != nil {
		stageType := stage.Type
		if stageType == "" {
			stageType = stage.Name
		}
		if !knownTypes[stageType] {
			return NewValidationError(stage.Name, "type",
				fmt.Sprintf("unknown stage type: %s", stageType), ErrUnknownStageType)
		}
	}

	if stage.TimeoutSec < 0 {
		return NewValidationError(stage.Name, "timeout_sec", "timeout must not be negative", ErrInvalidTimeout)
	}

	return validateRetry(stage.Name, stage.Retry)
}

// validateRetry проверяет политику retry.
func validateRetry(stage string, policy *domain.RetryPolicy) error {
	if policy == nil {
		return nil
	}
	if policy.MaxAttempts < 0 {
		return NewValidationError(stage, "retry.max_attempts", "max_attempts must not be negative", ErrInvalidRetry)
	}
	switch policy.Backoff {
	case "", domain.BackoffExponential, domain.BackoffFixed:
	default:
		return NewValidationError(stage, "retry.backoff",
			fmt.Sprintf("unknown backoff: %s", policy.Backoff), ErrInvalidRetry)
	}
	if policy.InitialDelayMs < 0 || policy.MaxDelayMs < 0 {
		return NewValidationError(stage, "retry", "delays must not be negative", ErrInvalidRetry)
	}
	if policy.MaxDelayMs > 0 && policy.InitialDelayMs > policy.MaxDelayMs {
		return NewValidationError(stage, "retry", "initial_delay_ms exceeds max_delay_ms", ErrInvalidRetry)
	}
	return nil
}

// validateChain проверяет, что depends_on образует линейную цепочку.
func validateChain(stages []domain.StageDef) error {
	all := make(map[string]bool, len(stages))
	for _, s := range stages {
		all[s.Name] = true
	}

	for i, stage := range stages {
		if len(stage.DependsOn) == 0 {
			continue
		}
		if len(stage.DependsOn) > 1 {
			return NewValidationError(stage.Name, "depends_on",
				"a stage may consume only one upstream reference", ErrNotChain)
		}

		dep := stage.DependsOn[0]
		if dep == stage.Name {
			return NewValidationError(stage.Name, "depends_on", "stage depends on itself", ErrSelfDependency)
		}
		if !all[dep] {
			return NewValidationError(stage.Name, "depends_on",
				fmt.Sprintf("depends on unknown stage: %s", dep), ErrMissingDependency)
		}
		if i == 0 || stages[i-1].Name != dep {
			return NewValidationError(stage.Name, "depends_on",
				fmt.Sprintf("must depend on the preceding stage, got %s", dep), ErrNotChain)
		}
	}

	return nil
}
