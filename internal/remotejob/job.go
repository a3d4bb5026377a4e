package remotejob

import (
	"context"
	"errors"
	"time"
)

// Ошибки remote job.
var (
	// ErrAbnormalExit — задача завершилась с ненулевым кодом.
	ErrAbnormalExit = errors.New("remote job exited abnormally")

	// ErrInvalidSpec — в Spec не хватает обязательных полей.
	ErrInvalidSpec = errors.New("invalid remote job spec")
)

// Spec — параметры запуска задачи.
type Spec struct {
	// Name — имя контейнера. Одновременно выполняется не больше одной задачи с таким именем.
	Name string

	// Image — образ задачи (например, "airflow/stock-app").
	Image string

	// Network — сетевой режим ("container:spark-master").
	Network string

	// Env — переменные окружения задачи.
	Env map[string]string
}

// Completion — результат завершившейся задачи.
type Completion struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Job — fire-and-wait запуск внешней задачи.
type Job interface {
	Invoke(ctx context.Context, spec Spec) (Completion, error)
}
