package stage

import (
	"context"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// Stage — интерфейс единицы работы pipeline.
//
// Реализации должны быть идемпотентны: повторная попытка после частичного
// выполнения даёт тот же результат (детерминированные ключи, очистка
// префиксов, replace-семантика загрузки).
type Stage interface {
	Execute(ctx context.Context, in domain.Reference) (domain.Reference, error)
}

// Func — адаптер функции к интерфейсу Stage.
type Func func(ctx context.Context, in domain.Reference) (domain.Reference, error)

// Execute вызывает f(ctx, in).
func (f Func) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	return f(ctx, in)
}
