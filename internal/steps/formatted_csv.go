package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/stage"
)

// GetFormattedCSV находит CSV, созданный задачей форматирования.
//
// Вход — ссылка на префикс formatted_prices/. Выход — ссылка на первый
// (лексикографически) ключ с суффиксом .csv. Отсутствие CSV — fatal.
type GetFormattedCSV struct {
	Store objectstore.Store
}

// Execute реализует stage.Stage.
func (s *GetFormattedCSV) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	bucket, prefix, err := in.Object()
	if err != nil || !in.IsPrefix() {
		return "", stage.Fatalf("%w: expected prefix reference, got %q", ErrBadInput, in)
	}

	key, err := objectstore.FindBySuffix(ctx, s.Store, bucket, prefix, ".csv")
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return "", stage.Fatal(err)
		}
		return "", stage.Recoverable(fmt.Errorf("find csv: %w", err))
	}

	return domain.ObjectRef(bucket, key), nil
}
