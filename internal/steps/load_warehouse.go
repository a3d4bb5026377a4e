package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/stage"
	"github.com/shaiso/Stockpipe/internal/warehouse"
)

// DefaultTable — целевая таблица хранилища.
var DefaultTable = warehouse.Table{Schema: "public", Name: "stock_market"}

// LoadToDW загружает CSV в таблицу хранилища с заменой содержимого.
//
// Вход — ссылка на CSV. Выход — ссылка вида "pg://public.stock_market".
type LoadToDW struct {
	Store  objectstore.Store
	Loader warehouse.Loader
	Table  warehouse.Table
	Logger *slog.Logger
}

// Execute реализует stage.Stage.
func (s *LoadToDW) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	if _, _, err := in.Object(); err != nil || in.IsPrefix() {
		return "", stage.Fatalf("%w: expected csv object reference, got %q", ErrBadInput, in)
	}

	data, err := s.Store.Get(ctx, in)
	if err != nil {
		return "", stage.Recoverable(fmt.Errorf("read %s: %w", in, err))
	}

	header, rows, err := warehouse.ParseCSV(data)
	if err != nil {
		return "", stage.Fatal(fmt.Errorf("parse %s: %w", in, err))
	}

	table := s.Table
	if table.Name == "" {
		table = DefaultTable
	}

	n, err := s.Loader.Load(ctx, table, header, rows)
	if err != nil {
		return "", stage.Recoverable(fmt.Errorf("load %s: %w", table, err))
	}

	logger(s.Logger).Info("csv loaded", "source", in, "table", table.String(), "rows", n)
	return TableRef(table), nil
}

// TableRef возвращает ссылку на таблицу хранилища.
func TableRef(t warehouse.Table) domain.Reference {
	return domain.Reference("pg://" + t.String())
}
