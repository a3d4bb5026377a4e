package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Loader загружает табличные данные в хранилище.
type Loader interface {
	// Load заменяет содержимое table строками rows. Возвращает число загруженных строк.
	Load(ctx context.Context, table Table, header []string, rows [][]string) (int64, error)
}

// TxBeginner — источник транзакций (*pgxpool.Pool, *pgx.Conn).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLoader — Loader поверх PostgreSQL через COPY.
type PostgresLoader struct {
	db     TxBeginner
	logger *slog.Logger
}

// NewPostgresLoader создаёт PostgresLoader.
func NewPostgresLoader(db TxBeginner, logger *slog.Logger) *PostgresLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLoader{db: db, logger: logger}
}

// Load пересоздаёт таблицу и загружает строки одной транзакцией.
func (l *PostgresLoader) Load(ctx context.Context, table Table, header []string, rows [][]string) (int64, error) {
	if strings.TrimSpace(table.Name) == "" {
		return 0, ErrInvalidTable
	}
	if len(header) == 0 {
		return 0, ErrEmptyCSV
	}

	types := InferColumnTypes(header, rows)
	values, err := ConvertRows(rows, types)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	// после Commit Rollback ничего не делает
	defer tx.Rollback(ctx)

	ident := table.Identifier().Sanitize()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return 0, fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(table, header, types)); err != nil {
		return 0, fmt.Errorf("create %s: %w", table, err)
	}

	n, err := tx.CopyFrom(ctx, table.Identifier(), header, pgx.CopyFromRows(values))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	l.logger.Info("warehouse table loaded", "table", table.String(), "rows", n, "columns", len(header))
	return n, nil
}

// CreateTableSQL строит CREATE TABLE для заголовка и типов колонок.
func CreateTableSQL(table Table, header []string, types []ColumnType) string {
	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = pgx.Identifier{name}.Sanitize() + " " + string(types[i])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", table.Identifier().Sanitize(), strings.Join(cols, ", "))
}
