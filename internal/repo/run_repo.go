package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Stockpipe/internal/domain"
)

const runColumns = `id, pipeline, scheduled_at, status, trigger, outcomes,
	       started_at, finished_at, error, idempotency_key, created_at`

// RunRepo — репозиторий истории runs.
type RunRepo struct {
	db DBTX
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

// Save сохраняет run вместе с итогами stages (upsert по ID).
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	outcomes := run.Outcomes
	if outcomes == nil {
		outcomes = []domain.StageOutcome{}
	}
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO runs (id, pipeline, scheduled_at, status, trigger, outcomes,
		                  started_at, finished_at, error, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    outcomes = EXCLUDED.outcomes,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at,
		    error = EXCLUDED.error
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.Pipeline,
		run.ScheduledAt,
		string(run.Status),
		string(run.Trigger),
		outcomesJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.IdempotencyKey,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.db.QueryRow(ctx, query, id))
}

// GetLatestBySlot возвращает последний run слота по ключу идемпотентности.
func (r *RunRepo) GetLatestBySlot(ctx context.Context, key string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE idempotency_key = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanRun(r.db.QueryRow(ctx, query, key))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Pipeline string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// List возвращает runs, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR pipeline = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query,
		nullString(filter.Pipeline),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Count возвращает число runs по фильтру без учёта Limit и Offset.
func (r *RunRepo) Count(ctx context.Context, filter RunFilter) (int, error) {
	query := `SELECT count(*)
		FROM runs
		WHERE ($1::text IS NULL OR pipeline = $1)
		  AND ($2::text IS NULL OR status = $2)`

	var n int
	err := r.db.QueryRow(ctx, query,
		nullString(filter.Pipeline),
		nullString(string(filter.Status)),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// MarkInterrupted переводит runs, оставшиеся в running/pending после
// рестарта процесса, в failed. Возвращает количество затронутых runs.
func (r *RunRepo) MarkInterrupted(ctx context.Context, pipeline string) (int64, error) {
	query := `
		UPDATE runs
		SET status = 'failed', finished_at = now(), error = 'interrupted by restart'
		WHERE pipeline = $1 AND status IN ('pending', 'running')
	`
	tag, err := r.db.Exec(ctx, query, pipeline)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanRun сканирует одну строку в Run. pgx.Rows тоже реализует pgx.Row.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run          domain.Run
		status       string
		trigger      string
		outcomesJSON []byte
		runError     *string
	)

	err := row.Scan(
		&run.ID,
		&run.Pipeline,
		&run.ScheduledAt,
		&status,
		&trigger,
		&outcomesJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
		&run.IdempotencyKey,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.Trigger = domain.TriggerKind(trigger)
	if runError != nil {
		run.Error = *runError
	}

	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &run.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal outcomes: %w", err)
		}
	}

	return &run, nil
}
