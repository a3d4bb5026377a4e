package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ScheduleRepo хранит последний обработанный слот расписания pipeline.
type ScheduleRepo struct {
	db DBTX
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(db DBTX) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// LastSlot возвращает последний слот или nil, если pipeline ещё не запускался.
func (r *ScheduleRepo) LastSlot(ctx context.Context, pipeline string) (*time.Time, error) {
	var slot time.Time
	err := r.db.QueryRow(ctx,
		`SELECT last_slot FROM schedule_state WHERE pipeline = $1`, pipeline,
	).Scan(&slot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last slot: %w", err)
	}
	slot = slot.UTC()
	return &slot, nil
}

// RecordSlot запоминает слот. Слот раньше сохранённого игнорируется.
func (r *ScheduleRepo) RecordSlot(ctx context.Context, pipeline string, slot time.Time) error {
	query := `
		INSERT INTO schedule_state (pipeline, last_slot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pipeline) DO UPDATE
		SET last_slot = GREATEST(schedule_state.last_slot, EXCLUDED.last_slot),
		    updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, pipeline, slot.UTC()); err != nil {
		return fmt.Errorf("record slot: %w", err)
	}
	return nil
}
