package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// Notification — итог run для уведомления.
type Notification struct {
	RunID       uuid.UUID
	Pipeline    string
	ScheduledAt time.Time
	Status      domain.RunStatus

	// Message — человекочитаемый текст.
	Message string

	// FailedStage — stage, на котором run упал (пусто для sensor timeout и успеха).
	FailedStage string

	// Error — описание ошибки для failed.
	Error string

	Duration time.Duration
}

// FromRun строит уведомление по завершённому run.
func FromRun(run *domain.Run) Notification {
	n := Notification{
		RunID:       run.ID,
		Pipeline:    run.Pipeline,
		ScheduledAt: run.ScheduledAt,
		Status:      run.Status,
		Error:       run.Error,
		FailedStage: run.FailedStage(),
		Duration:    run.Duration(),
	}

	switch run.Status {
	case domain.RunStatusSucceeded:
		n.Message = fmt.Sprintf("The DAG %s has Succeeded", run.Pipeline)
	case domain.RunStatusFailed:
		n.Message = fmt.Sprintf("The DAG %s has Failed", run.Pipeline)
	default:
		n.Message = fmt.Sprintf("The DAG %s is %s", run.Pipeline, run.Status)
	}
	return n
}

// Notifier — получатель терминальных уведомлений.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Multi рассылает уведомление всем получателям.
// Ошибка одного получателя не мешает остальным.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет уведомление в лог.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Send(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	if n.Status == domain.RunStatusFailed {
		level = slog.LevelWarn
	}

	logger.Log(ctx, level, n.Message,
		"run_id", n.RunID,
		"pipeline", n.Pipeline,
		"scheduled_at", n.ScheduledAt,
		"status", n.Status,
		"failed_stage", n.FailedStage,
		"error", n.Error,
		"duration", n.Duration,
	)
	return nil
}
