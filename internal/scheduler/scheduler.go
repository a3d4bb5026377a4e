package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/orchestrator"
)

const defaultTickInterval = 10 * time.Second

// Submitter запускает run для слота. Реализуется orchestrator.Coordinator.
type Submitter interface {
	Submit(slot time.Time, trigger domain.TriggerKind) (domain.Run, error)
}

// SlotStore хранит последний обработанный слот. Реализуется repo.ScheduleRepo.
type SlotStore interface {
	LastSlot(ctx context.Context, pipeline string) (*time.Time, error)
	RecordSlot(ctx context.Context, pipeline string, slot time.Time) error
}

// Leader определяет, выполняет ли этот процесс тики. Реализуется repo.AdvisoryLock.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config — конфигурация Scheduler.
type Config struct {
	Pipeline string
	Schedule domain.Schedule

	Submitter Submitter

	// Slots — хранилище последнего слота. Без него слот хранится только в памяти.
	Slots SlotStore

	// Leader — опционально. Без него процесс всегда лидер.
	Leader Leader

	// TickInterval — период проверки расписания (default: 10s).
	TickInterval time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Scheduler создаёт runs для наступивших слотов расписания.
type Scheduler struct {
	pipeline  string
	schedule  domain.Schedule
	submitter Submitter
	slots     SlotStore
	leader    Leader
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("scheduler: submitter is required")
	}
	if err := ValidateCronExpr(cfg.Schedule.CronExpr); err != nil {
		return nil, err
	}

	s := &Scheduler{
		pipeline:  cfg.Pipeline,
		schedule:  cfg.Schedule,
		submitter: cfg.Submitter,
		slots:     cfg.Slots,
		leader:    cfg.Leader,
		interval:  cfg.TickInterval,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.interval <= 0 {
		s.interval = defaultTickInterval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Tick выполняет один тик планировщика.
//
// 1. Находит наступившие слоты после последнего обработанного
// 2. Для каждого запускает run
// 3. Запоминает слот
//
// Слот, для которого run уже выполняется, считается обработанным.
// Возвращает количество запущенных runs.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	last, err := s.lastSlot(ctx)
	if err != nil {
		return 0, err
	}

	slots, err := DueSlots(s.schedule.CronExpr, s.schedule.Location(), last, s.schedule.StartDate, s.now(), s.schedule.Catchup)
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, nil
	}

	s.logger.Debug("found due slots", "count", len(slots), "catchup", s.schedule.Catchup)

	var created int
	for _, slot := range slots {
		run, err := s.submitter.Submit(slot, domain.TriggerSchedule)
		switch {
		case errors.Is(err, orchestrator.ErrRunAlreadyActive):
			s.logger.Info("run for slot already active", "slot", slot)
		case err != nil:
			// Слот не запоминаем, повторим на следующем тике
			return created, fmt.Errorf("submit slot %s: %w", slot.Format(time.RFC3339), err)
		default:
			created++
			s.logger.Info("created run from schedule", "run_id", run.ID, "slot", slot)
		}

		if err := s.recordSlot(ctx, slot); err != nil {
			return created, err
		}
	}

	return created, nil
}

// Run вызывает Tick с периодом TickInterval, пока не отменён ctx.
// Тики выполняются только лидером.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	defer func() {
		if s.leader != nil {
			if err := s.leader.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release leadership", "error", err)
			}
		}
	}()

	s.logger.Info("scheduler started",
		"schedule", s.schedule.CronExpr,
		"timezone", s.schedule.Location().String(),
		"catchup", s.schedule.Catchup,
	)

	for {
		s.tickAsLeader(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tickAsLeader(ctx context.Context) {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("leader election failed", "error", err)
			return
		}
		if !ok {
			// не лидер — пропускаем тик
			return
		}
	}

	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}

func (s *Scheduler) lastSlot(ctx context.Context) (*time.Time, error) {
	if s.slots == nil {
		return s.schedule.LastSlot, nil
	}
	last, err := s.slots.LastSlot(ctx, s.pipeline)
	if err != nil {
		return nil, fmt.Errorf("get last slot: %w", err)
	}
	return last, nil
}

func (s *Scheduler) recordSlot(ctx context.Context, slot time.Time) error {
	s.schedule.RecordSlot(slot)
	if s.slots == nil {
		return nil
	}
	if err := s.slots.RecordSlot(ctx, s.pipeline, slot); err != nil {
		return fmt.Errorf("record slot: %w", err)
	}
	return nil
}
