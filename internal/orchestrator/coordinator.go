package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/notify"
	"github.com/shaiso/Stockpipe/internal/sensor"
	"github.com/shaiso/Stockpipe/internal/stage"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

// defaultNotifyTimeout — бюджет отправки уведомления о завершении run.
const defaultNotifyTimeout = 30 * time.Second

// RunStore сохраняет состояние runs. Save — upsert по ID вместе с итогами stages.
type RunStore interface {
	Save(ctx context.Context, run *domain.Run) error
}

// Config — конфигурация Coordinator.
type Config struct {
	// Pipeline — построенная цепочка stages.
	Pipeline *engine.Pipeline

	// Stages — реализация для каждого узла pipeline по имени stage.
	Stages map[string]stage.Stage

	// Probe — проверка готовности источника для sensor'а.
	Probe sensor.Probe

	// Notifier — уведомление о завершении run. Опционально.
	Notifier notify.Notifier

	// RunStore — история runs. Опционально.
	RunStore RunStore

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Sleep, SensorWait и Now подменяются в тестах.
	Sleep      stage.SleepFunc
	SensorWait sensor.WaitFunc
	Now        func() time.Time
}

// Coordinator управляет выполнением runs одного pipeline.
type Coordinator struct {
	pipeline *engine.Pipeline
	stages   map[string]stage.Stage
	probe    sensor.Probe
	sensor   *sensor.Sensor
	executor *stage.Executor

	notifier notify.Notifier
	store    RunStore
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	// Активные runs: по ID и по ключу слота
	active map[uuid.UUID]*RunState
	slots  map[string]*RunState
	mu     sync.RWMutex

	// chain — очередь stages. Stages пишут в общие для pipeline ключи
	// (<symbol>/prices.json, <symbol>/formatted_prices/) и общий контейнер,
	// поэтому цепочки разных runs выполняются по одной.
	chain chan struct{}

	// Lifecycle runs, запущенных через Submit
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
}

// New создаёт Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Pipeline == nil || cfg.Probe == nil {
		return nil, fmt.Errorf("%w: pipeline and probe are required", ErrInvalidConfig)
	}
	for _, n := range cfg.Pipeline.Nodes {
		if cfg.Stages[n.Name()] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingStage, n.Name())
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithPipeline(logger, cfg.Pipeline.Name)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		pipeline: cfg.Pipeline,
		stages:   cfg.Stages,
		probe:    cfg.Probe,
		sensor: sensor.New(sensor.Config{
			Interval: cfg.Pipeline.SensorInterval,
			Timeout:  cfg.Pipeline.SensorTimeout,
			Logger:   logger,
			Metrics:  cfg.Metrics,
			Now:      cfg.Now,
			Wait:     cfg.SensorWait,
		}),
		executor: stage.NewExecutor(stage.ExecutorConfig{
			Logger:  logger,
			Metrics: cfg.Metrics,
			Sleep:   cfg.Sleep,
			Now:     cfg.Now,
		}),
		notifier:   cfg.Notifier,
		store:      cfg.RunStore,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        now,
		active:     make(map[uuid.UUID]*RunState),
		slots:      make(map[string]*RunState),
		chain:      make(chan struct{}, 1),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}, nil
}

// Pipeline возвращает pipeline координатора.
func (c *Coordinator) Pipeline() *engine.Pipeline {
	return c.pipeline
}

// NewRun создаёт pending run для слота.
func (c *Coordinator) NewRun(slot time.Time, trigger domain.TriggerKind) *domain.Run {
	return domain.NewRun(c.pipeline.Name, slot, trigger)
}

// Execute проводит run до терминального статуса.
//
// Возвращает ошибку только при нарушении предусловий (ErrRunNotPending,
// ErrRunAlreadyActive, ErrCoordinatorStopped). Падение run записывается
// в сам run и не возвращается.
func (c *Coordinator) Execute(ctx context.Context, run *domain.Run) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state, err := c.register(run, cancel)
	if err != nil {
		return err
	}

	c.drive(rctx, state)
	return nil
}

// Trigger создаёт run для слота и выполняет его синхронно.
func (c *Coordinator) Trigger(ctx context.Context, slot time.Time, trigger domain.TriggerKind) (*domain.Run, error) {
	run := c.NewRun(slot, trigger)
	if err := c.Execute(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Submit создаёт run для слота и запускает его в фоне.
//
// Возвращает снимок pending run. Ошибки предусловий возвращаются сразу.
func (c *Coordinator) Submit(slot time.Time, trigger domain.TriggerKind) (domain.Run, error) {
	run := c.NewRun(slot, trigger)
	rctx, cancel := context.WithCancel(c.baseCtx)

	state, err := c.register(run, cancel)
	if err != nil {
		cancel()
		return domain.Run{}, err
	}
	snap := state.Snapshot()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.drive(rctx, state)
	}()

	return snap, nil
}

// Cancel запрашивает отмену активного run.
//
// Выполняющаяся попытка stage не прерывается, run падает перед следующей.
func (c *Coordinator) Cancel(runID uuid.UUID) bool {
	c.mu.RLock()
	state, ok := c.active[runID]
	c.mu.RUnlock()

	if !ok {
		return false
	}

	c.logger.Info("cancelling run", "run_id", runID)
	state.Cancel()
	return true
}

// ActiveRuns возвращает снимки активных runs, отсортированные по слоту.
func (c *Coordinator) ActiveRuns() []domain.Run {
	c.mu.RLock()
	runs := make([]domain.Run, 0, len(c.active))
	for _, s := range c.active {
		runs = append(runs, s.Snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ScheduledAt.Before(runs[j].ScheduledAt)
	})
	return runs
}

// ActiveRunsCount возвращает количество активных runs.
func (c *Coordinator) ActiveRunsCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// IsSlotActive проверяет, выполняется ли run для слота.
func (c *Coordinator) IsSlotActive(slot time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.slots[domain.IdempotencyKey(c.pipeline.Name, slot)]
	return ok
}

// Stats возвращает статистику активного run.
func (c *Coordinator) Stats(runID uuid.UUID) (RunStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.active[runID]
	if !ok {
		return RunStats{}, false
	}
	return state.Stats(), true
}

// Stop запрещает новые runs, отменяет runs из Submit и ждёт их завершения.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.logger.Info("stopping coordinator...")
	c.cancelBase()
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

// IsStopped проверяет, остановлен ли Coordinator.
func (c *Coordinator) IsStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// register проверяет предусловия и добавляет run в активные.
func (c *Coordinator) register(run *domain.Run, cancel context.CancelFunc) (*RunState, error) {
	if run.Status != domain.RunStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotPending, run.ID, run.Status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, ErrCoordinatorStopped
	}
	if _, ok := c.active[run.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyActive, run.ID)
	}
	if _, ok := c.slots[run.IdempotencyKey]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyActive, run.IdempotencyKey)
	}

	state := NewRunState(run, c.pipeline.Size(), cancel)
	c.active[run.ID] = state
	c.slots[run.IdempotencyKey] = state
	return state, nil
}

func (c *Coordinator) unregister(state *RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, state.RunID())
	delete(c.slots, state.SlotKey())
}

// drive выполняет зарегистрированный run.
//
// Run покидает реестр активных до отправки уведомления.
func (c *Coordinator) drive(ctx context.Context, state *RunState) {
	logger := telemetry.WithRunID(c.logger, state.RunID().String())

	if err := state.MarkRunning(); err != nil {
		// run проверен в register, сюда попадать не должны
		logger.Error("failed to start run", "error", err)
		c.unregister(state)
		return
	}
	c.metrics.RunStarted()
	c.save(ctx, state, logger)

	logger.Info("run started", "slot", state.run.ScheduledAt, "trigger", state.run.Trigger)

	errMsg := c.runPipeline(ctx, state, logger)

	if err := state.Finish(errMsg); err != nil {
		logger.Error("failed to finish run", "error", err)
	}

	snap := state.Snapshot()
	c.metrics.RunFinished(snap.Pipeline, string(snap.Status), snap.Duration())
	c.save(ctx, state, logger)
	c.unregister(state)

	if errMsg == "" {
		logger.Info("run succeeded", "duration", snap.Duration())
	} else {
		logger.Warn("run failed", "failed_stage", snap.FailedStage(), "error", errMsg, "duration", snap.Duration())
	}

	c.notify(ctx, &snap, logger)
}

// runPipeline ждёт sensor и выполняет stages по порядку.
// Возвращает текст ошибки или пустую строку при успехе.
func (c *Coordinator) runPipeline(ctx context.Context, state *RunState, logger *slog.Logger) string {
	res, err := c.sensor.Poll(ctx, c.probe)
	if err != nil {
		c.skipFrom(state, c.pipeline.Nodes)
		return c.failure("sensor", err)
	}

	// Sensor разных runs ждёт параллельно, stages — по очереди
	state.Queue()
	select {
	case c.chain <- struct{}{}:
		defer func() { <-c.chain }()
	case <-ctx.Done():
		c.skipFrom(state, c.pipeline.Nodes)
		return c.failure(c.pipeline.First().Name(), fmt.Errorf("%w while queued: %w", stage.ErrCancelled, ctx.Err()))
	}

	in := res.Context
	for i, node := range c.pipeline.Nodes {
		if err := ctx.Err(); err != nil {
			c.skipFrom(state, c.pipeline.Nodes[i:])
			return c.failure(node.Name(), fmt.Errorf("%w before start: %w", stage.ErrCancelled, err))
		}

		state.StartStage(node.Name())
		result, err := c.executor.Run(ctx, node.Def, c.stages[node.Name()], in)
		if err == nil && result.Output == "" {
			// следующий stage не может начаться без входной ссылки
			err = stage.Fatal(ErrEmptyReference)
		}

		outcome := domain.StageOutcome{
			Stage:      node.Name(),
			Ordinal:    node.Def.Ordinal,
			Attempts:   result.Attempts,
			StartedAt:  timePtr(result.StartedAt),
			FinishedAt: timePtr(result.FinishedAt),
		}

		if err != nil {
			outcome.Status = domain.OutcomeFailed
			outcome.Error = err.Error()
			state.AddOutcome(outcome)
			c.skipFrom(state, c.pipeline.Remaining(node))
			return c.failure(node.Name(), err)
		}

		outcome.Status = domain.OutcomeSucceeded
		outcome.Output = result.Output
		state.AddOutcome(outcome)
		c.save(ctx, state, logger)

		in = result.Output
	}

	return ""
}

// skipFrom записывает skipped для не запускавшихся stages.
func (c *Coordinator) skipFrom(state *RunState, nodes []*engine.Node) {
	for _, n := range nodes {
		state.AddOutcome(domain.StageOutcome{
			Stage:   n.Name(),
			Ordinal: n.Def.Ordinal,
			Status:  domain.OutcomeSkipped,
		})
	}
}

func (c *Coordinator) failure(where string, err error) string {
	return fmt.Sprintf("%s: %v", where, err)
}

// save сохраняет run. Ошибки хранилища не влияют на выполнение.
func (c *Coordinator) save(ctx context.Context, state *RunState, logger *slog.Logger) {
	if c.store == nil {
		return
	}
	snap := state.Snapshot()
	if err := c.store.Save(context.WithoutCancel(ctx), &snap); err != nil {
		logger.Error("failed to save run", "status", snap.Status, "error", err)
	}
}

// notify отправляет уведомление о завершении. Ошибки и паники только логируются.
func (c *Coordinator) notify(ctx context.Context, run *domain.Run, logger *slog.Logger) {
	if c.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()

	err := c.send(nctx, notify.FromRun(run))
	c.metrics.Notification(err == nil)
	if err != nil {
		logger.Warn("notification failed", "error", err)
	}
}

func (c *Coordinator) send(ctx context.Context, msg notify.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotifierPanic, r)
		}
	}()
	return c.notifier.Send(ctx, msg)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
