package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

// Значения backoff по умолчанию.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// SleepFunc ждёт d или отмены ctx.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result — результат выполнения stage со всеми попытками.
type Result struct {
	// Output — выходная ссылка (только при успехе).
	Output domain.Reference

	// Attempts — количество выполненных попыток.
	Attempts int

	// StartedAt — начало первой попытки.
	StartedAt time.Time

	// FinishedAt — конец последней попытки.
	FinishedAt time.Time
}

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Sleep — ожидание между попытками. По умолчанию — таймер с учётом ctx.
	Sleep SleepFunc

	// Now — источник времени. По умолчанию time.Now.
	Now func() time.Time
}

// Executor выполняет stage согласно RetryPolicy и таймауту StageDef.
type Executor struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	sleep   SleepFunc
	now     func() time.Time
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		sleep:   cfg.Sleep,
		now:     cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Run выполняет st с входом in.
//
// Возвращаемая ошибка:
//   - fatal ошибка stage (IsFatal) — без повторов
//   - ErrRetryExhausted, обёрнутая вокруг последней ошибки
//   - ErrCancelled — ctx отменён до очередной попытки или во время backoff
//
// Result.Attempts содержит число фактически выполненных попыток.
func (e *Executor) Run(ctx context.Context, def domain.StageDef, st Stage, in domain.Reference) (Result, error) {
	logger := telemetry.WithStage(e.logger, def.Name)
	maxAttempts := def.MaxAttempts()

	res := Result{StartedAt: e.now()}
	defer func() {
		e.metrics.StageDone(def.Name, res.FinishedAt.Sub(res.StartedAt))
	}()

	for attempt := 1; ; attempt++ {
		// Отмена проверяется только между попытками
		if err := ctx.Err(); err != nil {
			res.FinishedAt = e.now()
			return res, fmt.Errorf("%w before attempt %d: %w", ErrCancelled, attempt, err)
		}

		res.Attempts = attempt
		out, err := e.attempt(ctx, def, st, in, attempt)
		res.FinishedAt = e.now()

		if err == nil {
			e.metrics.StageAttempt(def.Name, "ok")
			res.Output = out
			logger.Debug("stage attempt succeeded", "attempt", attempt, "output", out)
			return res, nil
		}

		e.metrics.StageAttempt(def.Name, attemptResult(err))

		if IsFatal(err) {
			logger.Warn("stage failed", "attempt", attempt, "error", err)
			return res, err
		}

		if attempt >= maxAttempts {
			logger.Warn("stage retries exhausted", "attempts", attempt, "error", err)
			return res, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		delay := Backoff(attempt, def.Retry)
		logger.Info("retrying stage",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)

		if err := e.sleep(ctx, delay); err != nil {
			res.FinishedAt = e.now()
			return res, fmt.Errorf("%w during backoff after attempt %d: %w", ErrCancelled, attempt, err)
		}
	}
}

// attempt выполняет одну попытку.
//
// Контекст попытки отвязан от отмены run и ограничен только таймаутом stage.
// Попытка не вытесняется: по истечении таймаута её контекст отменяется,
// но следующая попытка начинается только после возврата Execute.
// Попытка, вернувшаяся после дедлайна, считается превысившей таймаут.
func (e *Executor) attempt(ctx context.Context, def domain.StageDef, st Stage, in domain.Reference, attempt int) (domain.Reference, error) {
	actx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if timeout := def.Timeout(); timeout > 0 {
		actx, cancel = context.WithTimeout(actx, timeout)
	}
	defer cancel()

	ref, err := execute(actx, st, in)
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		if err == nil {
			e.logger.Warn("stage attempt finished after deadline, result discarded",
				"stage", def.Name, "attempt", attempt, "output", ref)
		}
		return "", e.timeoutError(def, attempt)
	}
	return ref, err
}

// execute вызывает st.Execute и превращает панику в fatal ошибку.
func execute(ctx context.Context, st Stage, in domain.Reference) (ref domain.Reference, err error) {
	defer func() {
		if r := recover(); r != nil {
			ref, err = "", Fatal(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	return st.Execute(ctx, in)
}

func (e *Executor) timeoutError(def domain.StageDef, attempt int) error {
	err := &TimeoutError{Stage: def.Name, Attempt: attempt, Timeout: def.Timeout()}
	if def.TimeoutFatal {
		return Fatal(err)
	}
	return err
}

func attemptResult(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case IsFatal(err):
		return "fatal"
	default:
		return "recoverable"
	}
}

// Backoff вычисляет задержку перед попыткой attempt+1.
//
// exponential: initial * 2^(attempt-1), не больше max.
// fixed: initial.
func Backoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return DefaultInitialDelay
	}

	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := initialDelay
	if policy.Backoff != domain.BackoffFixed {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
