package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

// Probe — проверка готовности внешнего источника.
//
// value — непрозрачный контекст проверки (например, URL API),
// используется только при ready == true.
type Probe interface {
	Probe(ctx context.Context) (ready bool, value domain.Reference, err error)
}

// ProbeFunc — адаптер функции к интерфейсу Probe.
type ProbeFunc func(ctx context.Context) (bool, domain.Reference, error)

// Probe вызывает f(ctx).
func (f ProbeFunc) Probe(ctx context.Context) (bool, domain.Reference, error) {
	return f(ctx)
}

// WaitFunc ждёт d или отмены ctx.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Config — конфигурация Sensor.
type Config struct {
	// Interval — пауза между проверками.
	Interval time.Duration

	// Timeout — общий бюджет ожидания.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Now и Wait подменяются в тестах.
	Now  func() time.Time
	Wait WaitFunc
}

// Sensor ждёт готовности источника.
type Sensor struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
	wait     WaitFunc
}

// New создаёт Sensor.
func New(cfg Config) *Sensor {
	s := &Sensor{
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		wait:     cfg.Wait,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.wait == nil {
		s.wait = waitCtx
	}
	return s
}

// Poll — однократное ожидание с параметрами по умолчанию.
func Poll(ctx context.Context, probe Probe, interval, timeout time.Duration) (domain.SensorResult, error) {
	return New(Config{Interval: interval, Timeout: timeout}).Poll(ctx, probe)
}

// Poll вызывает probe, пока источник не готов.
//
// Первая проверка выполняется сразу. Отмена ctx проверяется перед каждой
// проверкой и во время паузы; выполняющаяся проверка не прерывается,
// но ограничена оставшимся бюджетом. Готовность, замеченная после
// истечения бюджета, игнорируется.
func (s *Sensor) Poll(ctx context.Context, probe Probe) (domain.SensorResult, error) {
	start := s.now()
	deadline := start.Add(s.timeout)

	var (
		probes  int
		lastErr error
	)

	for {
		if err := ctx.Err(); err != nil {
			return domain.SensorResult{}, fmt.Errorf("%w after %d probes: %w", ErrCancelled, probes, err)
		}

		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			break
		}

		ready, value, err := s.probeOnce(ctx, probe, remaining)
		probes++
		at := s.now()

		switch {
		case err != nil:
			lastErr = err
			s.metrics.SensorProbe("error")
			s.logger.Debug("probe failed", "probe", probes, "error", err)
		case ready && at.After(deadline):
			s.metrics.SensorProbe("late")
			s.logger.Warn("source became ready after sensor deadline", "probe", probes)
		case ready:
			s.metrics.SensorProbe("ready")
			s.logger.Info("source is available", "probes", probes, "waited", at.Sub(start))
			return domain.SensorResult{Ready: true, Context: value}, nil
		default:
			s.metrics.SensorProbe("not_ready")
			s.logger.Debug("source not ready", "probe", probes)
		}

		if !at.Before(deadline) {
			break
		}

		pause := s.interval
		if left := deadline.Sub(at); pause > left {
			pause = left
		}
		if err := s.wait(ctx, pause); err != nil {
			return domain.SensorResult{}, fmt.Errorf("%w after %d probes: %w", ErrCancelled, probes, err)
		}
	}

	return domain.SensorResult{}, &TimeoutError{Probes: probes, Timeout: s.timeout, LastErr: lastErr}
}

// probeOnce выполняет проверку в контексте, отвязанном от отмены run.
func (s *Sensor) probeOnce(ctx context.Context, probe Probe, budget time.Duration) (bool, domain.Reference, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()
	return probe.Probe(pctx)
}

func waitCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
