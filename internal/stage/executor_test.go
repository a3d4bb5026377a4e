package stage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

var errBoom = errors.New("boom")

// recordingSleep запоминает задержки и не ждёт.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestExecutor(rs *recordingSleep) *Executor {
	return NewExecutor(ExecutorConfig{
		Logger: telemetry.Discard(),
		Sleep:  rs.sleep,
	})
}

// flaky возвращает ошибку первые failures вызовов.
func flaky(failures int, calls *int) Stage {
	return Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		*calls++
		if *calls <= failures {
			return "", Recoverable(errBoom)
		}
		return in + "/out", nil
	})
}

// --- Executor Tests ---

func TestExecutor_Success(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0

	res, err := newTestExecutor(rs).Run(context.Background(), domain.StageDef{Name: "s"}, flaky(0, &calls), "in")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "in/out" {
		t.Errorf("expected in/out, got %s", res.Output)
	}
	if res.Attempts != 1 || calls != 1 {
		t.Errorf("expected 1 attempt, got %d (calls %d)", res.Attempts, calls)
	}
	if len(rs.delays) != 0 {
		t.Errorf("expected no backoff, got %v", rs.delays)
	}
}

func TestExecutor_TransientThenSuccess(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	def := domain.StageDef{
		Name:  "s",
		Retry: &domain.RetryPolicy{MaxAttempts: 4, InitialDelayMs: 100},
	}

	// max_attempts-1 временных ошибок, затем успех
	res, err := newTestExecutor(rs).Run(context.Background(), def, flaky(3, &calls), "in")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", res.Attempts)
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(rs.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), rs.delays)
	}
	for i := range want {
		if rs.delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], rs.delays[i])
		}
	}
}

func TestExecutor_RetryExhausted(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	def := domain.StageDef{Name: "s", Retry: &domain.RetryPolicy{MaxAttempts: 3}}

	res, err := newTestExecutor(rs).Run(context.Background(), def, flaky(10, &calls), "in")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("last error should be wrapped, got %v", err)
	}
	if res.Attempts != 3 || calls != 3 {
		t.Errorf("expected 3 attempts, got %d (calls %d)", res.Attempts, calls)
	}
	if res.Output != "" {
		t.Errorf("expected no output, got %s", res.Output)
	}
}

func TestExecutor_UnclassifiedIsRecoverable(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	st := Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		calls++
		if calls == 1 {
			return "", errBoom
		}
		return "ok", nil
	})
	def := domain.StageDef{Name: "s", Retry: &domain.RetryPolicy{MaxAttempts: 2}}

	res, err := newTestExecutor(rs).Run(context.Background(), def, st, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestExecutor_FatalStopsImmediately(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	st := Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		calls++
		return "", Fatal(errBoom)
	})
	def := domain.StageDef{Name: "s", Retry: &domain.RetryPolicy{MaxAttempts: 5}}

	res, err := newTestExecutor(rs).Run(context.Background(), def, st, "")
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("fatal error must not be reported as exhausted")
	}
	if res.Attempts != 1 || calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	rs := &recordingSleep{}
	blocking := Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	tests := []struct {
		name      string
		fatal     bool
		wantFatal bool
	}{
		{"recoverable", false, false},
		{"fatal", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := domain.StageDef{Name: "s", TimeoutSec: 1, TimeoutFatal: tt.fatal}

			_, err := newTestExecutor(rs).Run(context.Background(), def, blocking, "")
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			if IsFatal(err) != tt.wantFatal {
				t.Errorf("expected fatal=%v, got %v", tt.wantFatal, err)
			}

			var te *TimeoutError
			if !errors.As(err, &te) || te.Attempt != 1 || te.Timeout != time.Second {
				t.Errorf("unexpected timeout error: %+v", te)
			}
		})
	}
}

func TestExecutor_TimedOutAttemptsDoNotOverlap(t *testing.T) {
	rs := &recordingSleep{}
	var running, maxRunning, calls atomic.Int32

	// stage не смотрит на ctx и выходит за таймаут
	slow := Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		calls.Add(1)
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(1200 * time.Millisecond)
		return "late", nil
	})
	def := domain.StageDef{Name: "s", TimeoutSec: 1, Retry: &domain.RetryPolicy{MaxAttempts: 2}}

	res, err := newTestExecutor(rs).Run(context.Background(), def, slow, "in")
	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected exhausted timeouts, got %v", err)
	}
	if res.Output != "" {
		t.Errorf("result after deadline must be discarded, got %s", res.Output)
	}
	if calls.Load() != 2 || res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d (calls %d)", res.Attempts, calls.Load())
	}
	if maxRunning.Load() != 1 {
		t.Errorf("attempts must not overlap, max concurrent executions %d", maxRunning.Load())
	}
	if running.Load() != 0 {
		t.Error("executor returned while an attempt was still running")
	}
}

func TestExecutor_CancelBetweenAttempts(t *testing.T) {
	rs := &recordingSleep{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attemptCtxErr error
	calls := 0
	st := Func(func(actx context.Context, in domain.Reference) (domain.Reference, error) {
		calls++
		cancel()
		// выполняющаяся попытка не прерывается отменой run
		attemptCtxErr = actx.Err()
		return "", errBoom
	})
	def := domain.StageDef{Name: "s", Retry: &domain.RetryPolicy{MaxAttempts: 3}}

	res, err := newTestExecutor(rs).Run(ctx, def, st, "")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if attemptCtxErr != nil {
		t.Errorf("attempt context should not be cancelled, got %v", attemptCtxErr)
	}
	if res.Attempts != 1 || calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}

func TestExecutor_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res, err := newTestExecutor(&recordingSleep{}).Run(ctx, domain.StageDef{Name: "s"}, flaky(0, &calls), "")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 0 || res.Attempts != 0 {
		t.Errorf("stage must not run, got %d calls", calls)
	}
}

func TestExecutor_PanicIsFatal(t *testing.T) {
	st := Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		panic("nil map")
	})
	def := domain.StageDef{Name: "s", Retry: &domain.RetryPolicy{MaxAttempts: 3}}

	res, err := newTestExecutor(&recordingSleep{}).Run(context.Background(), def, st, "")
	if !errors.Is(err, ErrPanic) || !IsFatal(err) {
		t.Fatalf("expected fatal ErrPanic, got %v", err)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
}

// --- Backoff Tests ---

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		policy  *domain.RetryPolicy
		want    time.Duration
	}{
		{"nil policy", 3, nil, time.Second},
		{"exponential first", 1, &domain.RetryPolicy{InitialDelayMs: 500}, 500 * time.Millisecond},
		{"exponential third", 3, &domain.RetryPolicy{InitialDelayMs: 500}, 2 * time.Second},
		{"exponential capped", 10, &domain.RetryPolicy{InitialDelayMs: 1000, MaxDelayMs: 5000}, 5 * time.Second},
		{"default cap", 20, &domain.RetryPolicy{}, DefaultMaxDelay},
		{"fixed", 4, &domain.RetryPolicy{Backoff: domain.BackoffFixed, InitialDelayMs: 250}, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Backoff(tt.attempt, tt.policy); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- Error Tests ---

func TestErrorClassification(t *testing.T) {
	if Recoverable(nil) != nil || Fatal(nil) != nil {
		t.Error("nil errors must stay nil")
	}
	if !IsFatal(Fatalf("no csv under %s", "A/")) {
		t.Error("Fatalf should be fatal")
	}
	if IsRecoverable(nil) {
		t.Error("nil is not recoverable")
	}
	if !IsRecoverable(errBoom) || !IsRecoverable(Recoverable(errBoom)) {
		t.Error("plain and recoverable errors should be recoverable")
	}
	if !errors.Is(Fatal(errBoom), errBoom) {
		t.Error("fatal error should unwrap")
	}
}
