package sensor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

// fakeClock — время, которое двигается только через wait или probe.
type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestSensor(clock *fakeClock, interval, timeout time.Duration) *Sensor {
	return New(Config{
		Interval: interval,
		Timeout:  timeout,
		Logger:   telemetry.Discard(),
		Now:      clock.Now,
		Wait:     clock.Wait,
	})
}

// --- Poll Tests ---

func TestPoll_ReadyImmediately(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		calls++
		return true, "https://api/chart/", nil
	})

	res, err := newTestSensor(clock, 30*time.Second, 300*time.Second).Poll(context.Background(), probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Ready || res.Context != "https://api/chart/" {
		t.Errorf("unexpected result: %+v", res)
	}
	if calls != 1 || len(clock.waits) != 0 {
		t.Errorf("expected single probe without waiting, got %d probes, %d waits", calls, len(clock.waits))
	}
}

func TestPoll_NeverReady(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		calls++
		return false, "", nil
	})

	res, err := newTestSensor(clock, 30*time.Second, 300*time.Second).Poll(context.Background(), probe)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if res.Ready {
		t.Error("result must not be ready after timeout")
	}

	// пробы в 0, 30, ..., 270
	if calls != 10 {
		t.Errorf("expected 10 probes, got %d", calls)
	}

	var te *TimeoutError
	if !errors.As(err, &te) || te.Probes != 10 || te.Timeout != 300*time.Second {
		t.Errorf("unexpected timeout error: %+v", te)
	}
	for _, w := range clock.waits {
		if w != 30*time.Second {
			t.Errorf("expected 30s waits, got %v", w)
		}
	}
}

func TestPoll_ProbeErrorsDoNotAbort(t *testing.T) {
	clock := newFakeClock()
	errAPI := errors.New("connection refused")
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		calls++
		if calls < 4 {
			return false, "", errAPI
		}
		return true, "ctx", nil
	})

	res, err := newTestSensor(clock, 30*time.Second, 300*time.Second).Poll(context.Background(), probe)
	if err != nil {
		t.Fatalf("probe errors must not abort the sensor: %v", err)
	}
	if !res.Ready || calls != 4 {
		t.Errorf("expected ready on 4th probe, got %+v after %d", res, calls)
	}
}

func TestPoll_TimeoutCarriesLastProbeError(t *testing.T) {
	clock := newFakeClock()
	errAPI := errors.New("bad gateway")
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		return false, "", errAPI
	})

	_, err := newTestSensor(clock, 10*time.Second, 25*time.Second).Poll(context.Background(), probe)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, errAPI) {
		t.Fatalf("expected timeout wrapping probe error, got %v", err)
	}

	// последняя пауза укорачивается до остатка бюджета
	want := []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second}
	if len(clock.waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, clock.waits)
	}
	for i := range want {
		if clock.waits[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], clock.waits[i])
		}
	}
}

func TestPoll_ReadyAfterDeadlineDiscarded(t *testing.T) {
	clock := newFakeClock()
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		// медленная проверка завершается после дедлайна
		clock.now = clock.now.Add(2 * time.Minute)
		return true, "late", nil
	})

	res, err := newTestSensor(clock, 30*time.Second, time.Minute).Poll(context.Background(), probe)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if res.Ready {
		t.Error("late ready result must be discarded")
	}
}

func TestPoll_CancelBetweenProbes(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	var probeCtxErr error
	probe := ProbeFunc(func(pctx context.Context) (bool, domain.Reference, error) {
		calls++
		cancel()
		probeCtxErr = pctx.Err()
		return false, "", nil
	})

	_, err := newTestSensor(clock, 30*time.Second, 300*time.Second).Poll(ctx, probe)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("polling must stop before the next probe, got %d probes", calls)
	}
	if probeCtxErr != nil {
		t.Errorf("in-flight probe must not be cancelled, got %v", probeCtxErr)
	}
}

func TestPoll_RealClock(t *testing.T) {
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		calls++
		return calls == 2, "ok", nil
	})

	res, err := Poll(context.Background(), probe, 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Ready || calls != 2 {
		t.Errorf("expected ready on second probe, got %+v after %d", res, calls)
	}
}

// --- HTTPProbe Tests ---

func TestHTTPProbe_Polarity(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		polarity  Polarity
		wantReady bool
		wantErr   bool
	}{
		{"null result, null polarity", `{"finance":{"result":null,"error":{"code":"Not Found"}}}`, http.StatusNotFound, ResultNull, true, false},
		{"present result, null polarity", `{"finance":{"result":[{"x":1}]}}`, http.StatusOK, ResultNull, false, false},
		{"present result, present polarity", `{"finance":{"result":[{"x":1}]}}`, http.StatusOK, ResultPresent, true, false},
		{"null result, present polarity", `{"finance":{"result":null}}`, http.StatusOK, ResultPresent, false, false},
		{"missing finance", `{"chart":{}}`, http.StatusOK, ResultNull, false, true},
		{"not json", `<html>`, http.StatusOK, ResultNull, false, true},
		{"server error", `{"finance":{"result":null}}`, http.StatusBadGateway, ResultNull, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != "stockpipe" {
					t.Errorf("expected configured User-Agent, got %q", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			probe := NewHTTPProbe(HTTPProbeConfig{
				Host:     server.URL,
				Endpoint: "/v8/finance/chart/",
				Headers:  map[string]string{"User-Agent": "stockpipe"},
				Polarity: tt.polarity,
			})

			ready, value, err := probe.Probe(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ready != tt.wantReady {
				t.Errorf("expected ready=%v, got %v", tt.wantReady, ready)
			}
			if string(value) != server.URL+"/v8/finance/chart/" {
				t.Errorf("expected url as context, got %s", value)
			}
		})
	}
}

func TestParsePolarity(t *testing.T) {
	if p, err := ParsePolarity(""); err != nil || p != ResultNull {
		t.Errorf("empty polarity should default to result_null, got %q %v", p, err)
	}
	if p, err := ParsePolarity("result_present"); err != nil || p != ResultPresent {
		t.Errorf("unexpected: %q %v", p, err)
	}
	if _, err := ParsePolarity("inverted"); err == nil {
		t.Error("expected error for unknown polarity")
	}
}
