package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/mq"
	"github.com/shaiso/Stockpipe/internal/notify"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/sensor"
	"github.com/shaiso/Stockpipe/internal/stage"
	"github.com/shaiso/Stockpipe/internal/steps"
	"github.com/shaiso/Stockpipe/internal/telemetry"
)

const apiURL = domain.Reference("https://query1.finance.yahoo.com/v8/finance/chart/")

var (
	slot    = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

// fakeClock — часы, которые двигаются только паузами sensor'а и backoff.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: slot.Add(time.Hour)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// fakeRunStore запоминает сохранённые статусы.
type fakeRunStore struct {
	mu       sync.Mutex
	statuses []domain.RunStatus
	last     domain.Run
	err      error
}

func (s *fakeRunStore) Save(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, run.Status)
	s.last = *run
	return s.err
}

// fakeNotifier считает уведомления и сигналит в done.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
	done chan notify.Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan notify.Notification, 8)}
}

func (n *fakeNotifier) Send(ctx context.Context, msg notify.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	n.done <- msg
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) wait(t *testing.T) notify.Notification {
	t.Helper()
	select {
	case msg := <-n.done:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return notify.Notification{}
	}
}

// counting оборачивает stage и считает вызовы.
type counting struct {
	mu    sync.Mutex
	calls int
	ins   []domain.Reference
	st    stage.Stage
}

func (c *counting) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	c.mu.Lock()
	c.calls++
	c.ins = append(c.ins, in)
	c.mu.Unlock()
	return c.st.Execute(ctx, in)
}

func (c *counting) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func returns(out domain.Reference) *counting {
	return &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		return out, nil
	})}
}

func failsWith(err error) *counting {
	return &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		return "", err
	})}
}

func readyProbe(ref domain.Reference) sensor.Probe {
	return sensor.ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		return true, ref, nil
	})
}

func buildPipeline(t *testing.T, maxAttempts int, names ...string) *engine.Pipeline {
	t.Helper()

	spec := &domain.PipelineSpec{
		Name:   "stock_market",
		Sensor: domain.SensorDef{IntervalSec: 30, TimeoutSec: 300},
		Defaults: &domain.StageDefaults{
			Retry: &domain.RetryPolicy{MaxAttempts: maxAttempts, InitialDelayMs: 100},
		},
	}
	for _, n := range names {
		spec.Stages = append(spec.Stages, domain.StageDef{Name: n})
	}

	p, err := engine.BuildPipeline(spec)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return p
}

type fixture struct {
	coord    *Coordinator
	clock    *fakeClock
	store    *fakeRunStore
	notifier *fakeNotifier
}

func newFixture(t *testing.T, p *engine.Pipeline, probe sensor.Probe, set map[string]stage.Stage) *fixture {
	t.Helper()

	f := &fixture{
		clock:    newFakeClock(),
		store:    &fakeRunStore{},
		notifier: newFakeNotifier(),
	}

	coord, err := New(Config{
		Pipeline:   p,
		Stages:     set,
		Probe:      probe,
		Notifier:   f.notifier,
		RunStore:   f.store,
		Logger:     telemetry.Discard(),
		Sleep:      f.clock.Sleep,
		SensorWait: f.clock.Wait,
		Now:        f.clock.Now,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Stop)

	f.coord = coord
	return f
}

func outcomeStatuses(run *domain.Run) []domain.OutcomeStatus {
	out := make([]domain.OutcomeStatus, 0, len(run.Outcomes))
	for _, o := range run.Outcomes {
		out = append(out, o.Status)
	}
	return out
}

func assertStatuses(t *testing.T, run *domain.Run, want ...domain.OutcomeStatus) {
	t.Helper()
	got := outcomeStatuses(run)
	if len(got) != len(want) {
		t.Fatalf("expected outcomes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outcome %d (%s): expected %s, got %s", i, run.Outcomes[i].Stage, want[i], got[i])
		}
	}
}

// --- Scenario Tests ---

func TestCoordinator_Succeeded(t *testing.T) {
	store := objectstore.NewMemoryStore()
	ctx := context.Background()

	storePrices := &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		return store.Put(ctx, "stock-market", "A/prices.json", []byte(`{"meta":{}}`))
	})}
	formatPrices := &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		if _, err := store.Put(ctx, "stock-market", "A/formatted_prices/out.csv", []byte("close\n1.5\n")); err != nil {
			return "", err
		}
		return domain.ObjectRef("stock-market", "A/formatted_prices/"), nil
	})}
	csv := &counting{st: &steps.GetFormattedCSV{Store: store}}
	load := returns("pg://public.stock_market")

	p := buildPipeline(t, 3, "store_prices", "format_prices", "get_formatted_csv", "load_to_dw")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{
		"store_prices":      storePrices,
		"format_prices":     formatPrices,
		"get_formatted_csv": csv,
		"load_to_dw":        load,
	})

	run, err := f.coord.Trigger(ctx, slot, domain.TriggerSchedule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", run.Status, run.Error)
	}
	assertStatuses(t, run, domain.OutcomeSucceeded, domain.OutcomeSucceeded, domain.OutcomeSucceeded, domain.OutcomeSucceeded)

	// Выход stage N — вход stage N+1 без изменений
	if storePrices.ins[0] != apiURL {
		t.Errorf("first stage should receive sensor context, got %s", storePrices.ins[0])
	}
	if formatPrices.ins[0] != "s3://stock-market/A/prices.json" {
		t.Errorf("unexpected format input: %s", formatPrices.ins[0])
	}
	if load.ins[0] != "s3://stock-market/A/formatted_prices/out.csv" {
		t.Errorf("unexpected load input: %s", load.ins[0])
	}

	if f.notifier.count() != 1 {
		t.Errorf("expected exactly 1 notification, got %d", f.notifier.count())
	}
	if msg := f.notifier.sent[0]; msg.Status != domain.RunStatusSucceeded || !strings.Contains(msg.Message, "Succeeded") {
		t.Errorf("unexpected notification: %+v", msg)
	}

	if f.store.last.Status != domain.RunStatusSucceeded {
		t.Errorf("last saved status should be succeeded, got %s", f.store.last.Status)
	}
	if f.store.statuses[0] != domain.RunStatusRunning {
		t.Errorf("first saved status should be running, got %s", f.store.statuses[0])
	}
	if f.coord.ActiveRunsCount() != 0 {
		t.Error("finished run should leave active registry")
	}
}

func TestCoordinator_SensorTimeout(t *testing.T) {
	probes := 0
	probe := sensor.ProbeFunc(func(ctx context.Context) (bool, domain.Reference, error) {
		probes++
		return false, "", nil
	})

	first := returns("x")
	p := buildPipeline(t, 3, "store_prices", "load_to_dw")
	f := newFixture(t, p, probe, map[string]stage.Stage{
		"store_prices": first,
		"load_to_dw":   returns("y"),
	})

	run, err := f.coord.Trigger(context.Background(), slot, domain.TriggerSchedule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if probes != 10 {
		t.Errorf("expected 10 probes within 300s/30s, got %d", probes)
	}
	if first.count() != 0 {
		t.Errorf("no stage may run after sensor timeout, got %d calls", first.count())
	}
	assertStatuses(t, run, domain.OutcomeSkipped, domain.OutcomeSkipped)
	if !strings.HasPrefix(run.Error, "sensor:") {
		t.Errorf("error should point at sensor, got %q", run.Error)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected exactly 1 notification, got %d", f.notifier.count())
	}
}

func TestCoordinator_NoCSVIsFatal(t *testing.T) {
	store := objectstore.NewMemoryStore()
	store.Put(context.Background(), "stock-market", "A/formatted_prices/_SUCCESS", nil)

	csv := &counting{st: &steps.GetFormattedCSV{Store: store}}
	load := returns("pg://public.stock_market")

	p := buildPipeline(t, 3, "format_prices", "get_formatted_csv", "load_to_dw")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{
		"format_prices":     returns(domain.ObjectRef("stock-market", "A/formatted_prices/")),
		"get_formatted_csv": csv,
		"load_to_dw":        load,
	})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerSchedule)

	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if csv.count() != 1 {
		t.Errorf("fatal stage must run exactly once, got %d", csv.count())
	}
	if load.count() != 0 {
		t.Errorf("downstream stage must not run, got %d", load.count())
	}
	assertStatuses(t, run, domain.OutcomeSucceeded, domain.OutcomeFailed, domain.OutcomeSkipped)
	if run.FailedStage() != "get_formatted_csv" {
		t.Errorf("expected failed stage get_formatted_csv, got %s", run.FailedStage())
	}
	if o, _ := run.Outcome("get_formatted_csv"); o.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", o.Attempts)
	}
}

func TestCoordinator_TransientThenSuccess(t *testing.T) {
	const maxAttempts = 4
	calls := 0
	flaky := &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		calls++
		if calls < maxAttempts {
			return "", stage.Recoverable(errBoom)
		}
		return "ok", nil
	})}

	p := buildPipeline(t, maxAttempts, "a", "b")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{
		"a": flaky,
		"b": returns("done"),
	})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)

	if run.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", run.Status, run.Error)
	}
	if o, _ := run.Outcome("a"); o.Attempts != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, o.Attempts)
	}
	if len(f.clock.sleeps) != maxAttempts-1 {
		t.Errorf("expected %d backoff sleeps, got %v", maxAttempts-1, f.clock.sleeps)
	}
}

func TestCoordinator_RetryExhausted(t *testing.T) {
	a := failsWith(errBoom)
	b := returns("x")

	p := buildPipeline(t, 3, "a", "b")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": a, "b": b})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)

	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if a.count() != 3 || b.count() != 0 {
		t.Errorf("expected 3/0 calls, got %d/%d", a.count(), b.count())
	}
	if !strings.Contains(run.Error, stage.ErrRetryExhausted.Error()) {
		t.Errorf("error should mention exhausted retries, got %q", run.Error)
	}
}

func TestCoordinator_FatalStopsChain(t *testing.T) {
	a := returns("s3://stock-market/A/prices.json")
	b := failsWith(stage.Fatal(errBoom))
	c := returns("x")
	d := returns("y")

	p := buildPipeline(t, 5, "a", "b", "c", "d")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": a, "b": b, "c": c, "d": d})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)

	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if b.count() != 1 {
		t.Errorf("fatal stage should run once, got %d", b.count())
	}
	if c.count() != 0 || d.count() != 0 {
		t.Errorf("subsequent stages must not run, got %d/%d", c.count(), d.count())
	}
	assertStatuses(t, run, domain.OutcomeSucceeded, domain.OutcomeFailed, domain.OutcomeSkipped, domain.OutcomeSkipped)

	if o, _ := run.Outcome("a"); o.Output != "s3://stock-market/A/prices.json" {
		t.Errorf("completed outcome should keep output, got %s", o.Output)
	}
	if msg := f.notifier.sent[0]; msg.FailedStage != "b" {
		t.Errorf("notification should name failed stage, got %+v", msg)
	}
}

func TestCoordinator_StrictOrdering(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(name string) stage.Stage {
		return stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
			mu.Lock()
			events = append(events, "start "+name)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			events = append(events, "end "+name)
			mu.Unlock()
			return in + "/" + domain.Reference(name), nil
		})
	}

	p := buildPipeline(t, 1, "a", "b", "c")
	f := newFixture(t, p, readyProbe("root"), map[string]stage.Stage{
		"a": record("a"),
		"b": record("b"),
		"c": record("c"),
	})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)

	want := []string{"start a", "end a", "start b", "end b", "start c", "end c"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], events[i])
		}
	}
	if o, _ := run.Outcome("c"); o.Output != "root/a/b/c" {
		t.Errorf("references should be passed verbatim, got %s", o.Output)
	}
}

func TestCoordinator_SideEffectsIgnored(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": returns("x")})
	f.notifier.err = errors.New("slack down")
	f.store.err = errors.New("db down")

	run, err := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)
	if err != nil {
		t.Fatalf("side effect errors must not escape: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", run.Status)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.count())
	}
}

// --- Precondition Tests ---

func TestCoordinator_RunNotPending(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": returns("x")})

	run := f.coord.NewRun(slot, domain.TriggerManual)
	if err := f.coord.Execute(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Терминальный run повторно не выполняется
	if err := f.coord.Execute(context.Background(), run); !errors.Is(err, ErrRunNotPending) {
		t.Errorf("expected ErrRunNotPending, got %v", err)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.count())
	}
}

func TestCoordinator_SlotAlreadyActive(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	blocking := stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		close(started)
		<-release
		return "x", nil
	})

	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": blocking})

	first, err := f.coord.Submit(slot, domain.TriggerSchedule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	if !f.coord.IsSlotActive(slot) {
		t.Error("slot should be active")
	}
	if _, err := f.coord.Submit(slot, domain.TriggerManual); !errors.Is(err, ErrRunAlreadyActive) {
		t.Errorf("expected ErrRunAlreadyActive, got %v", err)
	}
	if err := f.coord.Execute(context.Background(), f.coord.NewRun(slot, domain.TriggerManual)); !errors.Is(err, ErrRunAlreadyActive) {
		t.Errorf("expected ErrRunAlreadyActive, got %v", err)
	}

	stats, ok := f.coord.Stats(first.ID)
	if !ok || stats.CurrentStage != "a" || stats.Phase != PhaseStages {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if active := f.coord.ActiveRuns(); len(active) != 1 || active[0].ID != first.ID {
		t.Errorf("unexpected active runs: %v", active)
	}

	close(release)
	msg := f.notifier.wait(t)
	if msg.RunID != first.ID || msg.Status != domain.RunStatusSucceeded {
		t.Errorf("unexpected notification: %+v", msg)
	}
}

func TestCoordinator_EmptyReferenceIsFatal(t *testing.T) {
	a := returns("")
	b := returns("y")

	p := buildPipeline(t, 3, "a", "b")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": a, "b": b})

	run, _ := f.coord.Trigger(context.Background(), slot, domain.TriggerManual)

	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if a.count() != 1 || b.count() != 0 {
		t.Errorf("expected a=1 b=0 executions, got %d/%d", a.count(), b.count())
	}
	if o, _ := run.Outcome("a"); !strings.Contains(o.Error, ErrEmptyReference.Error()) {
		t.Errorf("unexpected error: %s", o.Error)
	}
	assertStatuses(t, run, domain.OutcomeFailed, domain.OutcomeSkipped)
}

func TestCoordinator_Stopped(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": returns("x")})

	f.coord.Stop()

	if _, err := f.coord.Trigger(context.Background(), slot, domain.TriggerManual); !errors.Is(err, ErrCoordinatorStopped) {
		t.Errorf("expected ErrCoordinatorStopped, got %v", err)
	}
	if !f.coord.IsStopped() {
		t.Error("coordinator should report stopped")
	}
}

func TestCoordinator_Cancel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var attemptErr error
	blocking := stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		close(started)
		<-release
		attemptErr = ctx.Err()
		return "x", nil
	})
	next := returns("y")

	p := buildPipeline(t, 1, "a", "b")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": blocking, "b": next})

	run, err := f.coord.Submit(slot, domain.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	if !f.coord.Cancel(run.ID) {
		t.Fatal("active run should be cancellable")
	}
	close(release)

	msg := f.notifier.wait(t)
	if msg.Status != domain.RunStatusFailed {
		t.Errorf("cancelled run should fail, got %s", msg.Status)
	}
	if attemptErr != nil {
		t.Errorf("running attempt must not be interrupted, got %v", attemptErr)
	}
	if next.count() != 0 {
		t.Error("stage after cancellation must not run")
	}

	if f.coord.Cancel(run.ID) {
		t.Error("finished run should not be cancellable")
	}

	// Сохранённый run: a — succeeded, b — skipped
	f.store.mu.Lock()
	last := f.store.last
	f.store.mu.Unlock()
	assertStatuses(t, &last, domain.OutcomeSucceeded, domain.OutcomeSkipped)
}

// --- Concurrent Runs Tests ---

// sharedPrefixPipeline — format и csv stages на общем префиксе, как у stock_market.
// Первый вызов format блокируется до release.
func sharedPrefixPipeline(t *testing.T, release <-chan struct{}) (*fixture, *counting, chan struct{}) {
	t.Helper()

	store := objectstore.NewMemoryStore()
	prefix := "AAPL/formatted_prices/"
	firstIn := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	format := &counting{st: stage.Func(func(ctx context.Context, in domain.Reference) (domain.Reference, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if err := store.RemovePrefix(ctx, "stock-market", prefix); err != nil {
			return "", err
		}
		if _, err := store.Put(ctx, "stock-market", prefix+"part-0.csv", []byte("close\n1\n")); err != nil {
			return "", err
		}
		if n == 1 {
			close(firstIn)
			<-release
		}
		return domain.ObjectRef("stock-market", prefix), nil
	})}

	p := buildPipeline(t, 1, "format_prices", "get_formatted_csv")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{
		"format_prices":     format,
		"get_formatted_csv": &steps.GetFormattedCSV{Store: store},
	})
	return f, format, firstIn
}

func waitPhase(t *testing.T, c *Coordinator, id uuid.UUID, phase string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if stats, ok := c.Stats(id); ok && stats.Phase == phase {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach phase %s", id, phase)
}

func TestCoordinator_OverlappingRunsQueueStages(t *testing.T) {
	release := make(chan struct{})
	f, format, firstIn := sharedPrefixPipeline(t, release)

	first, err := f.coord.Submit(slot, domain.TriggerSchedule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-firstIn

	// Другой слот принимается, но ждёт окончания stages первого run
	second, err := f.coord.Submit(slot.Add(24*time.Hour), domain.TriggerManual)
	if err != nil {
		t.Fatalf("different slot should be accepted: %v", err)
	}
	waitPhase(t, f.coord, second.ID, PhaseQueued)

	if format.count() != 1 {
		t.Errorf("second run must not start stages while first is in progress, got %d format calls", format.count())
	}
	if f.coord.ActiveRunsCount() != 2 {
		t.Errorf("expected 2 active runs, got %d", f.coord.ActiveRunsCount())
	}

	close(release)

	got := map[string]domain.RunStatus{}
	for range 2 {
		msg := f.notifier.wait(t)
		got[msg.RunID.String()] = msg.Status
	}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		if got[id.String()] != domain.RunStatusSucceeded {
			t.Errorf("run %s: expected succeeded, got %s", id, got[id.String()])
		}
	}
	if format.count() != 2 {
		t.Errorf("expected 2 format calls, got %d", format.count())
	}
}

func TestCoordinator_CancelWhileQueued(t *testing.T) {
	release := make(chan struct{})
	f, format, firstIn := sharedPrefixPipeline(t, release)

	first, _ := f.coord.Submit(slot, domain.TriggerSchedule)
	<-firstIn

	second, err := f.coord.Submit(slot.Add(24*time.Hour), domain.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitPhase(t, f.coord, second.ID, PhaseQueued)

	if !f.coord.Cancel(second.ID) {
		t.Fatal("queued run should be cancellable")
	}

	msg := f.notifier.wait(t)
	if msg.RunID != second.ID || msg.Status != domain.RunStatusFailed {
		t.Errorf("queued run should fail first, got %+v", msg)
	}

	close(release)
	if msg := f.notifier.wait(t); msg.RunID != first.ID || msg.Status != domain.RunStatusSucceeded {
		t.Errorf("first run should succeed, got %+v", msg)
	}
	if format.count() != 1 {
		t.Errorf("cancelled run must not execute stages, got %d format calls", format.count())
	}
}

// --- Notifier Tests ---

type panicNotifier struct{}

func (panicNotifier) Send(ctx context.Context, msg notify.Notification) error {
	panic("webhook client is nil")
}

func TestCoordinator_NotifierPanicIgnored(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	coord, err := New(Config{
		Pipeline: p,
		Stages:   map[string]stage.Stage{"a": returns("x")},
		Probe:    readyProbe(apiURL),
		Notifier: panicNotifier{},
		Logger:   telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coord.Stop)

	run, err := coord.Trigger(context.Background(), slot, domain.TriggerManual)
	if err != nil {
		t.Fatalf("notifier panic must not escape: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", run.Status)
	}
	if coord.ActiveRunsCount() != 0 {
		t.Error("run should leave active registry")
	}
}

func TestNew_Validation(t *testing.T) {
	p := buildPipeline(t, 1, "a", "b")

	if _, err := New(Config{Pipeline: p}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	_, err := New(Config{
		Pipeline: p,
		Probe:    readyProbe(apiURL),
		Stages:   map[string]stage.Stage{"a": returns("x")},
	})
	if !errors.Is(err, ErrMissingStage) {
		t.Errorf("expected ErrMissingStage, got %v", err)
	}
}

// --- Handler Tests ---

func TestHandleTrigger(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": returns("x")})

	delivery := &mq.Delivery{Message: mq.Message{
		ID:      "m-1",
		Type:    mq.MessageTypeRunTrigger,
		Payload: map[string]any{"scheduled_at": slot.Format(time.RFC3339), "requested_by": "cli"},
	}}

	if err := f.coord.HandleTrigger(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := f.notifier.wait(t)
	if !msg.ScheduledAt.Equal(slot) {
		t.Errorf("expected slot %v, got %v", slot, msg.ScheduledAt)
	}
}

func TestHandleTrigger_InvalidPayload(t *testing.T) {
	p := buildPipeline(t, 1, "a")
	f := newFixture(t, p, readyProbe(apiURL), map[string]stage.Stage{"a": returns("x")})

	delivery := &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeRunTrigger, Payload: "garbage"}}

	if err := f.coord.HandleTrigger(context.Background(), delivery); !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected ErrPermanent, got %v", err)
	}
}
