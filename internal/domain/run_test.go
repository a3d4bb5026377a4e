package domain

import (
	"errors"
	"testing"
	"time"
)

// --- Run Tests ---

func TestNewRun(t *testing.T) {
	slot := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	run := NewRun("stock_market", slot, TriggerSchedule)

	if run.Status != RunStatusPending {
		t.Errorf("expected pending, got %s", run.Status)
	}
	if run.IdempotencyKey != "stock_market@2024-03-01T00:00:00Z" {
		t.Errorf("unexpected idempotency key: %s", run.IdempotencyKey)
	}
	if !run.ScheduledAt.Equal(slot) {
		t.Errorf("expected slot %v, got %v", slot, run.ScheduledAt)
	}
}

func TestRun_Lifecycle_Succeeded(t *testing.T) {
	run := NewRun("p", time.Now(), TriggerManual)

	if err := run.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if run.StartedAt == nil {
		t.Error("StartedAt should be set")
	}
	if err := run.MarkSucceeded(); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	if !run.IsFinished() {
		t.Error("run should be finished")
	}
	if run.Duration() < 0 {
		t.Error("duration should not be negative")
	}
}

func TestRun_TerminalIsFinal(t *testing.T) {
	run := NewRun("p", time.Now(), TriggerManual)
	_ = run.MarkRunning()
	_ = run.MarkFailed("boom")

	if err := run.MarkRunning(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := run.MarkSucceeded(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("status should stay failed, got %s", run.Status)
	}
	if run.Error != "boom" {
		t.Errorf("expected error boom, got %q", run.Error)
	}
}

func TestRun_PendingCannotFinish(t *testing.T) {
	run := NewRun("p", time.Now(), TriggerManual)

	if err := run.MarkSucceeded(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> succeeded should be rejected, got %v", err)
	}
}

func TestRun_FailedStage(t *testing.T) {
	run := NewRun("p", time.Now(), TriggerManual)
	run.AddOutcome(StageOutcome{Stage: "a", Status: OutcomeSucceeded})
	run.AddOutcome(StageOutcome{Stage: "b", Status: OutcomeFailed})
	run.AddOutcome(StageOutcome{Stage: "c", Status: OutcomeSkipped})

	if got := run.FailedStage(); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if _, ok := run.Outcome("c"); !ok {
		t.Error("outcome c should exist")
	}
}

func TestParseRunStatus(t *testing.T) {
	tests := []struct {
		in   string
		want RunStatus
		ok   bool
	}{
		{"pending", RunStatusPending, true},
		{"running", RunStatusRunning, true},
		{"succeeded", RunStatusSucceeded, true},
		{"failed", RunStatusFailed, true},
		{"FAILED", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRunStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRunStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// --- Reference Tests ---

func TestReference_Object(t *testing.T) {
	ref := ObjectRef("stock-market", "AAPL/prices.json")

	if ref != "s3://stock-market/AAPL/prices.json" {
		t.Fatalf("unexpected ref: %s", ref)
	}

	bucket, key, err := ref.Object()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "stock-market" || key != "AAPL/prices.json" {
		t.Errorf("got %s %s", bucket, key)
	}

	dir, err := ref.Dir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "AAPL" {
		t.Errorf("expected AAPL, got %s", dir)
	}
}

func TestReference_NotObject(t *testing.T) {
	for _, ref := range []Reference{"", "https://api.example.com/v8/", "s3://bucket", "s3:///key"} {
		if _, _, err := ref.Object(); !errors.Is(err, ErrNotObjectRef) {
			t.Errorf("%q: expected ErrNotObjectRef, got %v", ref, err)
		}
	}
}

func TestReference_Prefix(t *testing.T) {
	ref := ObjectRef("b", "AAPL/formatted_prices/")
	if !ref.IsPrefix() {
		t.Error("should be prefix")
	}
	dir, _ := ref.Dir()
	if dir != "AAPL/formatted_prices" {
		t.Errorf("unexpected dir %s", dir)
	}
}
