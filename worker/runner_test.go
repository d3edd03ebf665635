package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"receiptflow/pipeline"
)

type countingCycler struct {
	runs atomic.Int64
	err  error
}

func (c *countingCycler) RunCycle(context.Context) (pipeline.CycleStats, error) {
	c.runs.Add(1)
	return pipeline.CycleStats{Delivered: 1}, c.err
}

func TestRunner_RunsImmediatelyThenOnInterval(t *testing.T) {
	cycler := &countingCycler{}
	runner := NewRunner(10*time.Millisecond, cycler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for cycler.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 cycles, got %d", cycler.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunner_CycleErrorDoesNotStopScheduling(t *testing.T) {
	cycler := &countingCycler{err: errors.New("pipeline: list tenants: boom")}
	runner := NewRunner(5*time.Millisecond, cycler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := runner.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if cycler.runs.Load() < 2 {
		t.Fatalf("expected failing cycles to keep scheduling, got %d runs", cycler.runs.Load())
	}
}
