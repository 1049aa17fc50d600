package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/pullq/internal/types"
)

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func fastOptions(retries int) Options {
	return Options{RunTimeout: time.Second, RunRetries: retries, RetryBackoff: time.Millisecond}
}

func TestSchedule_RetriesRetryableFailures(t *testing.T) {
	var calls atomic.Int32
	s := New(runFunc(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return types.ErrRetryLater
		}
		return nil
	}), fastOptions(3))

	if err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}

func TestSchedule_GivesUp(t *testing.T) {
	var calls atomic.Int32
	s := New(runFunc(func(ctx context.Context) error {
		calls.Add(1)
		return types.ErrStore
	}), fastOptions(2))

	err := s.Schedule(context.Background())
	if !errors.Is(err, types.ErrStore) {
		t.Fatalf("Schedule() error = %v, want ErrStore", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}

func TestSchedule_NoRetryOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := New(runFunc(func(ctx context.Context) error {
		calls.Add(1)
		return types.ErrCancelled
	}), fastOptions(3))

	if err := s.Schedule(context.Background()); !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestSchedule_AppliesDeadline(t *testing.T) {
	s := New(runFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("run context has no deadline")
		}
		return nil
	}), fastOptions(0))

	if err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
}

func TestSchedule_CoalescesConcurrentTriggers(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 10)
	var calls atomic.Int32
	s := New(runFunc(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-release
		}
		return nil
	}), fastOptions(0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Schedule(context.Background()); err != nil {
			t.Errorf("first Schedule() error = %v", err)
		}
	}()
	<-entered
	for range 3 {
		if err := s.Schedule(context.Background()); err != nil {
			t.Errorf("overlapping Schedule() error = %v", err)
		}
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 2 {
		t.Errorf("runs = %d, want 2 (one coalesced rerun)", got)
	}
}

// Every trigger that returns nil must be followed by a run that starts after
// it, including triggers that land while the active run is winding down.
func TestSchedule_NoTriggerLost(t *testing.T) {
	for round := range 200 {
		var triggers, lastSeen atomic.Int64
		s := New(runFunc(func(ctx context.Context) error {
			lastSeen.Store(triggers.Load())
			return nil
		}), fastOptions(0))

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				triggers.Add(1)
				if err := s.Schedule(context.Background()); err != nil {
					t.Errorf("Schedule() error = %v", err)
				}
			}()
		}
		wg.Wait()

		if got, want := lastSeen.Load(), triggers.Load(); got != want {
			t.Fatalf("round %d: last run saw %d of %d triggers", round, got, want)
		}
	}
}

func TestSchedule_ClearsRunningOnError(t *testing.T) {
	var calls atomic.Int32
	s := New(runFunc(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return types.ErrCancelled
		}
		return nil
	}), fastOptions(0))

	if err := s.Schedule(context.Background()); !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("first Schedule() error = %v", err)
	}
	if err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("second Schedule() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}
