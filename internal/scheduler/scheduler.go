package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// Runner is one orchestration run.
type Runner interface {
	Run(ctx context.Context) error
}

type Options struct {
	// RunTimeout bounds every attempt; 0 disables the deadline.
	RunTimeout time.Duration
	// RunRetries is how many extra attempts a retryable failure gets.
	RunRetries   int
	RetryBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		RunTimeout:   10 * time.Minute,
		RunRetries:   3,
		RetryBackoff: 5 * time.Second,
	}
}

// Scheduler runs at most one orchestration at a time. A Schedule call that
// arrives while a run is active is folded into one more run after it.
type Scheduler struct {
	runner  Runner
	opts    Options
	mu      sync.Mutex
	running bool
	rerun   bool
}

func New(runner Runner, opts Options) *Scheduler {
	return &Scheduler{runner: runner, opts: opts}
}

// Schedule triggers a run. It returns nil right away when another caller's
// run is active; that caller runs again once it finishes.
func (s *Scheduler) Schedule(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		log := utils.GetLogger("scheduler")
		log.Debug().Str("op", "scheduler/schedule").Msg("run in flight, queued another")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	for {
		err := s.runWithRetries(ctx)
		s.mu.Lock()
		if err != nil || !s.rerun {
			// clear running in the same critical section that saw no rerun
			s.running = false
			s.rerun = false
			s.mu.Unlock()
			return err
		}
		s.rerun = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) runWithRetries(ctx context.Context) error {
	log := utils.GetLogger("scheduler")
	var err error
	for attempt := 0; attempt <= s.opts.RunRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * s.opts.RetryBackoff
			log.Warn().Str("op", "scheduler/run").Err(err).Msgf("retrying run in %s (attempt %d/%d)", wait, attempt+1, s.opts.RunRetries+1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
			case <-time.After(wait):
			}
		}
		err = s.runOnce(ctx)
		if err == nil || !types.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("run failed after %d attempts: %w", s.opts.RunRetries+1, err)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	return s.runner.Run(ctx)
}
