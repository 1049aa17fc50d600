package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/pullq/internal/transfer"
	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// MaxConcurrent caps transfers per pass; 0 means one goroutine per item.
	MaxConcurrent int
	// MaxPasses bounds passes per run; 0 means until nothing is eligible.
	MaxPasses     int
	PassBackoff   time.Duration
	BackoffFactor float64
}

func DefaultOptions() Options {
	return Options{
		MaxPasses:     5,
		PassBackoff:   2 * time.Second,
		BackoffFactor: 2,
	}
}

// PassStats counts settlements of one pass.
type PassStats struct {
	Completed int
	Failed    int
	Ignored   int
	Cancelled int
}

// Orchestrator drains the eligible items of a store in passes.
type Orchestrator struct {
	store    types.Store
	fetcher  types.Fetcher
	sinks    types.SinkOpener
	observer types.Observer
	opts     Options
}

func New(store types.Store, fetcher types.Fetcher, sinks types.SinkOpener, observer types.Observer, opts Options) *Orchestrator {
	if observer == nil {
		observer = types.NopObserver{}
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 1
	}
	return &Orchestrator{
		store:    store,
		fetcher:  fetcher,
		sinks:    sinks,
		observer: observer,
		opts:     opts,
	}
}

// Run executes passes until no eligible item is left. It returns an error
// wrapping types.ErrStore when the store fails, types.ErrCancelled on
// cancellation and types.ErrRetryLater when the deadline hits or passes run
// out.
func (o *Orchestrator) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := utils.GetLogger("engine").With().Str("run", runID).Logger()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if cs, ok := o.observer.(types.CancelSource); ok {
		go func() {
			select {
			case <-cs.CancelRequested():
				log.Info().Str("op", "engine/run").Msg("cancel requested")
				cancel(types.ErrCancelled)
			case <-ctx.Done():
			}
		}()
	}

	obs := newSerialObserver(o.observer)
	var failed []string
	for pass := 1; ; pass++ {
		items, err := o.store.ListEligible(ctx)
		if err != nil {
			return o.storeErr(ctx, "listing eligible items", err)
		}
		if len(items) > 0 {
			log.Info().Str("op", "engine/run").Int("pass", pass).Msgf("starting pass with %d items", len(items))
			state := transfer.NewState(failed...)
			results := o.runPass(ctx, items, state, obs)
			failed = state.FailedURLs()

			stats, err := o.settle(context.WithoutCancel(ctx), results)
			log.Info().Str("op", "engine/run").Int("pass", pass).
				Int("completed", stats.Completed).Int("failed", stats.Failed).
				Int("ignored", stats.Ignored).Int("cancelled", stats.Cancelled).
				Msg("pass settled")
			if err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return runCancelled(ctx)
		}

		remaining, err := o.store.CountEligible(ctx)
		if err != nil {
			return o.storeErr(ctx, "counting eligible items", err)
		}
		if remaining == 0 {
			log.Info().Str("op", "engine/run").Int("passes", pass).Msg("queue drained")
			return nil
		}
		if o.opts.MaxPasses > 0 && pass >= o.opts.MaxPasses {
			log.Warn().Str("op", "engine/run").Int("eligible", remaining).Msg("pass limit reached")
			return fmt.Errorf("%w: %d items still eligible after %d passes", types.ErrRetryLater, remaining, pass)
		}
		if err := o.backoff(ctx, log, pass); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) runPass(ctx context.Context, items []types.WorkItem, state *transfer.State, obs types.Observer) []transfer.Result {
	task := &transfer.Task{
		Fetcher:  o.fetcher,
		Sinks:    o.sinks,
		State:    state,
		Observer: obs,
	}
	obs.Started()

	results := make([]transfer.Result, len(items))
	var g errgroup.Group
	if o.opts.MaxConcurrent > 0 {
		g.SetLimit(o.opts.MaxConcurrent)
	}
	for i, item := range items {
		g.Go(func() error {
			results[i] = task.Run(ctx, item)
			return nil
		})
	}
	g.Wait()
	return results
}

// settle persists results after the barrier. Cancelled results keep their
// stored status.
func (o *Orchestrator) settle(ctx context.Context, results []transfer.Result) (PassStats, error) {
	var stats PassStats
	for _, r := range results {
		item := r.Item
		switch {
		case r.Err == nil:
			item.Status = types.StatusCompleted
			item.OutputPath = r.OutputPath
			item.LastError = ""
			stats.Completed++
		case r.Cancelled():
			stats.Cancelled++
			continue
		case errors.Is(r.Err, types.ErrMalformedURL):
			item.Status = types.StatusIgnored
			item.Attempts++
			item.LastError = r.Err.Error()
			stats.Ignored++
		default:
			item.Status = types.StatusFailed
			item.Attempts++
			item.LastError = r.Err.Error()
			stats.Failed++
		}
		if err := o.store.UpdateStatus(ctx, item); err != nil {
			return stats, fmt.Errorf("%w: updating item %d: %w", types.ErrStore, item.ID, err)
		}
	}
	return stats, nil
}

func (o *Orchestrator) backoff(ctx context.Context, log zerolog.Logger, pass int) error {
	d := time.Duration(float64(o.opts.PassBackoff) * math.Pow(o.opts.BackoffFactor, float64(pass-1)))
	if d <= 0 {
		return nil
	}
	log.Debug().Str("op", "engine/backoff").Msgf("waiting %s before pass %d", d, pass+1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return runCancelled(ctx)
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) storeErr(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return runCancelled(ctx)
	}
	if errors.Is(err, types.ErrStore) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrStore, what, err)
}

// runCancelled maps a done context to the run's error. Deadlines are
// retryable, explicit cancels are not.
func runCancelled(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", types.ErrRetryLater, context.DeadlineExceeded)
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, types.ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", types.ErrCancelled, cause)
}
