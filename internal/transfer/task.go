package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// Result is the tagged outcome of one task: Err == nil is success.
type Result struct {
	Item       types.WorkItem
	OutputPath string
	Bytes      int64
	Err        error
}

func (r Result) Cancelled() bool {
	return errors.Is(r.Err, types.ErrCancelled)
}

// Task transfers one URL into a sink while reporting into a shared State.
type Task struct {
	Fetcher  types.Fetcher
	Sinks    types.SinkOpener
	State    *State
	Observer types.Observer
}

func (t *Task) Run(ctx context.Context, item types.WorkItem) Result {
	log := utils.GetLogger("transfer").With().Int64("id", item.ID).Str("url", item.URL).Logger()
	res := Result{Item: item}

	resp, err := t.Fetcher.Open(ctx, item.URL)
	if err != nil {
		return t.fail(ctx, res, err)
	}
	defer resp.Body.Close()
	if !resp.OK() {
		return t.fail(ctx, res, &types.TransportError{StatusCode: resp.StatusCode, Message: resp.Status})
	}

	t.State.Register(item.URL, resp.Length)
	chunk := ChunkSize(resp.Length)
	log.Debug().Str("op", "transfer/run").Msgf("declared %d bytes, chunk size %d", resp.Length, chunk)

	sink, err := t.Sinks.OpenSink(item, resp.FileName)
	if err != nil {
		return t.fail(ctx, res, fmt.Errorf("error opening sink: %w", err))
	}
	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			sink.Abort()
			return t.fail(ctx, res, err)
		}
		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				sink.Abort()
				return t.fail(ctx, res, fmt.Errorf("error writing chunk: %w", err))
			}
			res.Bytes += int64(n)
			t.Observer.Progress(t.State.Add(item.URL, int64(n)))
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			sink.Abort()
			return t.fail(ctx, res, readErr)
		}
	}

	path, err := sink.Commit()
	if err != nil {
		return t.fail(ctx, res, err)
	}
	res.OutputPath = path
	log.Info().Str("op", "transfer/run").Msgf("completed %s (%s)", path, utils.FormatBytes(uint64(res.Bytes)))
	t.Observer.Finished(types.Outcome{URL: item.URL, OutputPath: path, Bytes: res.Bytes})
	return res
}

// fail settles a task that did not finish. Cancellation discards the entry
// without telling the observer.
func (t *Task) fail(ctx context.Context, res Result, cause error) Result {
	if ctx.Err() != nil {
		t.State.Discard(res.Item.URL)
		if !errors.Is(cause, types.ErrCancelled) {
			cause = fmt.Errorf("%w: %w", types.ErrCancelled, cause)
		}
		res.Err = cause
		return res
	}
	t.State.Fail(res.Item.URL)
	res.Err = cause
	log := utils.GetLogger("transfer")
	log.Warn().Str("op", "transfer/run").Int64("id", res.Item.ID).
		Str("url", res.Item.URL).Err(cause).Msg("transfer failed")
	t.Observer.Finished(types.Outcome{URL: res.Item.URL, Bytes: res.Bytes, Err: cause})
	return res
}
