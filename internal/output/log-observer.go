package output

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// LogObserver reports events through zerolog for non-interactive runs.
// Progress is logged only when it moves by at least Step points.
type LogObserver struct {
	log        zerolog.Logger
	Step       int
	last       int
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// Surface is an observer the CLI can cancel from a signal handler.
type Surface interface {
	types.Observer
	types.CancelSource
	RequestCancel()
}

var (
	_ Surface = (*LogObserver)(nil)
	_ Surface = (*Manager)(nil)
)

func NewLogObserver() *LogObserver {
	return &LogObserver{
		log:      utils.GetLogger("progress"),
		Step:     10,
		last:     -1,
		cancelCh: make(chan struct{}),
	}
}

func (l *LogObserver) Started() {
	l.last = -1
	l.log.Info().Str("op", "progress/started").Msg("pass started")
}

func (l *LogObserver) Progress(percent int) {
	if l.last >= 0 && percent < 100 && percent-l.last < l.Step && percent >= l.last {
		return
	}
	l.last = percent
	l.log.Info().Str("op", "progress/update").Int("percent", percent).Msg("progress")
}

func (l *LogObserver) Finished(outcome types.Outcome) {
	if outcome.Success() {
		l.log.Info().Str("op", "progress/finished").Str("url", outcome.URL).
			Str("path", outcome.OutputPath).Int64("bytes", outcome.Bytes).Msg("download complete")
		return
	}
	l.log.Error().Str("op", "progress/finished").Str("url", outcome.URL).Err(outcome.Err).Msg("unable to download")
}

func (l *LogObserver) CancelRequested() <-chan struct{} {
	return l.cancelCh
}

func (l *LogObserver) RequestCancel() {
	l.cancelOnce.Do(func() { close(l.cancelCh) })
}
