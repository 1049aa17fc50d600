package types

import (
	"context"
	"io"
)

// Store is the durable work queue.
type Store interface {
	ListAll(ctx context.Context) ([]WorkItem, error)
	ListEligible(ctx context.Context) ([]WorkItem, error)
	CountEligible(ctx context.Context) (int, error)
	Insert(ctx context.Context, url string) (id int64, created bool, err error)
	UpdateStatus(ctx context.Context, item WorkItem) error
}

// Response is an opened byte source for one URL.
// Length is the declared size; zero or negative means unknown.
type Response struct {
	StatusCode int
	Status     string
	Length     int64
	FileName   string
	Body       io.ReadCloser
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher opens a URL for reading. Implementations return an error wrapping
// ErrMalformedURL for URLs that can never succeed.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (*Response, error)
}

// Sink receives the bytes of one transfer.
type Sink interface {
	io.Writer
	// Commit finalizes the destination and returns its path.
	Commit() (string, error)
	// Abort discards everything written so far.
	Abort() error
}

type SinkOpener interface {
	OpenSink(item WorkItem, fileName string) (Sink, error)
}

// Observer renders orchestration events. The orchestrator never calls an
// observer concurrently.
type Observer interface {
	Started()
	Progress(percent int)
	Finished(outcome Outcome)
}

// CancelSource is implemented by observers that can ask for the whole run
// to be cancelled, e.g. from a user-facing cancel control.
type CancelSource interface {
	CancelRequested() <-chan struct{}
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Started()         {}
func (NopObserver) Progress(int)     {}
func (NopObserver) Finished(Outcome) {}
