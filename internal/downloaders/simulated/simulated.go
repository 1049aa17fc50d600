package simulated

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/tanq16/pullq/internal/types"
)

const DefaultSize = 100 * 1024

// Fetcher serves generated bytes instead of touching the network. The URL
// query controls the behavior:
//
//	size=N        declared and served length (default DefaultSize)
//	unknown=1     serve N bytes without declaring a length
//	status=N      response status (default 200)
//	fail=open     transport error before any byte
//	fail=malformed reject the URL as malformed
//	failAfter=N   transport error after N bytes
//	delay=D       pause before each read (default Fetcher.Delay)
type Fetcher struct {
	Delay time.Duration
	// ReadSize caps bytes returned per Read so pacing is visible.
	ReadSize int
}

var _ types.Fetcher = (*Fetcher)(nil)

func New(delay time.Duration) *Fetcher {
	return &Fetcher{Delay: delay, ReadSize: 4096}
}

type params struct {
	size      int64
	unknown   bool
	status    int
	fail      string
	failAfter int64
	delay     time.Duration
}

func (f *Fetcher) parse(rawURL string) (params, error) {
	p := params{size: DefaultSize, status: http.StatusOK, failAfter: -1, delay: f.Delay}
	u, err := url.Parse(rawURL)
	if err != nil {
		return p, types.Malformed(rawURL, err)
	}
	q := u.Query()
	intParam := func(key string, dst *int64) error {
		if v := q.Get(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return types.Malformed(rawURL, fmt.Errorf("invalid %s %q", key, v))
			}
			*dst = n
		}
		return nil
	}
	if err := intParam("size", &p.size); err != nil {
		return p, err
	}
	if err := intParam("failAfter", &p.failAfter); err != nil {
		return p, err
	}
	status := int64(p.status)
	if err := intParam("status", &status); err != nil {
		return p, err
	}
	p.status = int(status)
	if v := q.Get("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return p, types.Malformed(rawURL, err)
		}
		p.delay = d
	}
	p.unknown = q.Get("unknown") == "1" || q.Get("unknown") == "true"
	p.fail = q.Get("fail")
	return p, nil
}

func (f *Fetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	p, err := f.parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch p.fail {
	case "malformed":
		return nil, types.Malformed(rawURL, errors.New("simulated"))
	case "open":
		return nil, &types.TransportError{Err: errors.New("simulated connection failure")}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	u, _ := url.Parse(rawURL)
	length := p.size
	if p.unknown {
		length = -1
	}
	readSize := f.ReadSize
	if readSize <= 0 {
		readSize = 4096
	}
	return &types.Response{
		StatusCode: p.status,
		Status:     http.StatusText(p.status),
		Length:     length,
		FileName:   path.Base(u.Path),
		Body: &body{
			ctx:       ctx,
			remaining: p.size,
			failAfter: p.failAfter,
			delay:     p.delay,
			readSize:  readSize,
		},
	}, nil
}

type body struct {
	ctx       context.Context
	served    int64
	remaining int64
	failAfter int64
	delay     time.Duration
	readSize  int
}

func (b *body) Read(buf []byte) (int, error) {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		select {
		case <-b.ctx.Done():
			timer.Stop()
			return 0, b.ctx.Err()
		case <-timer.C:
		}
	} else if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	if b.failAfter >= 0 && b.served >= b.failAfter {
		return 0, &types.TransportError{Err: errors.New("simulated connection reset")}
	}
	if b.remaining == 0 {
		return 0, io.EOF
	}
	n := min(int64(len(buf)), int64(b.readSize), b.remaining)
	if b.failAfter >= 0 {
		n = min(n, b.failAfter-b.served)
	}
	for i := range n {
		buf[i] = Pattern(b.served + i)
	}
	b.served += n
	b.remaining -= n
	return int(n), nil
}

func (b *body) Close() error { return nil }

// Pattern is the byte served at offset off.
func Pattern(off int64) byte {
	return byte(off % 251)
}
