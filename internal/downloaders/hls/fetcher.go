package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Fetcher streams an HLS playlist as one byte stream: the init segment, if
// any, followed by every media segment in playlist order. MPEG-TS and
// fragmented MP4 segments are valid when concatenated.
type Fetcher struct {
	client utils.HTTPDoer
	// SizeWorkers bounds the HEAD requests used to declare a total size.
	SizeWorkers int
}

var _ types.Fetcher = (*Fetcher)(nil)

func NewFetcher(client utils.HTTPDoer) *Fetcher {
	return &Fetcher{client: client, SizeWorkers: 8}
}

// Open accepts http(s) manifest URLs and hls://host/path, which is fetched
// over https.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	log := utils.GetLogger("hls")
	target, err := manifestURL(rawURL)
	if err != nil {
		return nil, err
	}
	pl, err := loadPlaylist(ctx, target, f.client, 0)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
		}
		return nil, err
	}
	if len(pl.SegmentURLs) == 0 {
		return nil, &types.TransportError{Err: errors.New("no media segments found in manifest")}
	}
	urls := pl.urls()
	total, err := f.totalSize(ctx, urls)
	if err != nil {
		log.Warn().Str("op", "hls/open").Err(err).Msg("Could not calculate total size, length unknown")
		total = -1
	}
	log.Debug().Str("op", "hls/open").Msgf("Found %d segments (%s)", len(pl.SegmentURLs), utils.FormatBytes(uint64(max(total, 0))))

	ext := ".ts"
	if pl.InitSegment != "" {
		ext = ".mp4"
	}
	return &types.Response{
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Length:     total,
		FileName:   streamName(target) + ext,
		Body:       &segmentReader{ctx: ctx, client: f.client, urls: urls},
	}, nil
}

func manifestURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", types.Malformed(rawURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "hls":
		parsed.Scheme = "https"
	case "http", "https":
	default:
		return "", types.Malformed(rawURL, fmt.Errorf("unsupported scheme %q", parsed.Scheme))
	}
	if parsed.Host == "" {
		return "", types.Malformed(rawURL, errors.New("missing host"))
	}
	return parsed.String(), nil
}

// streamName is the manifest's base name without its extension.
func streamName(manifestURL string) string {
	parsed, err := url.Parse(manifestURL)
	if err != nil {
		return "stream"
	}
	base := path.Base(parsed.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "stream"
	}
	return base
}

// totalSize sums Content-Length over HEAD requests for every segment.
func (f *Fetcher) totalSize(ctx context.Context, urls []string) (int64, error) {
	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.SizeWorkers, 1))
	for _, segmentURL := range urls {
		g.Go(func() error {
			size, err := f.headSize(ctx, segmentURL)
			if err != nil {
				return err
			}
			total.Add(size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}

func (f *Fetcher) headSize(ctx context.Context, segmentURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, segmentURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned status code %d for %s", resp.StatusCode, segmentURL)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("no content length for %s", segmentURL)
	}
	return resp.ContentLength, nil
}

// segmentReader opens segments lazily, one at a time.
type segmentReader struct {
	ctx    context.Context
	client utils.HTTPDoer
	urls   []string
	next   int
	cur    io.ReadCloser
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if r.next >= len(r.urls) {
				return 0, io.EOF
			}
			body, err := r.open(r.urls[r.next])
			if err != nil {
				return 0, err
			}
			r.cur = body
			r.next++
		}
		n, err := r.cur.Read(p)
		if err == io.EOF {
			r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *segmentReader) open(segmentURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return nil, types.Malformed(segmentURL, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, r.ctx.Err()
		}
		return nil, &types.TransportError{Err: fmt.Errorf("error downloading segment: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &types.TransportError{StatusCode: resp.StatusCode, Message: "segment " + segmentURL}
	}
	return resp.Body, nil
}

func (r *segmentReader) Close() error {
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}
	return nil
}
