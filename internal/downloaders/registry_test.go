package downloaders

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/tanq16/pullq/internal/types"
)

type stubFetcher struct {
	calls []string
}

func (f *stubFetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	f.calls = append(f.calls, rawURL)
	return &types.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		malformed bool
	}{
		{"http", "http://x/a.bin", false},
		{"uppercase scheme", "HTTPS://x/a.bin", false},
		{"s3", "s3://bucket/key", false},
		{"empty", "", true},
		{"spaces", "   ", true},
		{"no scheme", "example.com/file", true},
		{"no host", "http:///file", true},
		{"bad escape", "http://x/%zz", true},
		{"control char", "http://x/\x7f", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.url)
			if got := errors.Is(err, types.ErrMalformedURL); got != tt.malformed {
				t.Errorf("Parse(%q) error = %v, malformed = %v, want %v", tt.url, err, got, tt.malformed)
			}
		})
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	httpFetcher := &stubFetcher{}
	s3Fetcher := &stubFetcher{}
	r := NewRegistry()
	r.Register(httpFetcher, "http", "https")
	r.Register(s3Fetcher, "s3")

	ctx := context.Background()
	for _, url := range []string{"http://x/a", "HTTPS://x/b", "s3://bucket/c"} {
		resp, err := r.Open(ctx, url)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", url, err)
		}
		resp.Body.Close()
	}
	if len(httpFetcher.calls) != 2 {
		t.Errorf("http fetcher calls = %v", httpFetcher.calls)
	}
	if len(s3Fetcher.calls) != 1 {
		t.Errorf("s3 fetcher calls = %v", s3Fetcher.calls)
	}
	if got := strings.Join(r.Schemes(), ","); got != "http,https,s3" {
		t.Errorf("Schemes() = %q", got)
	}
}

func TestRegistry_UnsupportedScheme(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubFetcher{}, "http")

	_, err := r.Open(context.Background(), "ftp://x/a.bin")
	if !errors.Is(err, types.ErrMalformedURL) {
		t.Errorf("Open() error = %v, want ErrMalformedURL", err)
	}
}

func TestRegistry_ExtensionRouting(t *testing.T) {
	httpFetcher := &stubFetcher{}
	streamFetcher := &stubFetcher{}
	r := NewRegistry()
	r.Register(httpFetcher, "http", "https", "s3")
	r.RegisterExtension(streamFetcher, "m3u8")

	ctx := context.Background()
	for _, url := range []string{"https://cdn/live/index.M3U8", "http://cdn/a.m3u8?token=1", "https://cdn/a.mp4", "s3://bucket/a.m3u8"} {
		resp, err := r.Open(ctx, url)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", url, err)
		}
		resp.Body.Close()
	}
	if len(streamFetcher.calls) != 2 {
		t.Errorf("stream fetcher calls = %v, want the two web playlists", streamFetcher.calls)
	}
	if len(httpFetcher.calls) != 2 {
		t.Errorf("http fetcher calls = %v", httpFetcher.calls)
	}
}
