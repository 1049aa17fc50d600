package downloaders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/tanq16/pullq/internal/types"
)

// Registry dispatches URLs to the fetcher registered for their scheme.
// Web URLs whose path ends in a registered extension go to that
// extension's fetcher instead.
type Registry struct {
	fetchers   map[string]types.Fetcher
	extensions map[string]types.Fetcher
}

var _ types.Fetcher = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		fetchers:   make(map[string]types.Fetcher),
		extensions: make(map[string]types.Fetcher),
	}
}

// Register binds fetcher to each scheme, replacing earlier bindings.
func (r *Registry) Register(fetcher types.Fetcher, schemes ...string) {
	for _, scheme := range schemes {
		r.fetchers[strings.ToLower(scheme)] = fetcher
	}
}

// RegisterExtension routes http and https URLs ending in ext (".m3u8") to
// fetcher.
func (r *Registry) RegisterExtension(fetcher types.Fetcher, ext string) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.extensions[ext] = fetcher
}

func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.fetchers))
	for scheme := range r.fetchers {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

func (r *Registry) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	parsed, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "http" || parsed.Scheme == "https" {
		if fetcher, ok := r.extensions[strings.ToLower(path.Ext(parsed.Path))]; ok {
			return fetcher.Open(ctx, rawURL)
		}
	}
	fetcher, ok := r.fetchers[parsed.Scheme]
	if !ok {
		return nil, types.Malformed(rawURL, fmt.Errorf("unsupported scheme %q", parsed.Scheme))
	}
	return fetcher.Open(ctx, rawURL)
}

// Parse validates rawURL and lowercases its scheme. Failures wrap
// types.ErrMalformedURL.
func Parse(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, types.Malformed(rawURL, errors.New("empty URL"))
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.Malformed(rawURL, err)
	}
	if parsed.Scheme == "" {
		return nil, types.Malformed(rawURL, errors.New("missing scheme"))
	}
	if parsed.Host == "" {
		return nil, types.Malformed(rawURL, errors.New("missing host"))
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	return parsed, nil
}
