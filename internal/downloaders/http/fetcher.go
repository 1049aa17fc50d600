package pullhttp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

var fileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// Fetcher opens http and https URLs with a single streaming request.
type Fetcher struct {
	client utils.HTTPDoer
	method string
}

var _ types.Fetcher = (*Fetcher)(nil)

func NewFetcher(client utils.HTTPDoer, method string) *Fetcher {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	return &Fetcher{client: client, method: method}
}

func (f *Fetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	log := utils.GetLogger("http")
	req, err := http.NewRequestWithContext(ctx, f.method, rawURL, nil)
	if err != nil {
		return nil, types.Malformed(rawURL, err)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, ctxErr)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
			return nil, types.Malformed(rawURL, err)
		}
		return nil, &types.TransportError{Err: err}
	}
	log.Debug().Str("op", "http/open").Msgf("%s %s -> %s (length %d)", f.method, rawURL, resp.Status, resp.ContentLength)
	return &types.Response{
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Length:     resp.ContentLength,
		FileName:   fileNameFromDisposition(resp.Header.Get("Content-Disposition")),
		Body:       resp.Body,
	}, nil
}

// statusText drops the numeric prefix net/http puts in resp.Status.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func fileNameFromDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return fileNameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return fileNameRegex.ReplaceAllString(unescaped, "_")
	}
	return ""
}
