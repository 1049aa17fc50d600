package ghrelease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"runtime"
	"strings"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

const DefaultAPIBase = "https://api.github.com"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Fetcher resolves ghrelease://owner/repo to a release asset for the running
// platform and streams it through Assets. Query parameters: tag selects a
// release other than the latest, asset overrides platform matching.
type Fetcher struct {
	client  utils.HTTPDoer
	assets  types.Fetcher
	APIBase string
	GOOS    string
	GOARCH  string
}

var _ types.Fetcher = (*Fetcher)(nil)

func NewFetcher(client utils.HTTPDoer, assets types.Fetcher) *Fetcher {
	return &Fetcher{
		client:  client,
		assets:  assets,
		APIBase: DefaultAPIBase,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
	}
}

func (f *Fetcher) Open(ctx context.Context, rawURL string) (*types.Response, error) {
	log := utils.GetLogger("ghrelease")
	ref, err := parseReleaseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rel, err := f.getRelease(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
		}
		return nil, err
	}
	chosen, ok := selectAsset(rel.Assets, f.GOOS, f.GOARCH, ref.pattern)
	if !ok {
		return nil, &types.TransportError{Err: fmt.Errorf("no asset in %s/%s %s matches %s/%s", ref.owner, ref.repo, rel.TagName, f.GOOS, f.GOARCH)}
	}
	log.Debug().Str("op", "ghrelease/open").Msgf("Selected %s from %s/%s %s", chosen.Name, ref.owner, ref.repo, rel.TagName)

	resp, err := f.assets.Open(ctx, chosen.DownloadURL)
	if err != nil {
		return nil, err
	}
	if resp.Length <= 0 && chosen.Size > 0 {
		resp.Length = chosen.Size
	}
	if resp.FileName == "" {
		resp.FileName = chosen.Name
	}
	return resp, nil
}

type releaseRef struct {
	owner   string
	repo    string
	tag     string
	pattern string
}

func parseReleaseURL(rawURL string) (releaseRef, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return releaseRef{}, types.Malformed(rawURL, err)
	}
	owner := parsed.Host
	repo := strings.Trim(parsed.Path, "/")
	if !namePattern.MatchString(owner) || !namePattern.MatchString(repo) {
		return releaseRef{}, types.Malformed(rawURL, errors.New("expected ghrelease://owner/repo"))
	}
	query := parsed.Query()
	return releaseRef{
		owner:   owner,
		repo:    repo,
		tag:     query.Get("tag"),
		pattern: query.Get("asset"),
	}, nil
}

func (f *Fetcher) getRelease(ctx context.Context, ref releaseRef) (*release, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimSuffix(f.APIBase, "/"), ref.owner, ref.repo)
	if ref.tag != "" {
		apiURL = fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", strings.TrimSuffix(f.APIBase, "/"), ref.owner, ref.repo, url.PathEscape(ref.tag))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating API request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &types.TransportError{Err: fmt.Errorf("error making API request: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &types.TransportError{StatusCode: resp.StatusCode, Message: "release lookup for " + ref.owner + "/" + ref.repo}
	}
	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, &types.TransportError{Err: fmt.Errorf("error decoding API response: %w", err)}
	}
	return &rel, nil
}
