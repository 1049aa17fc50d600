package hls

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
)

// maxPlaylistDepth bounds master -> variant indirection.
const maxPlaylistDepth = 3

type playlist struct {
	SegmentURLs []string
	InitSegment string
}

func (p *playlist) urls() []string {
	if p.InitSegment == "" {
		return p.SegmentURLs
	}
	return append([]string{p.InitSegment}, p.SegmentURLs...)
}

func getManifest(ctx context.Context, manifestURL string, client utils.HTTPDoer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", types.Malformed(manifestURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &types.TransportError{Err: fmt.Errorf("error fetching m3u8 manifest: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &types.TransportError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.TransportError{Err: fmt.Errorf("error reading manifest content: %w", err)}
	}
	return string(content), nil
}

// loadPlaylist fetches manifestURL and follows the first variant of a master
// playlist.
func loadPlaylist(ctx context.Context, manifestURL string, client utils.HTTPDoer, depth int) (*playlist, error) {
	log := utils.GetLogger("hls")
	content, err := getManifest(ctx, manifestURL, client)
	if err != nil {
		return nil, err
	}
	pl, variants, err := parseManifest(content, manifestURL)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		if depth >= maxPlaylistDepth {
			return nil, types.Malformed(manifestURL, fmt.Errorf("playlist nesting deeper than %d", maxPlaylistDepth))
		}
		log.Debug().Str("op", "hls/manifest").Msgf("Detected master playlist, fetching sub-playlist: %s", variants[0])
		return loadPlaylist(ctx, variants[0], client, depth+1)
	}
	return pl, nil
}

// parseManifest returns the media segments of content, or the variant
// playlists when content is a master playlist.
func parseManifest(content, manifestURL string) (*playlist, []string, error) {
	baseURL, err := url.Parse(manifestURL)
	if err != nil {
		return nil, nil, types.Malformed(manifestURL, err)
	}
	pl := &playlist{}
	var variants []string
	isMaster := false
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			// fMP4 init segment
			if idx := strings.Index(line, `URI="`); idx != -1 {
				uriStart := idx + 5
				if uriEnd := strings.Index(line[uriStart:], `"`); uriEnd != -1 {
					pl.InitSegment, err = resolveURL(baseURL, line[uriStart:uriStart+uriEnd])
					if err != nil {
						return nil, nil, fmt.Errorf("error resolving init segment URL: %w", err)
					}
				}
			}
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			isMaster = true
		case strings.HasPrefix(line, "#"):
			continue
		default:
			resolved, err := resolveURL(baseURL, line)
			if err != nil {
				return nil, nil, fmt.Errorf("error resolving URL: %w", err)
			}
			if isMaster {
				variants = append(variants, resolved)
			} else {
				pl.SegmentURLs = append(pl.SegmentURLs, resolved)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error scanning m3u8 content: %w", err)
	}
	return pl, variants, nil
}

func resolveURL(baseURL *url.URL, urlStr string) (string, error) {
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr, nil
	}
	relURL, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(relURL).String(), nil
}
