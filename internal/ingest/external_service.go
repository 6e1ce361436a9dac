package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fourthplaces/extractor/internal/xerrors"
)

// ExternalServiceIngestor delegates fetches to a JS-rendering/anti-bot
// capable external rendering service behind a simple render API that returns
// the page's text, title and links as JSON, grounded on the teacher's SearxNG provider (JSON-over-HTTP to an
// external service with an API key and a UserAgent override). It implements
// the same Ingestor trait as HTTPIngestor so the two are interchangeable.
type ExternalServiceIngestor struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

func (e *ExternalServiceIngestor) Name() string { return "external-render-service" }

type renderRequest struct {
	URL string `json:"url"`
}

type renderResponse struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
	StatusCode  int      `json:"status_code"`
	ErrorReason string   `json:"error_reason"`
}

func (e *ExternalServiceIngestor) client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (e *ExternalServiceIngestor) FetchOne(ctx context.Context, rawURL string) (RawPage, error) {
	if e.BaseURL == "" {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, fmt.Errorf("missing external render service base url"))
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlInvalidURL, rawURL, err)
	}
	if !strings.HasSuffix(u.Path, "/render") {
		u.Path = strings.TrimRight(u.Path, "/") + "/render"
	}
	body, err := json.Marshal(renderRequest{URL: rawURL})
	if err != nil {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(string(body)))
	if err != nil {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return RawPage{}, xerrors.ErrCancelled
		}
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlRateLimitExceeded, rawURL, nil)
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlTimeout, rawURL, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, fmt.Errorf("render service status: %d", resp.StatusCode))
	}

	var rr renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
	}
	if rr.ErrorReason != "" {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, fmt.Errorf("%s", rr.ErrorReason))
	}
	return RawPage{
		URL:       rawURL,
		Title:     strings.TrimSpace(rr.Title),
		Content:   strings.TrimSpace(rr.Text),
		Links:     rr.Links,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (e *ExternalServiceIngestor) FetchSpecific(ctx context.Context, urls []string) (Result, error) {
	var result Result
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		page, err := e.FetchOne(ctx, u)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: u, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// Discover performs the same bounded BFS as HTTPIngestor, using the render
// service for each fetch and its reported Links for expansion.
func (e *ExternalServiceIngestor) Discover(ctx context.Context, config DiscoverConfig) (Result, error) {
	var result Result
	visited := make(map[string]bool)
	type queued struct {
		url   string
		depth int
	}
	var queue []queued
	for _, root := range config.Roots {
		queue = append(queue, queued{url: root, depth: 0})
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		if config.Limit > 0 && len(result.Pages) >= config.Limit {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.url] {
			continue
		}
		visited[cur.url] = true
		if !matchesGlobs(cur.url, config.IncludeGlobs, config.ExcludeGlobs) {
			continue
		}
		page, err := e.FetchOne(ctx, cur.url)
		if err != nil {
			if err == xerrors.ErrCancelled {
				return result, err
			}
			result.Failures = append(result.Failures, PageFailure{URL: cur.url, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
		if cur.depth >= config.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			if !visited[link] {
				queue = append(queue, queued{url: link, depth: cur.depth + 1})
			}
		}
	}
	return result, nil
}
