package ingest

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/fourthplaces/extractor/internal/cache"
	"github.com/fourthplaces/extractor/internal/xerrors"
)

// HTTPIngestor fetches pages over plain HTTP(S), extracting readable text
// and outbound links via the teacher's extract-then-walk pattern, and
// respecting robots.txt disallow rules (spec §4.2).
type HTTPIngestor struct {
	UserAgent   string
	Concurrency int

	fetcher *httpFetcher
	robots  *robotsManager
}

// NewHTTPIngestor wires a fetcher and robots manager sharing a common
// on-disk HTTP cache, matching the teacher's cmd/goresearch wiring.
func NewHTTPIngestor(userAgent string, httpCache *cache.HTTPCache, concurrency int) *HTTPIngestor {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &HTTPIngestor{
		UserAgent:   userAgent,
		Concurrency: concurrency,
		fetcher: &httpFetcher{
			HTTPClient:        &http.Client{Timeout: 30 * time.Second},
			UserAgent:         userAgent,
			MaxAttempts:       3,
			PerRequestTimeout: 15 * time.Second,
			Cache:             httpCache,
			RedirectMaxHops:   5,
			MaxConcurrent:     concurrency,
		},
		robots: &robotsManager{
			HTTPClient:  &http.Client{Timeout: 10 * time.Second},
			Cache:       httpCache,
			UserAgent:   userAgent,
			EntryExpiry: 30 * time.Minute,
		},
	}
}

func (h *HTTPIngestor) Name() string { return "http" }

// FetchOne fetches and parses exactly one URL, honoring robots.txt.
func (h *HTTPIngestor) FetchOne(ctx context.Context, rawURL string) (RawPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlInvalidURL, rawURL, err)
	}

	allowed, err := h.robots.allowed(ctx, rawURL)
	if err != nil {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
	}
	if !allowed {
		return RawPage{}, xerrors.NewCrawlError(xerrors.CrawlRobotsDisallowed, rawURL, nil)
	}

	res, err := h.fetcher.get(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return RawPage{}, xerrors.ErrCancelled
		}
		return RawPage{}, classifyFetchErr(rawURL, err)
	}

	doc := parseHTML(u, res.body)
	return RawPage{
		URL:       rawURL,
		Title:     doc.Title,
		Content:   doc.Text,
		FetchedAt: time.Now().UTC(),
		Links:     doc.Links,
	}, nil
}

func classifyFetchErr(rawURL string, err error) error {
	if err == context.DeadlineExceeded {
		return xerrors.NewCrawlError(xerrors.CrawlTimeout, rawURL, err)
	}
	return xerrors.NewCrawlError(xerrors.CrawlHTTP, rawURL, err)
}

// FetchSpecific fetches an exact list of URLs, with no BFS expansion.
// Per-page failures are partial: the call only returns an error for
// cancellation.
func (h *HTTPIngestor) FetchSpecific(ctx context.Context, urls []string) (Result, error) {
	var result Result
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		page, err := h.FetchOne(ctx, u)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: u, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// Discover performs a breadth-first crawl from config.Roots, bounded by
// Limit and MaxDepth and filtered by IncludeGlobs/ExcludeGlobs (spec §4.2).
func (h *HTTPIngestor) Discover(ctx context.Context, config DiscoverConfig) (Result, error) {
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

		page, err := h.FetchOne(ctx, cur.url)
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

func matchesGlobs(rawURL string, include, exclude []string) bool {
	u, err := url.Parse(rawURL)
	p := rawURL
	if err == nil {
		p = u.Path
		if p == "" {
			p = "/"
		}
	}
	for _, pattern := range exclude {
		if ok, _ := path.Match(pattern, p); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
