package ingest

import (
	"context"
	"sync"

	"github.com/fourthplaces/extractor/internal/xerrors"
)

// MockIngestor is an in-memory Ingestor for tests: a fixed URL-to-RawPage
// map plus optional per-URL injected failures, grounded on the teacher's
// preference for deterministic fakes over live network calls in tests.
type MockIngestor struct {
	mu       sync.Mutex
	pages    map[string]RawPage
	failures map[string]error
	roots    map[string][]string // root URL -> reachable URLs, for Discover
}

// NewMockIngestor returns an empty mock; use AddPage/AddFailure/SetRoot to
// populate it before use.
func NewMockIngestor() *MockIngestor {
	return &MockIngestor{
		pages:    make(map[string]RawPage),
		failures: make(map[string]error),
		roots:    make(map[string][]string),
	}
}

func (m *MockIngestor) Name() string { return "mock" }

// AddPage registers a page to be returned for url.
func (m *MockIngestor) AddPage(page RawPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page.URL] = page
}

// AddFailure makes FetchOne(url) return err instead of a page.
func (m *MockIngestor) AddFailure(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[url] = err
}

// SetRoot makes Discover treat root as reachable from the given urls (its
// own outbound links), simulating a site's link graph without a live crawl.
func (m *MockIngestor) SetRoot(root string, reachable []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[root] = reachable
}

func (m *MockIngestor) FetchOne(ctx context.Context, url string) (RawPage, error) {
	if err := ctx.Err(); err != nil {
		return RawPage{}, xerrors.ErrCancelled
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[url]; ok {
		return RawPage{}, err
	}
	if page, ok := m.pages[url]; ok {
		return page, nil
	}
	return RawPage{}, &xerrors.PageNotFoundError{URL: url}
}

func (m *MockIngestor) FetchSpecific(ctx context.Context, urls []string) (Result, error) {
	var result Result
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		page, err := m.FetchOne(ctx, u)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: u, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// Discover walks the SetRoot link graph breadth-first from config.Roots and
// stops once config.Limit pages are collected. MaxDepth and the include/
// exclude globs are not applied: every page reachable through SetRoot links
// is visited.
func (m *MockIngestor) Discover(ctx context.Context, config DiscoverConfig) (Result, error) {
	var result Result
	visited := make(map[string]bool)
	var queue []string
	queue = append(queue, config.Roots...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		if config.Limit > 0 && len(result.Pages) >= config.Limit {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		page, err := m.FetchOne(ctx, cur)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: cur, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
		m.mu.Lock()
		next := m.roots[cur]
		m.mu.Unlock()
		for _, n := range next {
			if !visited[n] {
				queue = append(queue, n)
			}
		}
	}
	return result, nil
}
