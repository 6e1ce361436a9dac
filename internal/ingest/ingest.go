// Package ingest defines the pluggable page-discovery and fetch contract
// (spec §4.2): an Ingestor that can crawl from roots or fetch exact URLs,
// plus provided implementations (HTTP, external-service, SSRF-validated
// decorator, and a mock for tests), grounded on the teacher's
// internal/fetch, internal/robots, and internal/extract packages.
package ingest

import (
	"context"
	"time"
)

// RawPage is transient output of an Ingestor, not yet content-addressed or
// stored (spec §3 "RawPage").
type RawPage struct {
	URL         string
	Title       string
	Content     string // readable markdown/text
	Language    string // source-supplied hint; empty if unknown
	FetchedAt   time.Time
	Links       []string // absolute URLs discovered on the page, for BFS expansion
}

// DiscoverConfig bounds a crawl starting from one or more root URLs.
type DiscoverConfig struct {
	Roots         []string
	Limit         int // max pages to return; 0 means unlimited
	MaxDepth      int // 0 means roots only
	IncludeGlobs  []string
	ExcludeGlobs  []string
	Concurrency   int // politeness/fan-out bound; default applied by caller
}

// Ingestor is the pluggable page-discovery and fetch contract (spec §4.2).
// Implementations MUST return partial results on a per-page failure rather
// than aborting the whole call; callers collect failures out-of-band via the
// returned Result.Failures.
type Ingestor interface {
	Discover(ctx context.Context, config DiscoverConfig) (Result, error)
	FetchSpecific(ctx context.Context, urls []string) (Result, error)
	FetchOne(ctx context.Context, url string) (RawPage, error)
	Name() string
}

// Result is the sequence<RawPage> plus any per-page failures collected
// during a Discover or FetchSpecific call.
type Result struct {
	Pages    []RawPage
	Failures []PageFailure
}

// PageFailure records a failure attributable to a single URL; it never
// aborts the surrounding Discover/FetchSpecific call (spec §4.2 "Failure
// taxonomy").
type PageFailure struct {
	URL string
	Err error
}
