// Package pagestore defines the content-addressed persistence contract for
// raw pages, AI summaries, and embedding vectors, plus hybrid lexical and
// vector search over them. See backends in memory/, sqlitevec/, postgres/.
package pagestore

import (
	"context"
	"time"
)

// CachedPage is a RawPage plus storage metadata. Keyed by URL. Immutable
// once stored; overwriting replaces it wholesale.
type CachedPage struct {
	URL         string
	SiteURL     string
	Title       string
	Content     string
	Language    string
	ContentHash string // 64 lowercase hex SHA-256 of Content
	FetchedAt   time.Time
}

// Signal is a domain-agnostic recall annotation attached to a Summary.
// Well-known legacy categories (calls_to_action, offers, asks, entities) are
// recognized but not required; new deployments should use the generic form.
type Signal struct {
	Type            string
	Value           string
	Subtype         string
	Confidence      float64 // 0 when absent; HasConfidence distinguishes "0.0" from "unset"
	HasConfidence   bool
	ContextSnippet  string
	Tags            []string
}

// Summary is valid only while ContentHash matches the current CachedPage and
// PromptHash matches the current summarizer prompt; otherwise it is stale.
type Summary struct {
	URL             string
	ContentHash     string
	PromptHash      string
	SummaryMarkdown string
	RecallSignals   []Signal
	ProducedAt      time.Time
}

// EmbeddingEntry is keyed by URL.
type EmbeddingEntry struct {
	URL     string
	Vector  []float32
	ModelID string
}

// QueryFilter narrows search results by site and date range.
type QueryFilter struct {
	IncludeSites []string
	ExcludeSites []string
	MinDate      time.Time
	MaxDate      time.Time
}

// PageRef is a single search hit.
type PageRef struct {
	URL   string
	Score float64
}

// PageCache is the RawPage/CachedPage persistence capability.
type PageCache interface {
	GetPage(ctx context.Context, url string) (*CachedPage, error)
	StorePage(ctx context.Context, page CachedPage) error
	GetPages(ctx context.Context, urls []string) ([]CachedPage, error)
	GetPagesForSite(ctx context.Context, site string) ([]CachedPage, error)
}

// SummaryCache is the Summary persistence capability. GetSummary returns nil
// (not an error) when the stored summary's content hash does not match, per
// the cache invalidation contract in spec §4.1/§8.
type SummaryCache interface {
	GetSummary(ctx context.Context, url string, contentHash string) (*Summary, error)
	StoreSummary(ctx context.Context, summary Summary) error
}

// EmbeddingStore is the vector persistence and search capability.
type EmbeddingStore interface {
	StoreEmbedding(ctx context.Context, url string, vector []float32, modelID string) error
	SearchSimilar(ctx context.Context, vector []float32, limit int, filter *QueryFilter) ([]PageRef, error)
	SearchLexical(ctx context.Context, queryText string, limit int, filter *QueryFilter) ([]PageRef, error)
	SearchHybrid(ctx context.Context, queryText string, vector []float32, limit int, filter *QueryFilter, semanticWeight float64) ([]PageRef, error)
}

// PageStore composes the three capabilities backends MUST implement
// atomically per operation (within a single record).
type PageStore interface {
	PageCache
	SummaryCache
	EmbeddingStore
}

// Site groups a URL by canonical origin, used for filters and GetPagesForSite.
func Site(rawURL string) string {
	return siteOf(rawURL)
}
