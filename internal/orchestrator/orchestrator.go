// Package orchestrator implements the concurrency-bounded ingest pipeline:
// discover -> canonicalize/hash/store -> batched summarize+embed, per spec
// §4.4. It is grounded on the teacher's app.App pipeline composition and
// fetch.Client's acquire/release semaphore pattern, generalized from
// "fetch HTTP bodies" to "fetch -> hash -> store -> summarize -> embed".
package orchestrator

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/pagestore"
	"github.com/fourthplaces/extractor/internal/xerrors"
)

// Config controls fan-out and re-summarization behavior. Zero values apply
// the spec's defaults (concurrency 8, batch size 5).
type Config struct {
	Concurrency      int
	BatchSize        int
	SkipCached       bool
	ForceResummarize bool
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	return c
}

// Failure records a single URL that could not be carried through the
// pipeline; it is never fatal to the surrounding Run call.
type Failure struct {
	URL string
	Err error
}

// Result reports the counts named in spec §4.4 step 4, plus the URLs that
// actually made it into the store (used by the detective's FetchUrls/
// CrawlSite step execution to report StepResult.NewPageURLs). RunID
// correlates one Run/RunURLs call across log lines.
type Result struct {
	RunID      string
	Discovered int
	Stored     int
	Summarized int
	Embedded   int
	Failures   []Failure
	StoredURLs []string
}

// Orchestrator wires an Ingestor, a PageStore, and an AI provider together.
type Orchestrator struct {
	Store pagestore.PageStore
	AI    ai.AI
}

// Run executes the full discover->store->summarize->embed pipeline for one
// discover call.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, ingestor ingest.Ingestor, discover ingest.DiscoverConfig) (Result, error) {
	discovered, err := ingestor.Discover(ctx, discover)
	if err != nil {
		return Result{}, err
	}
	return o.process(ctx, cfg, discovered)
}

// RunURLs fetches a fixed URL list (ingest.FetchSpecific) instead of
// crawling, then runs the same store/summarize/embed pipeline.
func (o *Orchestrator) RunURLs(ctx context.Context, cfg Config, ingestor ingest.Ingestor, urls []string) (Result, error) {
	discovered, err := ingestor.FetchSpecific(ctx, urls)
	if err != nil {
		return Result{}, err
	}
	return o.process(ctx, cfg, discovered)
}

func (o *Orchestrator) process(ctx context.Context, cfg Config, discovered ingest.Result) (Result, error) {
	cfg = cfg.withDefaults()
	result := Result{RunID: uuid.NewString(), Discovered: len(discovered.Pages)}
	for _, f := range discovered.Failures {
		result.Failures = append(result.Failures, Failure{URL: f.URL, Err: f.Err})
	}

	stored, storeFailures, err := o.storeAll(ctx, cfg, discovered.Pages)
	result.Failures = append(result.Failures, storeFailures...)
	if err != nil {
		return result, err
	}
	result.Stored = len(stored)
	result.StoredURLs = make([]string, len(stored))
	for i, p := range stored {
		result.StoredURLs[i] = p.URL
	}

	summarized, embedded, sumFailures, err := o.summarizeAndEmbedAll(ctx, cfg, stored)
	result.Failures = append(result.Failures, sumFailures...)
	result.Summarized = summarized
	result.Embedded = embedded
	if err != nil {
		return result, err
	}
	return result, nil
}

// storeAll canonicalizes and upserts each page concurrently, bounded by
// cfg.Concurrency. Per-page failures are collected, never fatal to the call.
func (o *Orchestrator) storeAll(ctx context.Context, cfg Config, pages []ingest.RawPage) ([]pagestore.CachedPage, []Failure, error) {
	sem := make(chan struct{}, cfg.Concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var stored []pagestore.CachedPage
	var failures []Failure
	var cancelled bool

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return stored, failures, xerrors.ErrCancelled
		}
		page := page
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			cancelled = true
			mu.Unlock()
		}
		if cancelled {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			cached, err := o.storeOne(ctx, page)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, Failure{URL: page.URL, Err: err})
				return
			}
			stored = append(stored, cached)
		}()
	}
	wg.Wait()
	if cancelled || ctx.Err() != nil {
		return stored, failures, xerrors.ErrCancelled
	}
	return stored, failures, nil
}

// storeOne canonicalizes a URL and upserts its CachedPage. The store's own
// content-hash comparison on read is the single source of truth for
// "already present" (spec open question (b)); no local visited-set exists.
func (o *Orchestrator) storeOne(ctx context.Context, page ingest.RawPage) (pagestore.CachedPage, error) {
	canonical := canonicalizeURL(page.URL)
	cached := pagestore.CachedPage{
		URL:         canonical,
		SiteURL:     pagestore.Site(canonical),
		Title:       page.Title,
		Content:     page.Content,
		Language:    page.Language,
		ContentHash: pagestore.ContentHash(page.Content),
		FetchedAt:   page.FetchedAt,
	}
	if err := o.Store.StorePage(ctx, cached); err != nil {
		return pagestore.CachedPage{}, xerrors.NewStorageError("store_page", err)
	}
	return cached, nil
}

// summarizeAndEmbedAll processes stored pages in batches of cfg.BatchSize,
// calling AI.Summarize then AI.Embed and writing Summary before Embedding
// for each URL (spec §4.4 ordering guarantee).
func (o *Orchestrator) summarizeAndEmbedAll(ctx context.Context, cfg Config, pages []pagestore.CachedPage) (int, int, []Failure, error) {
	var summarized, embedded int
	var failures []Failure

	for start := 0; start < len(pages); start += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return summarized, embedded, failures, xerrors.ErrCancelled
		}
		end := start + cfg.BatchSize
		if end > len(pages) {
			end = len(pages)
		}
		batch := pages[start:end]

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, page := range batch {
			page := page
			wg.Add(1)
			go func() {
				defer wg.Done()
				didSummarize, didEmbed, err := o.summarizeAndEmbedOne(ctx, cfg, page)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, Failure{URL: page.URL, Err: err})
					return
				}
				if didSummarize {
					summarized++
				}
				if didEmbed {
					embedded++
				}
			}()
		}
		wg.Wait()
		if ctx.Err() != nil {
			return summarized, embedded, failures, xerrors.ErrCancelled
		}
	}
	return summarized, embedded, failures, nil
}

func (o *Orchestrator) summarizeAndEmbedOne(ctx context.Context, cfg Config, page pagestore.CachedPage) (bool, bool, error) {
	if !cfg.ForceResummarize && cfg.SkipCached {
		existing, err := o.Store.GetSummary(ctx, page.URL, page.ContentHash)
		if err != nil {
			return false, false, xerrors.NewStorageError("get_summary", err)
		}
		if existing != nil && existing.PromptHash == o.AI.PromptHash() {
			return false, false, nil
		}
	}

	summaryMarkdown, signals, err := o.AI.Summarize(ctx, page.Content, page.URL)
	if err != nil {
		return false, false, err
	}
	summary := pagestore.Summary{
		URL:             page.URL,
		ContentHash:     page.ContentHash,
		PromptHash:      o.AI.PromptHash(),
		SummaryMarkdown: summaryMarkdown,
		RecallSignals:   signals,
	}
	if err := o.Store.StoreSummary(ctx, summary); err != nil {
		return false, false, xerrors.NewStorageError("store_summary", err)
	}

	vector, err := o.AI.Embed(ctx, summaryMarkdown)
	if err != nil {
		return true, false, err
	}
	if err := o.Store.StoreEmbedding(ctx, page.URL, vector, o.AI.EmbeddingModelID()); err != nil {
		return true, false, xerrors.NewStorageError("store_embedding", err)
	}
	return true, true, nil
}

// canonicalizeURL lower-cases the scheme and host and drops the fragment, so
// https://Example.com/a#x and https://example.com/a are treated as the same
// page.
func canonicalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}
