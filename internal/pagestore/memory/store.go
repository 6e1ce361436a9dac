// Package memory is the reference PageStore backend: an in-process,
// mutex-guarded implementation suitable for tests and small corpora. Vector
// search is brute-force cosine; lexical search is a simple token-overlap
// BM25-like scorer. The page's language tag is not consulted: every page is
// tokenized the same way, with no stemming.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

type record struct {
	page    pagestore.CachedPage
	summary *pagestore.Summary
	vector  []float32
	modelID string
}

// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) getOrCreate(url string) *record {
	r, ok := s.records[url]
	if !ok {
		r = &record{}
		s.records[url] = r
	}
	return r
}

// GetPage implements pagestore.PageCache. ctx is accepted for interface
// symmetry with the database-backed stores; the in-memory backend has no
// blocking I/O to cancel.
func (s *Store) GetPage(ctx context.Context, url string) (*pagestore.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[url]
	if !ok || r.page.URL == "" {
		return nil, nil
	}
	p := r.page
	return &p, nil
}

// StorePage implements pagestore.PageCache. It upserts by URL.
func (s *Store) StorePage(ctx context.Context, page pagestore.CachedPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreate(page.URL)
	if r.page.ContentHash != "" && r.page.ContentHash != page.ContentHash {
		// Content changed: the existing summary/embedding are now stale.
		r.summary = nil
		r.vector = nil
	}
	r.page = page
	return nil
}

// GetPages implements pagestore.PageCache. Order is not guaranteed to match
// the input order.
func (s *Store) GetPages(ctx context.Context, urls []string) ([]pagestore.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pagestore.CachedPage, 0, len(urls))
	for _, u := range urls {
		if r, ok := s.records[u]; ok && r.page.URL != "" {
			out = append(out, r.page)
		}
	}
	return out, nil
}

// GetPagesForSite implements pagestore.PageCache.
func (s *Store) GetPagesForSite(ctx context.Context, site string) ([]pagestore.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pagestore.CachedPage, 0)
	for _, r := range s.records {
		if r.page.URL == "" {
			continue
		}
		if strings.EqualFold(r.page.SiteURL, site) || strings.EqualFold(pagestore.Site(r.page.URL), site) {
			out = append(out, r.page)
		}
	}
	return out, nil
}

// GetSummary implements pagestore.SummaryCache. It returns nil, not an
// error, when the stored summary's content hash is stale.
func (s *Store) GetSummary(ctx context.Context, url string, contentHash string) (*pagestore.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[url]
	if !ok || r.summary == nil {
		return nil, nil
	}
	if r.summary.ContentHash != contentHash {
		return nil, nil
	}
	sum := *r.summary
	return &sum, nil
}

// StoreSummary implements pagestore.SummaryCache. It upserts by URL.
func (s *Store) StoreSummary(ctx context.Context, summary pagestore.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreate(summary.URL)
	cp := summary
	r.summary = &cp
	return nil
}

// StoreEmbedding implements pagestore.EmbeddingStore.
func (s *Store) StoreEmbedding(ctx context.Context, url string, vector []float32, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreate(url)
	r.vector = append([]float32(nil), vector...)
	r.modelID = modelID
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SearchSimilar implements pagestore.EmbeddingStore by cosine similarity
// descending, brute force.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]pagestore.PageRef, 0, len(s.records))
	for url, r := range s.records {
		if r.vector == nil {
			continue
		}
		if !pagestore.MatchesFilter(url, r.page.FetchedAt.Unix(), filter) {
			continue
		}
		refs = append(refs, pagestore.PageRef{URL: url, Score: cosine(vector, r.vector)})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].URL < refs[j].URL
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// lexicalScore is a simple BM25-like term-overlap score: term frequency in
// the document divided by document length, summed over query terms present.
// It is intentionally simple; production backends use FTS5/tsvector BM25.
func lexicalScore(queryTerms []string, docTerms []string) float64 {
	if len(docTerms) == 0 || len(queryTerms) == 0 {
		return 0
	}
	freq := make(map[string]int, len(docTerms))
	for _, t := range docTerms {
		freq[t]++
	}
	var score float64
	const k1 = 1.5
	const b = 0.75
	avgLen := float64(len(docTerms)) // single-document corpus approximation
	for _, qt := range queryTerms {
		f := float64(freq[qt])
		if f == 0 {
			continue
		}
		denom := f + k1*(1-b+b*float64(len(docTerms))/avgLen)
		score += f * (k1 + 1) / denom
	}
	return score
}

// SearchLexical implements pagestore.EmbeddingStore by a BM25-like score over
// each summary's markdown (falling back to page content if no summary is
// stored). The page's language tag is ignored.
func (s *Store) SearchLexical(ctx context.Context, queryText string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qt := tokenize(queryText)
	refs := make([]pagestore.PageRef, 0, len(s.records))
	for url, r := range s.records {
		if !pagestore.MatchesFilter(url, r.page.FetchedAt.Unix(), filter) {
			continue
		}
		text := r.page.Content
		if r.summary != nil {
			text = r.summary.SummaryMarkdown
		}
		score := lexicalScore(qt, tokenize(text))
		if score <= 0 {
			continue
		}
		refs = append(refs, pagestore.PageRef{URL: url, Score: score})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].URL < refs[j].URL
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// SearchHybrid implements pagestore.EmbeddingStore via Reciprocal Rank
// Fusion over the semantic and lexical rankings (spec §4.1).
func (s *Store) SearchHybrid(ctx context.Context, queryText string, vector []float32, limit int, filter *pagestore.QueryFilter, semanticWeight float64) ([]pagestore.PageRef, error) {
	// Over-fetch each ranked list so fusion has enough candidates to choose
	// from even when limit is small.
	fetchLimit := limit * 4
	if fetchLimit < 50 {
		fetchLimit = 50
	}
	sem, err := s.SearchSimilar(ctx, vector, fetchLimit, filter)
	if err != nil {
		return nil, err
	}
	lex, err := s.SearchLexical(ctx, queryText, fetchLimit, filter)
	if err != nil {
		return nil, err
	}
	return pagestore.FuseRRF(sem, lex, semanticWeight, limit), nil
}
