package sqlitevec

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePageAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	page := pagestore.CachedPage{
		URL:         "https://example.org/a",
		SiteURL:     "https://example.org",
		Content:     "hello world",
		ContentHash: pagestore.ContentHash("hello world"),
		FetchedAt:   time.Now(),
	}
	if err := s.StorePage(ctx, page); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := s.GetPage(ctx, page.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ContentHash != page.ContentHash {
		t.Fatalf("expected matching page, got %+v", got)
	}
}

func TestCacheInvalidationOnContentChange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	url := "https://example.org/a"
	old := pagestore.CachedPage{URL: url, SiteURL: "https://example.org", Content: "v1", ContentHash: pagestore.ContentHash("v1"), FetchedAt: time.Now()}
	if err := s.StorePage(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreSummary(ctx, pagestore.Summary{URL: url, ContentHash: old.ContentHash, PromptHash: "p1", SummaryMarkdown: "sum", ProducedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if sum, _ := s.GetSummary(ctx, url, old.ContentHash); sum == nil {
		t.Fatalf("expected summary present before overwrite")
	}

	newPage := pagestore.CachedPage{URL: url, SiteURL: "https://example.org", Content: "v2", ContentHash: pagestore.ContentHash("v2"), FetchedAt: time.Now()}
	if err := s.StorePage(ctx, newPage); err != nil {
		t.Fatal(err)
	}
	if sum, _ := s.GetSummary(ctx, url, old.ContentHash); sum != nil {
		t.Fatalf("expected stale summary to be absent after content change, got %+v", sum)
	}
}

func TestStoreSummaryWithSignalsRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	url := "https://example.org/a"
	page := pagestore.CachedPage{URL: url, SiteURL: "https://example.org", Content: "Ada is CEO", ContentHash: pagestore.ContentHash("Ada is CEO"), FetchedAt: time.Now()}
	if err := s.StorePage(ctx, page); err != nil {
		t.Fatal(err)
	}
	summary := pagestore.Summary{
		URL:             url,
		ContentHash:     page.ContentHash,
		PromptHash:      "p1",
		SummaryMarkdown: "Ada Lovelace is CEO of Acme.",
		ProducedAt:      time.Now(),
		RecallSignals: []pagestore.Signal{
			{Type: "person", Value: "Ada Lovelace", Subtype: "executive", Confidence: 0.9, HasConfidence: true, ContextSnippet: "Ada is CEO", Tags: []string{"leadership"}},
		},
	}
	if err := s.StoreSummary(ctx, summary); err != nil {
		t.Fatalf("store summary: %v", err)
	}
	got, err := s.GetSummary(ctx, url, page.ContentHash)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if got == nil || len(got.RecallSignals) != 1 {
		t.Fatalf("expected one signal roundtripped, got %+v", got)
	}
	if got.RecallSignals[0].Value != "Ada Lovelace" || !got.RecallSignals[0].HasConfidence {
		t.Fatalf("signal fields not preserved: %+v", got.RecallSignals[0])
	}
}

func TestSearchHybridFusion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pages := []struct {
		url  string
		text string
		vec  []float32
	}{
		{"https://example.org/a", "Ada Lovelace is the CEO of Acme", []float32{1, 0, 0}},
		{"https://example.org/b", "Linus Ng is the CTO of Acme", []float32{0, 1, 0}},
	}
	for _, p := range pages {
		page := pagestore.CachedPage{URL: p.url, SiteURL: "https://example.org", Content: p.text, ContentHash: pagestore.ContentHash(p.text), FetchedAt: time.Now()}
		if err := s.StorePage(ctx, page); err != nil {
			t.Fatal(err)
		}
		if err := s.StoreEmbedding(ctx, p.url, p.vec, "test-model"); err != nil {
			t.Fatal(err)
		}
	}
	refs, err := s.SearchHybrid(ctx, "CEO Ada", []float32{1, 0, 0}, 5, nil, 0.6)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(refs) == 0 || refs[0].URL != "https://example.org/a" {
		t.Fatalf("expected top hit to be page a, got %+v", refs)
	}
}

func TestSearchLexicalRespectsLanguageTag(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	es := pagestore.CachedPage{
		URL: "https://example.org/es", SiteURL: "https://example.org",
		Content: "Los niños juegan en el parque", Language: "spanish",
		ContentHash: pagestore.ContentHash("es"), FetchedAt: time.Now(),
	}
	en := pagestore.CachedPage{
		URL: "https://example.org/en", SiteURL: "https://example.org",
		Content: "Los niños juegan en el parque", Language: "english",
		ContentHash: pagestore.ContentHash("en"), FetchedAt: time.Now(),
	}
	if err := s.StorePage(ctx, es); err != nil {
		t.Fatal(err)
	}
	if err := s.StorePage(ctx, en); err != nil {
		t.Fatal(err)
	}

	refs, err := s.SearchLexical(ctx, "niño", 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var gotSpanish, gotEnglish bool
	for _, r := range refs {
		if r.URL == es.URL {
			gotSpanish = true
		}
		if r.URL == en.URL {
			gotEnglish = true
		}
	}
	if !gotSpanish {
		t.Fatalf("expected spanish-tagged page to match stemmed query, got %+v", refs)
	}
	if gotEnglish {
		t.Fatalf("expected english-tagged page with identical content not to match, got %+v", refs)
	}
}

func TestStoreEmbeddingDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.StoreEmbedding(ctx, "https://example.org/a", []float32{1, 2}, "test-model"); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
