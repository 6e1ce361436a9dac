package extractor

import (
	"context"
	"testing"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/pagestore"
	"github.com/fourthplaces/extractor/internal/pagestore/memory"
)

func storePages(t *testing.T, ctx context.Context, store *memory.Store, pages ...pagestore.CachedPage) {
	t.Helper()
	for _, p := range pages {
		if p.ContentHash == "" {
			p.ContentHash = pagestore.ContentHash(p.Content)
		}
		if err := store.StorePage(ctx, p); err != nil {
			t.Fatalf("store page: %v", err)
		}
	}
}

func TestRunCollectionCombinesBuckets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	storePages(t, ctx, store,
		pagestore.CachedPage{URL: "https://a.example/1", Title: "A", Content: "Alpha offers free shipping."},
		pagestore.CachedPage{URL: "https://a.example/2", Title: "B", Content: "Beta offers returns."},
	)
	provider := ai.NewFakeProvider()
	partitions := []ai.Partition{
		{Label: "bucket1", URLs: []string{"https://a.example/1"}},
		{Label: "bucket2", URLs: []string{"https://a.example/2"}},
	}

	extraction, err := Run(ctx, store, provider, "find all offers", ai.Collection, partitions, ai.ExtractHints{StrictMode: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(extraction.Sources) != 2 {
		t.Fatalf("expected sources unioned from both buckets, got %d", len(extraction.Sources))
	}
	if extraction.Content == "" {
		t.Fatalf("expected combined content")
	}
}

func TestCombineDedupesGapsByField(t *testing.T) {
	extractions := []ai.Extraction{
		{Gaps: []ai.MissingField{{Field: "price"}}},
		{Gaps: []ai.MissingField{{Field: "price"}, {Field: "stock"}}},
	}
	combined := Combine(extractions)
	if len(combined.Gaps) != 2 {
		t.Fatalf("expected 2 deduped gaps, got %d: %+v", len(combined.Gaps), combined.Gaps)
	}
}

func TestApplyStrictModeDropsInferredContent(t *testing.T) {
	e := ai.Extraction{Content: "some unattributed claim", Grounding: ai.Inferred}
	out := applyStrictMode(e, true)
	if out.Content != "" {
		t.Errorf("expected content dropped under strict mode, got %q", out.Content)
	}
	foundGap := false
	for _, g := range out.Gaps {
		if g.Field == "content" {
			foundGap = true
		}
	}
	if !foundGap {
		t.Errorf("expected a gap recording the dropped content")
	}
}

func TestApplyStrictModeLeavesNonInferredAlone(t *testing.T) {
	e := ai.Extraction{Content: "grounded claim", Grounding: ai.Verified}
	out := applyStrictMode(e, true)
	if out.Content != "grounded claim" {
		t.Errorf("expected verified content to survive strict mode")
	}
}

func TestRunSingularUnionsPagesAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	storePages(t, ctx, store,
		pagestore.CachedPage{URL: "https://a.example/1", Content: "one"},
		pagestore.CachedPage{URL: "https://a.example/2", Content: "two"},
	)
	provider := ai.NewFakeProvider()
	partitions := []ai.Partition{{Label: "result", URLs: []string{"https://a.example/1", "https://a.example/2"}}}

	extraction, err := Run(ctx, store, provider, "what is this", ai.Singular, partitions, ai.ExtractHints{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(extraction.Sources) != 2 {
		t.Fatalf("expected both pages unioned into one extract call, got %d sources", len(extraction.Sources))
	}
}
