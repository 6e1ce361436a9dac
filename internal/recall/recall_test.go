package recall

import (
	"context"
	"testing"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/pagestore"
	"github.com/fourthplaces/extractor/internal/pagestore/memory"
)

func seedPage(t *testing.T, ctx context.Context, store *memory.Store, provider ai.AI, url, content string) {
	t.Helper()
	page := pagestore.CachedPage{URL: url, SiteURL: pagestore.Site(url), Content: content, ContentHash: pagestore.ContentHash(content)}
	if err := store.StorePage(ctx, page); err != nil {
		t.Fatalf("store page: %v", err)
	}
	summary := pagestore.Summary{URL: url, ContentHash: page.ContentHash, PromptHash: provider.PromptHash(), SummaryMarkdown: content}
	if err := store.StoreSummary(ctx, summary); err != nil {
		t.Fatalf("store summary: %v", err)
	}
	vec, err := provider.Embed(ctx, content)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := store.StoreEmbedding(ctx, url, vec, provider.EmbeddingModelID()); err != nil {
		t.Fatalf("store embedding: %v", err)
	}
}

func TestRunSingularReturnsOnePartitionTopN(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	for i := 0; i < 8; i++ {
		seedPage(t, ctx, store, provider, "https://a.example/"+string(rune('a'+i)), "content about widgets "+string(rune('a'+i)))
	}

	partitions, err := Run(ctx, store, provider, "what is a widget", ai.Singular, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(partitions) != 1 {
		t.Fatalf("expected exactly one partition for Singular, got %d", len(partitions))
	}
	if len(partitions[0].URLs) != 6 {
		t.Fatalf("expected top 6 urls for Singular, got %d", len(partitions[0].URLs))
	}
}

func TestRunCollectionUnseededYieldsOneBucketPerSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	seedPage(t, ctx, store, provider, "https://a.example/1", "alpha content")
	seedPage(t, ctx, store, provider, "https://a.example/2", "beta content")

	partitions, err := Run(ctx, store, provider, "find all topics (unseeded)", ai.Collection, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(partitions) != 2 {
		t.Fatalf("expected one bucket per summary fallback, got %d partitions", len(partitions))
	}
}

func TestRunCollectionUsesSeededPartitions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	seedPage(t, ctx, store, provider, "https://a.example/1", "alpha content")
	seedPage(t, ctx, store, provider, "https://a.example/2", "beta content")

	provider.SetPartitions("find all things", []ai.Partition{
		{Label: "group", URLs: []string{"https://a.example/2", "https://a.example/1"}},
	})

	partitions, err := Run(ctx, store, provider, "find all things", ai.Collection, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(partitions) != 1 || len(partitions[0].URLs) != 2 {
		t.Fatalf("expected the seeded single partition with 2 urls, got %+v", partitions)
	}
}
