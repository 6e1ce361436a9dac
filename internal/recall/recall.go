// Package recall implements the hybrid retrieval + partitioning pipeline of
// spec §4.6: embed the query, hybrid-search the store, load summaries, and
// either take a flat top-N (Singular/Narrative) or ask the AI to bucket
// summaries into partitions (Collection). Grounded on the teacher's
// aggregate.MergeAndNormalize (URL normalize/dedupe discipline) and
// select.Select (diversity/cap logic), generalized from search-result
// selection to partition-size capping over PageRefs.
package recall

import (
	"context"
	"sort"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/pagestore"
)

const (
	defaultMaxSummariesForPartition = 50
	defaultSemanticWeight           = 0.6
	singularTopN                   = 6
	narrativeTopN                  = 10
)

// Options configures one recall call. Zero values apply the spec's defaults.
type Options struct {
	MaxSummariesForPartition int
	SemanticWeight           float64
	Filter                   *pagestore.QueryFilter
}

func (o Options) withDefaults() Options {
	if o.MaxSummariesForPartition <= 0 {
		o.MaxSummariesForPartition = defaultMaxSummariesForPartition
	}
	if o.SemanticWeight == 0 {
		o.SemanticWeight = defaultSemanticWeight
	}
	return o
}

// Run executes the spec §4.6 recall pipeline for one query and strategy,
// returning ordered partitions. Singular/Narrative strategies return exactly
// one partition holding the top-N page URLs; Collection may return several.
func Run(ctx context.Context, store pagestore.PageStore, provider ai.AI, query string, strategy ai.ExtractionStrategy, opts Options) ([]ai.Partition, error) {
	opts = opts.withDefaults()

	vector, err := provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	refs, err := store.SearchHybrid(ctx, query, vector, opts.MaxSummariesForPartition, opts.Filter, opts.SemanticWeight)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	urls := make([]string, len(refs))
	rank := make(map[string]int, len(refs))
	for i, ref := range refs {
		urls[i] = ref.URL
		rank[ref.URL] = i
	}

	switch strategy {
	case ai.Singular:
		return []ai.Partition{{Label: "result", URLs: topN(urls, singularTopN)}}, nil
	case ai.Narrative:
		return []ai.Partition{{Label: "result", URLs: topN(urls, narrativeTopN)}}, nil
	default:
		return runCollection(ctx, store, provider, query, urls, rank)
	}
}

func runCollection(ctx context.Context, store pagestore.PageStore, provider ai.AI, query string, urls []string, rank map[string]int) ([]ai.Partition, error) {
	summaries, err := loadSummaries(ctx, store, urls)
	if err != nil {
		return nil, err
	}
	partitions, err := provider.RecallAndPartition(ctx, query, summaries)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		partitions = oneBucketPerSummary(summaries)
	}
	for i := range partitions {
		orderByRank(partitions[i].URLs, rank)
	}
	return partitions, nil
}

// loadSummaries fetches the Summary for each URL the hybrid search surfaced.
// A URL whose summary is missing or stale (GetSummary returns nil) is
// skipped rather than failing the whole recall.
func loadSummaries(ctx context.Context, store pagestore.PageStore, urls []string) ([]pagestore.Summary, error) {
	pages, err := store.GetPages(ctx, urls)
	if err != nil {
		return nil, err
	}
	contentHashByURL := make(map[string]string, len(pages))
	for _, p := range pages {
		contentHashByURL[p.URL] = p.ContentHash
	}
	summaries := make([]pagestore.Summary, 0, len(urls))
	for _, u := range urls {
		hash, ok := contentHashByURL[u]
		if !ok {
			continue
		}
		summary, err := store.GetSummary(ctx, u, hash)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// oneBucketPerSummary is the spec §4.6 step 5 fallback: when the AI returns
// no buckets, synthesize one bucket per summary, each holding a single URL.
func oneBucketPerSummary(summaries []pagestore.Summary) []ai.Partition {
	partitions := make([]ai.Partition, 0, len(summaries))
	for _, s := range summaries {
		partitions = append(partitions, ai.Partition{Label: s.URL, URLs: []string{s.URL}})
	}
	return partitions
}

// orderByRank sorts urls in place by ascending hybrid-search rank (i.e.
// descending score), falling back to URL ascending for any URL the AI
// returned that wasn't in the original ranked set (spec §4.6 tie-breaking).
func orderByRank(urls []string, rank map[string]int) {
	sort.SliceStable(urls, func(i, j int) bool {
		ri, iok := rank[urls[i]]
		rj, jok := rank[urls[j]]
		if iok && jok {
			return ri < rj
		}
		if iok != jok {
			return iok
		}
		return urls[i] < urls[j]
	})
}

func topN(urls []string, n int) []string {
	if len(urls) <= n {
		out := make([]string, len(urls))
		copy(out, urls)
		return out
	}
	out := make([]string, n)
	copy(out, urls[:n])
	return out
}
