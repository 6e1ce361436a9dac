// Package extractor runs per-strategy AI extraction over recalled
// partitions and combines the results into one grounded Extraction, per spec
// §4.7. Grounded on the teacher's verify.Verifier (claim/citation/confidence
// schema, deterministic combination of per-item results) and validate
// (well-formedness checks), generalized from "verify a synthesized report"
// to "combine per-bucket extractions".
package extractor

import (
	"context"
	"sort"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/pagestore"
)

// Run executes the strategy-specific extraction described in spec §4.7 over
// the given partitions, loading each partition's pages from store.
func Run(ctx context.Context, store pagestore.PageStore, provider ai.AI, query string, strategy ai.ExtractionStrategy, partitions []ai.Partition, hints ai.ExtractHints) (ai.Extraction, error) {
	switch strategy {
	case ai.Singular:
		pages, err := unionPages(ctx, store, partitions)
		if err != nil {
			return ai.Extraction{}, err
		}
		extraction, err := provider.ExtractSingle(ctx, query, pages, hints)
		if err != nil {
			return ai.Extraction{}, err
		}
		return applyStrictMode(extraction, hints.StrictMode), nil
	case ai.Narrative:
		pages, err := unionPages(ctx, store, partitions)
		if err != nil {
			return ai.Extraction{}, err
		}
		extraction, err := provider.ExtractNarrative(ctx, query, pages, hints)
		if err != nil {
			return ai.Extraction{}, err
		}
		return applyStrictMode(extraction, hints.StrictMode), nil
	default:
		return runCollection(ctx, store, provider, query, partitions, hints)
	}
}

// RunStream mirrors Run for Collection strategy but yields one Extraction
// per bucket in partition order instead of one combined result, per spec
// §4.7 "Streaming". Singular/Narrative always yield exactly one Extraction.
func RunStream(ctx context.Context, store pagestore.PageStore, provider ai.AI, query string, strategy ai.ExtractionStrategy, partitions []ai.Partition, hints ai.ExtractHints, yield func(ai.Extraction) bool) error {
	if strategy != ai.Collection {
		extraction, err := Run(ctx, store, provider, query, strategy, partitions, hints)
		if err != nil {
			return err
		}
		yield(extraction)
		return nil
	}
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		pages, err := store.GetPages(ctx, partition.URLs)
		if err != nil {
			return err
		}
		extraction, err := provider.Extract(ctx, query, pages, hints)
		if err != nil {
			return err
		}
		extraction = applyStrictMode(extraction, hints.StrictMode)
		if !yield(extraction) {
			return nil
		}
	}
	return nil
}

func runCollection(ctx context.Context, store pagestore.PageStore, provider ai.AI, query string, partitions []ai.Partition, hints ai.ExtractHints) (ai.Extraction, error) {
	var results []ai.Extraction
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return ai.Extraction{}, err
		}
		pages, err := store.GetPages(ctx, partition.URLs)
		if err != nil {
			return ai.Extraction{}, err
		}
		if len(pages) == 0 {
			continue
		}
		extraction, err := provider.Extract(ctx, query, pages, hints)
		if err != nil {
			return ai.Extraction{}, err
		}
		results = append(results, extraction)
	}
	combined := Combine(results)
	return applyStrictMode(combined, hints.StrictMode), nil
}

// Combine concatenates bucket content, unions sources, unions gaps
// (deduplicated by field), and promotes conflicts, per spec §4.7. Grounding
// and status are recomputed from the combined result.
func Combine(extractions []ai.Extraction) ai.Extraction {
	var combined ai.Extraction
	seenSource := make(map[string]bool)
	seenGapField := make(map[string]bool)

	var content []string
	for _, e := range extractions {
		if e.Content != "" {
			content = append(content, e.Content)
		}
		for _, s := range e.Sources {
			if seenSource[s.URL] {
				continue
			}
			seenSource[s.URL] = true
			combined.Sources = append(combined.Sources, s)
		}
		for _, g := range e.Gaps {
			if seenGapField[g.Field] {
				continue
			}
			seenGapField[g.Field] = true
			combined.Gaps = append(combined.Gaps, g)
		}
		combined.Conflicts = append(combined.Conflicts, e.Conflicts...)
	}
	for i, c := range content {
		if i > 0 {
			combined.Content += "\n\n"
		}
		combined.Content += c
	}
	combined.Grounding = ai.ComputeGrounding(combined)
	combined.Status = ai.ComputeStatus(combined)
	return combined
}

// applyStrictMode drops content that cannot be attributed to any source
// when hints.StrictMode is set and the overall grounding is Inferred,
// recording the removal as a gap instead (spec §4.7 "Strict mode").
func applyStrictMode(e ai.Extraction, strict bool) ai.Extraction {
	if !strict || e.Grounding != ai.Inferred {
		return e
	}
	e.Gaps = append(e.Gaps, ai.MissingField{
		Field: "content",
		Query: ai.GapQuery{
			Text: "content could not be attributed to any source and was removed under strict mode",
			Kind: ai.GapSemantic,
		},
		Reason: ai.NotMentioned,
	})
	e.Content = ""
	return e
}

// unionPages loads the union of every partition's URLs, preserving the
// hybrid-score order partitions already carry and de-duplicating.
func unionPages(ctx context.Context, store pagestore.PageStore, partitions []ai.Partition) ([]pagestore.CachedPage, error) {
	seen := make(map[string]bool)
	var urls []string
	for _, p := range partitions {
		for _, u := range p.URLs {
			if seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	pages, err := store.GetPages(ctx, urls)
	if err != nil {
		return nil, err
	}
	order := make(map[string]int, len(urls))
	for i, u := range urls {
		order[u] = i
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return order[pages[i].URL] < order[pages[j].URL]
	})
	return pages, nil
}
