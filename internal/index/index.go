// Package index implements the Index façade (spec §4.9): the public surface
// composing page store, ingestor, AI, orchestrator, classifier, recall, and
// extractor into a handful of caller-facing operations. Grounded on the
// teacher's app.App: a thin composition root over its own sub-packages,
// configured by a flat options struct with enumerated defaults (config.go).
package index

import (
	"context"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/classifier"
	"github.com/fourthplaces/extractor/internal/detective"
	"github.com/fourthplaces/extractor/internal/extractor"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/orchestrator"
	"github.com/fourthplaces/extractor/internal/pagestore"
	"github.com/fourthplaces/extractor/internal/recall"
	"github.com/fourthplaces/extractor/internal/xerrors"
)

// entitySearchSemanticWeight mirrors the entity-gap HybridSearch bias used
// by internal/detective's PlanInvestigation, so search_for_gap's
// "lexical-biased" search behaves the same way a planned entity-gap step
// would.
const entitySearchSemanticWeight = 0.3

// Index composes the engine's components into the façade described in spec
// §4.9. It is safe to share across goroutines: every field it wraps is
// itself safe to share, and Index holds no other mutable state.
type Index struct {
	Store        pagestore.PageStore
	AI           ai.AI
	Classifier   classifier.Classifier
	Orchestrator *orchestrator.Orchestrator
}

// New wires the default composition: an AIClassifier backed by the
// deterministic heuristic fallback, and an Orchestrator sharing the same
// Store/AI. Callers who need a different Classifier can set Index.Classifier
// directly after construction.
func New(store pagestore.PageStore, provider ai.AI) *Index {
	return &Index{
		Store:      store,
		AI:         provider,
		Classifier: &classifier.AIClassifier{AI: provider, Fallback: classifier.HeuristicClassifier{}},
		Orchestrator: &orchestrator.Orchestrator{
			Store: store,
			AI:    provider,
		},
	}
}

// Ingest crawls from discover's roots and runs the full store/summarize/
// embed pipeline (spec §4.4).
func (ix *Index) Ingest(ctx context.Context, discover ingest.DiscoverConfig, ingestor ingest.Ingestor) (orchestrator.Result, error) {
	return ix.Orchestrator.Run(ctx, orchestrator.Config{}, ingestor, discover)
}

// IngestURLs fetches a fixed URL list instead of crawling.
func (ix *Index) IngestURLs(ctx context.Context, urls []string, ingestor ingest.Ingestor) (orchestrator.Result, error) {
	return ix.Orchestrator.RunURLs(ctx, orchestrator.Config{}, ingestor, urls)
}

// IngestWithConfig exposes the orchestrator's concurrency/batch/re-summarize
// knobs directly, for callers that need non-default fan-out.
func (ix *Index) IngestWithConfig(ctx context.Context, discover ingest.DiscoverConfig, ingestor ingest.Ingestor, cfg orchestrator.Config) (orchestrator.Result, error) {
	return ix.Orchestrator.Run(ctx, cfg, ingestor, discover)
}

// Extract runs the classify -> recall+partition -> extract pipeline (spec
// §4.5-4.7) and returns one Extraction per Collection bucket, or a single
// Extraction for Singular/Narrative — the eager equivalent of ExtractStream.
func (ix *Index) Extract(ctx context.Context, query string, filter *pagestore.QueryFilter, cfg ExtractionConfig) ([]ai.Extraction, error) {
	var results []ai.Extraction
	err := ix.ExtractStream(ctx, query, filter, cfg, func(e ai.Extraction) bool {
		results = append(results, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractStream mirrors Extract but yields each Extraction as it is
// produced. yield returning false stops the call early without error.
func (ix *Index) ExtractStream(ctx context.Context, query string, filter *pagestore.QueryFilter, cfg ExtractionConfig, yield func(ai.Extraction) bool) error {
	if query == "" {
		return &xerrors.InvalidQueryError{Reason: "empty query"}
	}
	cfg = cfg.withDefaults()

	strategy, err := ix.Classifier.Classify(ctx, query)
	if err != nil {
		return err
	}
	partitions, err := recall.Run(ctx, ix.Store, ix.AI, query, strategy, recall.Options{
		MaxSummariesForPartition: cfg.MaxSummariesForPartition,
		SemanticWeight:           cfg.effectiveSemanticWeight(),
		Filter:                   filter,
	})
	if err != nil {
		return err
	}
	return extractor.RunStream(ctx, ix.Store, ix.AI, query, strategy, partitions, cfg.hints(), yield)
}

// ExtractWithCancel mirrors Extract but also stops early when cancel closes,
// independent of ctx's own deadline/cancellation.
func (ix *Index) ExtractWithCancel(ctx context.Context, query string, filter *pagestore.QueryFilter, cfg ExtractionConfig, cancel <-chan struct{}) ([]ai.Extraction, error) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ix.Extract(ctx, query, filter, cfg)
}

// ExtractFrom runs a single extraction over an explicit page set, skipping
// recall entirely (spec §4.9 "extract_from"). All pages are treated as one
// bucket regardless of strategy.
func (ix *Index) ExtractFrom(ctx context.Context, query string, pages []pagestore.CachedPage, cfg ExtractionConfig) (ai.Extraction, error) {
	if query == "" {
		return ai.Extraction{}, &xerrors.InvalidQueryError{Reason: "empty query"}
	}
	cfg = cfg.withDefaults()
	strategy, err := ix.Classifier.Classify(ctx, query)
	if err != nil {
		return ai.Extraction{}, err
	}
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	partitions := []ai.Partition{{Label: "extract_from", URLs: urls}}
	return extractor.Run(ctx, ix.Store, ix.AI, query, strategy, partitions, cfg.hints())
}

// Search runs raw hybrid recall and returns PageRefs, without classification
// or bucketing.
func (ix *Index) Search(ctx context.Context, query string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if query == "" {
		return nil, &xerrors.InvalidQueryError{Reason: "empty query"}
	}
	vector, err := ix.AI.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.Store.SearchHybrid(ctx, query, vector, limit, filter, defaultSemanticWeight)
}

// SearchForGap runs a lexical-biased hybrid search, matching the bias
// internal/detective uses when planning an entity-gap investigation step.
func (ix *Index) SearchForGap(ctx context.Context, text string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if text == "" {
		return nil, &xerrors.InvalidQueryError{Reason: "empty gap query text"}
	}
	vector, err := ix.AI.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return ix.Store.SearchHybrid(ctx, text, vector, limit, filter, entitySearchSemanticWeight)
}

// Read bulk-loads pages by URL.
func (ix *Index) Read(ctx context.Context, urls []string) ([]pagestore.CachedPage, error) {
	return ix.Store.GetPages(ctx, urls)
}

// PlanInvestigation maps extraction's gaps to investigation steps (spec
// §4.8).
func (ix *Index) PlanInvestigation(extraction ai.Extraction) detective.Plan {
	return detective.PlanInvestigation(extraction)
}

// ExecuteStep runs a single investigation step using ingestor for any
// fetch/crawl it requires.
func (ix *Index) ExecuteStep(ctx context.Context, step detective.Step, ingestor ingest.Ingestor) (detective.StepResult, error) {
	executor := &detective.Executor{
		Store:        ix.Store,
		AI:           ix.AI,
		Ingestor:     ingestor,
		Orchestrator: ix.Orchestrator,
	}
	return executor.ExecuteStep(ctx, step)
}

// PagesFromStepResult loads the CachedPages a StepResult's URLs refer to.
func (ix *Index) PagesFromStepResult(ctx context.Context, result detective.StepResult) ([]pagestore.CachedPage, error) {
	return detective.PagesFromStepResult(ctx, ix.Store, result)
}

const defaultSemanticWeight = 0.6
