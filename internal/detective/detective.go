// Package detective turns an Extraction's gaps into investigation steps and
// executes them. It owns planning and single-step execution only; the
// caller owns the loop, budget, and retry policy. Planning is a pure
// deterministic rule over gap kind; no LLM call is involved.
package detective

import (
	"context"
	"strings"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/orchestrator"
	"github.com/fourthplaces/extractor/internal/pagestore"
)

// defaultSearchLimit bounds a HybridSearch step's result set; spec §4.8
// leaves the limit implementation-defined, so this mirrors internal/recall's
// default.
const defaultSearchLimit = 50

// StepKind identifies which investigation action a Step performs.
type StepKind int

const (
	HybridSearch StepKind = iota
	FetchUrls
	CrawlSite
)

// Step is one investigation action planned for a single gap (spec §4.8).
// Only the fields relevant to Kind are meaningful.
type Step struct {
	Kind StepKind

	// HybridSearch
	Text           string
	SemanticWeight float64

	// FetchUrls
	URLs []string

	// CrawlSite
	Root         string
	MaxDepth     int
	IncludeGlobs []string

	// Gap is the MissingField this step was planned to resolve, carried
	// through so callers can correlate StepResults back to gaps.
	Gap ai.MissingField
}

// Plan is the ordered set of steps produced for one Extraction's gaps.
type Plan struct {
	Steps []Step
}

// StepResult is the outcome of executing one Step (spec §4.8).
type StepResult struct {
	NewPageURLs   []string
	CandidateURLs []string
}

const (
	entityHybridSemanticWeight   = 0.3
	semanticHybridSemanticWeight = 0.8
	crawlSiteMaxDepth            = 1
)

// PlanInvestigation maps each gap in extraction to one Step, per spec §4.8's
// per-kind rule. A structural gap with no URL hint and no attributed source
// has no site to crawl and gets no step, so an Extraction whose gaps are all
// of that kind yields an empty Plan.
func PlanInvestigation(extraction ai.Extraction) Plan {
	plan := Plan{}
	for _, gap := range extraction.Gaps {
		step := planStep(gap, extraction)
		if step.Kind == CrawlSite && step.Root == "" {
			continue
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

func planStep(gap ai.MissingField, extraction ai.Extraction) Step {
	switch gap.Query.Kind {
	case ai.GapEntity:
		return Step{
			Kind:           HybridSearch,
			Text:           gapSearchText(gap),
			SemanticWeight: entityHybridSemanticWeight,
			Gap:            gap,
		}
	case ai.GapStructural:
		if urls := concreteURLs(gap.Query.Hints); len(urls) > 0 {
			return Step{Kind: FetchUrls, URLs: urls, Gap: gap}
		}
		return Step{
			Kind:         CrawlSite,
			Root:         crawlRoot(gap, extraction),
			MaxDepth:     crawlSiteMaxDepth,
			IncludeGlobs: gap.Query.Hints,
			Gap:          gap,
		}
	default: // ai.GapSemantic
		return Step{
			Kind:           HybridSearch,
			Text:           gapSearchText(gap),
			SemanticWeight: semanticHybridSemanticWeight,
			Gap:            gap,
		}
	}
}

func gapSearchText(gap ai.MissingField) string {
	if strings.TrimSpace(gap.Query.Text) != "" {
		return gap.Query.Text
	}
	return gap.Field
}

// concreteURLs returns the subset of hints that look like absolute URLs, the
// signal spec §4.8 uses to prefer FetchUrls over CrawlSite for structural
// gaps.
func concreteURLs(hints []string) []string {
	var urls []string
	for _, h := range hints {
		if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
			urls = append(urls, h)
		}
	}
	return urls
}

// crawlRoot picks a root to re-crawl when a structural gap carries no
// concrete URLs: the site of the extraction's first source, since a
// structural gap ("missing page", "missing section") is almost always
// local to a site already under investigation.
func crawlRoot(gap ai.MissingField, extraction ai.Extraction) string {
	for _, h := range gap.Query.Hints {
		if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
			return h
		}
	}
	for _, s := range extraction.Sources {
		if s.URL != "" {
			return pagestore.Site(s.URL)
		}
	}
	return ""
}

// Executor executes a single Step against the store/ingestor/AI stack. It
// never loops; spec §4.8 "Loop ownership" leaves iteration to the caller.
type Executor struct {
	Store        pagestore.PageStore
	AI           ai.AI
	Ingestor     ingest.Ingestor
	Orchestrator *orchestrator.Orchestrator
}

// ExecuteStep runs one Step and reports the pages it surfaced or stored.
func (e *Executor) ExecuteStep(ctx context.Context, step Step) (StepResult, error) {
	switch step.Kind {
	case HybridSearch:
		return e.executeHybridSearch(ctx, step)
	case FetchUrls:
		return e.executeFetchUrls(ctx, step)
	case CrawlSite:
		return e.executeCrawlSite(ctx, step)
	default:
		return StepResult{}, nil
	}
}

func (e *Executor) executeHybridSearch(ctx context.Context, step Step) (StepResult, error) {
	vector, err := e.AI.Embed(ctx, step.Text)
	if err != nil {
		return StepResult{}, err
	}
	refs, err := e.Store.SearchHybrid(ctx, step.Text, vector, defaultSearchLimit, nil, step.SemanticWeight)
	if err != nil {
		return StepResult{}, err
	}
	urls := make([]string, len(refs))
	for i, r := range refs {
		urls[i] = r.URL
	}
	return StepResult{CandidateURLs: urls}, nil
}

func (e *Executor) executeFetchUrls(ctx context.Context, step Step) (StepResult, error) {
	result, err := e.Orchestrator.RunURLs(ctx, orchestrator.Config{}, e.Ingestor, step.URLs)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{NewPageURLs: result.StoredURLs, CandidateURLs: result.StoredURLs}, nil
}

func (e *Executor) executeCrawlSite(ctx context.Context, step Step) (StepResult, error) {
	discover := ingest.DiscoverConfig{
		Roots:        []string{step.Root},
		MaxDepth:     step.MaxDepth,
		IncludeGlobs: step.IncludeGlobs,
	}
	result, err := e.Orchestrator.Run(ctx, orchestrator.Config{}, e.Ingestor, discover)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{NewPageURLs: result.StoredURLs, CandidateURLs: result.StoredURLs}, nil
}

// PagesFromStepResult loads the CachedPages a StepResult's URLs refer to
// (spec §4.8 "pages_from_step_result"), preferring NewPageURLs but falling
// back to CandidateURLs for steps (HybridSearch) that only ever surface
// already-stored pages.
func PagesFromStepResult(ctx context.Context, store pagestore.PageStore, result StepResult) ([]pagestore.CachedPage, error) {
	urls := result.NewPageURLs
	if len(urls) == 0 {
		urls = result.CandidateURLs
	}
	return store.GetPages(ctx, urls)
}

// Merge folds a supplemental Extraction (from re-extracting over the pages a
// StepResult surfaced) into a prior Extraction, per spec §4.8 "Merge":
// sources/conflicts/gaps union, gaps deduped by field, grounding recomputed.
func Merge(prior, supplement ai.Extraction) ai.Extraction {
	merged := prior
	seenSource := make(map[string]bool, len(prior.Sources))
	for _, s := range prior.Sources {
		seenSource[s.URL] = true
	}
	for _, s := range supplement.Sources {
		if seenSource[s.URL] {
			continue
		}
		seenSource[s.URL] = true
		merged.Sources = append(merged.Sources, s)
	}

	seenGapField := make(map[string]bool, len(prior.Gaps))
	resolved := make(map[string]bool)
	var remainingGaps []ai.MissingField
	for _, g := range prior.Gaps {
		if gapResolvedBySupplement(g, supplement) {
			resolved[g.Field] = true
			continue
		}
		if seenGapField[g.Field] {
			continue
		}
		seenGapField[g.Field] = true
		remainingGaps = append(remainingGaps, g)
	}
	for _, g := range supplement.Gaps {
		if resolved[g.Field] || seenGapField[g.Field] {
			continue
		}
		seenGapField[g.Field] = true
		remainingGaps = append(remainingGaps, g)
	}
	merged.Gaps = remainingGaps

	merged.Conflicts = append(append([]ai.Conflict{}, prior.Conflicts...), supplement.Conflicts...)
	if supplement.Content != "" {
		if merged.Content != "" {
			merged.Content += "\n\n" + supplement.Content
		} else {
			merged.Content = supplement.Content
		}
	}
	merged.Grounding = ai.ComputeGrounding(merged)
	merged.Status = ai.ComputeStatus(merged)
	return merged
}

// gapResolvedBySupplement treats a prior gap as closed once the supplement
// attributes at least one source and reports no gap for the same field.
func gapResolvedBySupplement(gap ai.MissingField, supplement ai.Extraction) bool {
	if len(supplement.Sources) == 0 {
		return false
	}
	for _, g := range supplement.Gaps {
		if g.Field == gap.Field {
			return false
		}
	}
	return true
}
