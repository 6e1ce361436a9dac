package index

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/detective"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/pagestore/memory"
	"github.com/fourthplaces/extractor/internal/xerrors"
)

func ingestPages(t *testing.T, ctx context.Context, ix *Index, pages ...ingest.RawPage) {
	t.Helper()
	mock := ingest.NewMockIngestor()
	urls := make([]string, len(pages))
	for i, p := range pages {
		mock.AddPage(p)
		urls[i] = p.URL
	}
	result, err := ix.IngestURLs(ctx, urls, mock)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no ingest failures, got %+v", result.Failures)
	}
}

// S1 (Collection): two team pages, a "list ... with emails" query should
// produce one Verified Extraction citing both pages with no gaps.
func TestScenarioCollectionListsBothTeamMembers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	provider.SetPartitions("list team members with emails", []ai.Partition{
		{Label: "team", URLs: []string{"https://example.org/team/a", "https://example.org/team/b"}},
	})
	ix := New(store, provider)
	ingestPages(t, ctx, ix,
		ingest.RawPage{URL: "https://example.org/team/a", Content: "Ada Lovelace, CEO. ada@example.org."},
		ingest.RawPage{URL: "https://example.org/team/b", Content: "Linus Ng, CTO. linus@example.org."},
	)

	extractions, err := ix.Extract(ctx, "list team members with emails", nil, ExtractionConfig{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(extractions) != 1 {
		t.Fatalf("expected one combined Extraction, got %d", len(extractions))
	}
	e := extractions[0]
	if e.Grounding != ai.Verified {
		t.Errorf("expected Verified grounding, got %v", e.Grounding)
	}
	if len(e.Gaps) != 0 {
		t.Errorf("expected no gaps, got %+v", e.Gaps)
	}
	if len(e.Sources) != 2 {
		t.Fatalf("expected both pages cited, got %d sources", len(e.Sources))
	}
}

// S2 (Singular): the same corpus, asking "who is the CEO?" should return a
// SingleSource Extraction citing only team/a.
func TestScenarioSingularWhoIsCEO(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	provider.SetExtraction("who is the CEO?", ai.Extraction{
		Content: "Ada Lovelace is the CEO.",
		Sources: []ai.Source{{URL: "https://example.org/team/a"}},
	})
	ix := New(store, provider)
	ingestPages(t, ctx, ix,
		ingest.RawPage{URL: "https://example.org/team/a", Content: "Ada Lovelace, CEO. ada@example.org."},
		ingest.RawPage{URL: "https://example.org/team/b", Content: "Linus Ng, CTO. linus@example.org."},
	)

	extractions, err := ix.Extract(ctx, "who is the CEO?", nil, ExtractionConfig{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(extractions) != 1 {
		t.Fatalf("expected exactly one Extraction, got %d", len(extractions))
	}
	e := extractions[0]
	if e.Grounding != ai.SingleSource {
		t.Errorf("expected SingleSource grounding, got %v", e.Grounding)
	}
	if len(e.Sources) != 1 || e.Sources[0].URL != "https://example.org/team/a" {
		t.Fatalf("expected exactly team/a cited, got %+v", e.Sources)
	}
}

// S3 (Gap + Detective): a board-members query surfaces a redacted entity as
// a gap; planning yields a lexical-biased HybridSearch step; executing it to
// discover a contact page and re-extracting with extract_from clears the
// gap and raises grounding.
func TestScenarioGapDetectiveResolvesRedactedContact(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	query := "list board members with contact emails"
	aboutPage := ai.Source{URL: "https://example.org/about"}
	gap := ai.MissingField{
		Field: "contact email for <redacted>",
		Query: ai.GapQuery{Text: "<redacted>", Kind: ai.GapEntity},
	}
	provider.SetExtraction(query, ai.Extraction{
		Content:   "Board: Ada Lovelace (Chair), Linus Ng, <redacted>.",
		Sources:   []ai.Source{aboutPage},
		Gaps:      []ai.MissingField{gap},
		Grounding: ai.SingleSource,
		Status:    ai.Partial,
	})
	ix := New(store, provider)
	ingestPages(t, ctx, ix, ingest.RawPage{
		URL:     "https://example.org/about",
		Content: "Board: Ada Lovelace (Chair), Linus Ng, <redacted>.",
	})

	extractions, err := ix.Extract(ctx, query, nil, ExtractionConfig{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(extractions) != 1 {
		t.Fatalf("expected one Extraction, got %d", len(extractions))
	}
	prior := extractions[0]
	if len(prior.Gaps) != 1 || prior.Gaps[0].Field != gap.Field {
		t.Fatalf("expected the redacted-contact gap, got %+v", prior.Gaps)
	}

	plan := ix.PlanInvestigation(prior)
	if len(plan.Steps) != 1 {
		t.Fatalf("expected one planned step, got %d", len(plan.Steps))
	}
	step := plan.Steps[0]
	if step.Kind != detective.HybridSearch || step.SemanticWeight != 0.3 || step.Text != "<redacted>" {
		t.Fatalf("expected a lexical-biased HybridSearch step for '<redacted>', got %+v", step)
	}

	contactMock := ingest.NewMockIngestor()
	contactMock.AddPage(ingest.RawPage{URL: "https://example.org/contact", Content: "Ada Lovelace: ada@example.org"})
	fetchStep := detective.Step{Kind: detective.FetchUrls, URLs: []string{"https://example.org/contact"}}
	result, err := ix.ExecuteStep(ctx, fetchStep, contactMock)
	if err != nil {
		t.Fatalf("execute step: %v", err)
	}
	newPages, err := ix.PagesFromStepResult(ctx, result)
	if err != nil {
		t.Fatalf("pages from step result: %v", err)
	}
	allPages, err := ix.Read(ctx, []string{"https://example.org/about"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	allPages = append(allPages, newPages...)

	provider.SetExtraction(query, ai.Extraction{
		Content: "Board: Ada Lovelace (Chair), Linus Ng. Contact: ada@example.org.",
		Sources: []ai.Source{aboutPage, {URL: "https://example.org/contact"}},
	})
	supplement, err := ix.ExtractFrom(ctx, query, allPages, ExtractionConfig{})
	if err != nil {
		t.Fatalf("extract_from: %v", err)
	}
	merged := detective.Merge(prior, supplement)
	if len(merged.Gaps) != 0 {
		t.Fatalf("expected the gap cleared after merging the supplement, got %+v", merged.Gaps)
	}
	if merged.Grounding == ai.Inferred {
		t.Errorf("expected grounding raised above Inferred, got %v", merged.Grounding)
	}
}

// S4 (Conflict): two pages disagreeing on founding year should surface as a
// Conflicted/Contradictory Extraction.
func TestScenarioConflictingFoundingYears(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provider := ai.NewFakeProvider()
	query := "when was the company founded?"
	provider.SetExtraction(query, ai.Extraction{
		Content: "Sources disagree: founded in 1999 according to one page, 2001 according to another.",
		Sources: []ai.Source{
			{URL: "https://example.org/founded-in-1999"},
			{URL: "https://example.org/founded-in-2001"},
		},
		Conflicts: []ai.Conflict{{
			Claim:             "founding year",
			SupportingURLs:    []string{"https://example.org/founded-in-1999"},
			ContradictingURLs: []string{"https://example.org/founded-in-2001"},
		}},
	})
	ix := New(store, provider)
	ingestPages(t, ctx, ix,
		ingest.RawPage{URL: "https://example.org/founded-in-1999", Content: "Founded in 1999."},
		ingest.RawPage{URL: "https://example.org/founded-in-2001", Content: "Founded in 2001."},
	)

	extractions, err := ix.Extract(ctx, query, nil, ExtractionConfig{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	e := extractions[0]
	if e.Grounding != ai.Conflicted {
		t.Errorf("expected Conflicted grounding, got %v", e.Grounding)
	}
	if e.Status != ai.Contradictory {
		t.Errorf("expected Contradictory status, got %v", e.Status)
	}
	if len(e.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(e.Conflicts))
	}
}

// S5 (SSRF): ingesting a link-local metadata URL through a
// ValidatedIngestor must fail with Crawl(Security) and store nothing.
func TestScenarioSSRFRefusesMetadataAddress(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ix := New(store, ai.NewFakeProvider())

	inner := ingest.NewMockIngestor()
	inner.AddPage(ingest.RawPage{URL: "http://169.254.169.254/latest/", Content: "leaked credentials"})
	validated := ingest.NewValidatedIngestor(inner, func(_ context.Context, _ string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("169.254.169.254")}, nil
	})

	result, err := ix.IngestURLs(ctx, []string{"http://169.254.169.254/latest/"}, validated)
	if err != nil {
		t.Fatalf("ingest_urls should collect the failure per-URL, not abort: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected one SSRF failure, got %d", len(result.Failures))
	}
	var crawlErr *xerrors.CrawlError
	if !errors.As(result.Failures[0].Err, &crawlErr) || crawlErr.Kind != xerrors.CrawlSecurity {
		t.Fatalf("expected Crawl(Security), got %v", result.Failures[0].Err)
	}
	page, err := store.GetPage(ctx, "http://169.254.169.254/latest/")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page != nil {
		t.Errorf("expected no store entry for the refused URL, got %+v", page)
	}
}
