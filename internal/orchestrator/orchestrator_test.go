package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/pagestore/memory"
)

func TestOrchestratorRunStoresSummarizesAndEmbeds(t *testing.T) {
	mock := ingest.NewMockIngestor()
	mock.AddPage(ingest.RawPage{URL: "https://a.example/1", Title: "One", Content: "First page content."})
	mock.AddPage(ingest.RawPage{URL: "https://a.example/2", Title: "Two", Content: "Second page content."})
	mock.SetRoot("https://a.example/", []string{"https://a.example/1", "https://a.example/2"})
	mock.AddPage(ingest.RawPage{URL: "https://a.example/", Title: "Root", Content: "root"})

	o := &Orchestrator{Store: memory.New(), AI: ai.NewFakeProvider()}
	result, err := o.Run(context.Background(), Config{}, mock, ingest.DiscoverConfig{Roots: []string{"https://a.example/"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Discovered != 3 {
		t.Fatalf("expected 3 discovered pages, got %d", result.Discovered)
	}
	if result.Stored != 3 {
		t.Fatalf("expected 3 stored pages, got %d", result.Stored)
	}
	if result.Summarized != 3 || result.Embedded != 3 {
		t.Fatalf("expected all 3 summarized and embedded, got %+v", result)
	}

	page, err := o.Store.GetPage(context.Background(), "https://a.example/1")
	if err != nil || page == nil {
		t.Fatalf("expected page to be stored: %v", err)
	}
	summary, err := o.Store.GetSummary(context.Background(), "https://a.example/1", page.ContentHash)
	if err != nil || summary == nil {
		t.Fatalf("expected summary to be stored: %v", err)
	}
}

func TestOrchestratorSkipCachedAvoidsResummarize(t *testing.T) {
	mock := ingest.NewMockIngestor()
	mock.AddPage(ingest.RawPage{URL: "https://a.example/1", Title: "One", Content: "Stable content."})

	store := memory.New()
	provider := ai.NewFakeProvider()
	o := &Orchestrator{Store: store, AI: provider}

	cfg := Config{SkipCached: true}
	if _, err := o.RunURLs(context.Background(), cfg, mock, []string{"https://a.example/1"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := o.RunURLs(context.Background(), cfg, mock, []string{"https://a.example/1"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Summarized != 0 || result.Embedded != 0 {
		t.Fatalf("expected skip_cached to avoid re-summarizing an unchanged page, got %+v", result)
	}
}

func TestOrchestratorForceResummarizeOverridesSkipCached(t *testing.T) {
	mock := ingest.NewMockIngestor()
	mock.AddPage(ingest.RawPage{URL: "https://a.example/1", Content: "Stable content."})

	store := memory.New()
	o := &Orchestrator{Store: store, AI: ai.NewFakeProvider()}

	cfg := Config{SkipCached: true}
	if _, err := o.RunURLs(context.Background(), cfg, mock, []string{"https://a.example/1"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	cfg.ForceResummarize = true
	result, err := o.RunURLs(context.Background(), cfg, mock, []string{"https://a.example/1"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Summarized != 1 || result.Embedded != 1 {
		t.Fatalf("expected force_resummarize to re-run, got %+v", result)
	}
}

func TestOrchestratorPartialFailuresDoNotAbortRun(t *testing.T) {
	mock := ingest.NewMockIngestor()
	mock.AddPage(ingest.RawPage{URL: "https://a.example/ok", Content: "fine"})
	mock.AddFailure("https://a.example/missing", errors.New("boom"))

	o := &Orchestrator{Store: memory.New(), AI: ai.NewFakeProvider()}
	result, err := o.RunURLs(context.Background(), Config{}, mock, []string{"https://a.example/ok", "https://a.example/missing"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Stored != 1 {
		t.Fatalf("expected one stored page despite a failure, got %d", result.Stored)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected one recorded failure, got %d", len(result.Failures))
	}
}
