package ai

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

// FakeProvider is a deterministic, in-process AI implementation for tests,
// grounded on the teacher's preference for fakes over live network calls
// (mirrors ingest.MockIngestor). Callers seed responses with the Set*
// helpers; anything not seeded falls back to a simple deterministic default
// so scenario tests don't need to script every call.
type FakeProvider struct {
	mu sync.Mutex

	strategies map[string]ExtractionStrategy
	partitions map[string][]Partition
	extracts   map[string]Extraction

	// EmbedDim controls the length of vectors produced by the deterministic
	// fallback embedder (default 8 when unset).
	EmbedDim int
}

// NewFakeProvider returns an empty fake; seed it via SetStrategy/
// SetPartitions/SetExtraction before use, or rely on the deterministic
// fallbacks.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		strategies: make(map[string]ExtractionStrategy),
		partitions: make(map[string][]Partition),
		extracts:   make(map[string]Extraction),
	}
}

func (f *FakeProvider) SetStrategy(query string, strategy ExtractionStrategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[query] = strategy
}

func (f *FakeProvider) SetPartitions(query string, partitions []Partition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[query] = partitions
}

func (f *FakeProvider) SetExtraction(query string, extraction Extraction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts[query] = extraction
}

func (f *FakeProvider) PromptHash() string { return "fake-prompt-v1" }

func (f *FakeProvider) EmbeddingModelID() string { return "fake-embedding-v1" }

// Summarize returns the first line of content (or the whole thing if short)
// as the summary, plus one deterministic "entity" signal derived from the
// URL, so tests exercise the signal pipeline without needing to seed it.
func (f *FakeProvider) Summarize(_ context.Context, content, url string) (string, []pagestore.Signal, error) {
	summary := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		summary = content[:idx]
	}
	if strings.TrimSpace(summary) == "" {
		summary = "(empty page)"
	}
	signal := pagestore.Signal{Type: "entity", Value: url, HasConfidence: true, Confidence: 1}
	return summary, []pagestore.Signal{signal}, nil
}

// ClassifyQuery applies the same heuristic keywords named in spec §4.5 as a
// deterministic stand-in for an LLM classification.
func (f *FakeProvider) ClassifyQuery(_ context.Context, query string) (ExtractionStrategy, error) {
	f.mu.Lock()
	if strategy, ok := f.strategies[query]; ok {
		f.mu.Unlock()
		return strategy, nil
	}
	f.mu.Unlock()

	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "find all"), strings.Contains(q, "list "), strings.Contains(q, "enumerate"):
		return Collection, nil
	case strings.Contains(q, "describe"), strings.Contains(q, "summarize"), strings.Contains(q, "tell me about"):
		return Narrative, nil
	case strings.Contains(q, "what is"), strings.Contains(q, "who is"):
		return Singular, nil
	default:
		return Collection, nil
	}
}

// RecallAndPartition returns seeded partitions if present, else one bucket
// per summary, matching the spec §4.6 synthesize-one-bucket-per-summary
// fallback so this never needs seeding for simple tests.
func (f *FakeProvider) RecallAndPartition(_ context.Context, query string, summaries []pagestore.Summary) ([]Partition, error) {
	f.mu.Lock()
	if parts, ok := f.partitions[query]; ok {
		f.mu.Unlock()
		return parts, nil
	}
	f.mu.Unlock()

	partitions := make([]Partition, 0, len(summaries))
	for _, s := range summaries {
		partitions = append(partitions, Partition{Label: s.URL, URLs: []string{s.URL}})
	}
	return partitions, nil
}

// lookupOrBuild returns the extraction seeded for query, or else one built
// from every page. Either way Grounding and Status are computed from the
// result, as OpenAIProvider does for a parsed response.
func (f *FakeProvider) lookupOrBuild(query string, pages []pagestore.CachedPage) Extraction {
	f.mu.Lock()
	extraction, ok := f.extracts[query]
	f.mu.Unlock()
	if ok {
		extraction.Grounding = computeGrounding(extraction)
		extraction.Status = computeStatus(extraction)
		return extraction
	}
	var sb strings.Builder
	var sources []Source
	for _, p := range pages {
		sb.WriteString(p.Content)
		sb.WriteString(" ")
		sources = append(sources, Source{URL: p.URL, Title: p.Title})
	}
	extraction = Extraction{
		Content: strings.TrimSpace(sb.String()),
		Sources: sources,
	}
	extraction.Grounding = computeGrounding(extraction)
	extraction.Status = computeStatus(extraction)
	return extraction
}

func (f *FakeProvider) Extract(_ context.Context, query string, pages []pagestore.CachedPage, _ ExtractHints) (Extraction, error) {
	return f.lookupOrBuild(query, pages), nil
}

func (f *FakeProvider) ExtractSingle(_ context.Context, query string, pages []pagestore.CachedPage, _ ExtractHints) (Extraction, error) {
	return f.lookupOrBuild(query, pages), nil
}

func (f *FakeProvider) ExtractNarrative(_ context.Context, query string, pages []pagestore.CachedPage, _ ExtractHints) (Extraction, error) {
	return f.lookupOrBuild(query, pages), nil
}

// Embed derives a small deterministic vector from the SHA-256 of text, so
// cosine similarity is stable across test runs without calling a real model.
func (f *FakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	dim := f.EmbedDim
	if dim == 0 {
		dim = 8
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vec, nil
}

func (f *FakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}
