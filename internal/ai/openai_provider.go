package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fourthplaces/extractor/internal/pagestore"
	"github.com/fourthplaces/extractor/internal/xerrors"
	"github.com/rs/zerolog/log"
)

// ChatClient mirrors the teacher's llm.Client: the minimal surface needed to
// call a chat model, so any OpenAI-compatible or local backend can be
// adapted without depending on the concrete SDK client type.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmbeddingClient mirrors the embeddings half of the SDK surface.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestStrings) (openai.EmbeddingResponse, error)
}

// Provider is the union the OpenAIProvider needs; *openai.Client satisfies
// both halves, exactly like the teacher's llm.OpenAIProvider wraps the SDK.
type Provider interface {
	ChatClient
	EmbeddingClient
}

// OpenAIProvider is the reference AI implementation, calling an
// OpenAI-compatible chat+embeddings endpoint. It enforces the strict-JSON
// contract documented in prompts.go and caches responses by prompt hash.
type OpenAIProvider struct {
	Client         Provider
	ChatModel      string
	EmbeddingModel string
	Cache          *PromptCache
	Verbose        bool
}

func (p *OpenAIProvider) call(ctx context.Context, system, user string) (string, error) {
	if p.Client == nil || p.ChatModel == "" {
		return "", errors.New("ai provider not configured")
	}
	key := KeyFrom(p.ChatModel, system, user)
	if p.Cache != nil {
		if raw, ok, _ := p.Cache.Get(ctx, key); ok {
			var cached struct {
				Raw string `json:"raw"`
			}
			if err := json.Unmarshal(raw, &cached); err == nil && cached.Raw != "" {
				return cached.Raw, nil
			}
		}
	}
	if p.Verbose {
		log.Debug().Str("stage", "ai").Str("model", p.ChatModel).Int("system_len", len(system)).Int("user_len", len(user)).Msg("ai prompt")
	}
	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", xerrors.ErrCancelled
		}
		return "", xerrors.NewAIError(fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", xerrors.NewAIError(errors.New("no choices returned"))
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if p.Cache != nil {
		if payload, err := json.Marshal(map[string]string{"raw": raw}); err == nil {
			_ = p.Cache.Save(ctx, key, payload)
		}
	}
	return raw, nil
}

// PromptHash reports the version-addressable hash of the summarizer prompt,
// used to detect stale Summaries when the prompt text changes (spec §4.3).
func (p *OpenAIProvider) PromptHash() string {
	return PromptHash(p.ChatModel, summarizeSystemPrompt)
}

func (p *OpenAIProvider) EmbeddingModelID() string { return p.EmbeddingModel }

func (p *OpenAIProvider) Summarize(ctx context.Context, content, url string) (string, []pagestore.Signal, error) {
	raw, err := p.call(ctx, summarizeSystemPrompt, summarizeUserPrompt(content, url))
	if err != nil {
		return "", nil, err
	}
	var out struct {
		SummaryMarkdown string `json:"summary_markdown"`
		Signals         []struct {
			Type           string   `json:"type"`
			Value          string   `json:"value"`
			Subtype        string   `json:"subtype"`
			Confidence     *float64 `json:"confidence"`
			ContextSnippet string   `json:"context_snippet"`
			Tags           []string `json:"tags"`
		} `json:"signals"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", nil, xerrors.NewAIError(fmt.Errorf("parse summarize json: %w", err))
	}
	signals := make([]pagestore.Signal, 0, len(out.Signals))
	for _, s := range out.Signals {
		sig := pagestore.Signal{
			Type:           s.Type,
			Value:          s.Value,
			Subtype:        s.Subtype,
			ContextSnippet: s.ContextSnippet,
			Tags:           s.Tags,
		}
		if s.Confidence != nil {
			sig.Confidence = *s.Confidence
			sig.HasConfidence = true
		}
		signals = append(signals, sig)
	}
	if strings.TrimSpace(out.SummaryMarkdown) == "" {
		return "", nil, xerrors.NewAIError(errors.New("empty summary"))
	}
	return out.SummaryMarkdown, signals, nil
}

func (p *OpenAIProvider) ClassifyQuery(ctx context.Context, query string) (ExtractionStrategy, error) {
	raw, err := p.call(ctx, classifySystemPrompt, classifyUserPrompt(query))
	if err != nil {
		return Collection, err
	}
	var out struct {
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Collection, xerrors.NewAIError(fmt.Errorf("parse classify json: %w", err))
	}
	switch out.Strategy {
	case "Singular":
		return Singular, nil
	case "Narrative":
		return Narrative, nil
	case "Collection":
		return Collection, nil
	default:
		return Collection, xerrors.NewAIError(fmt.Errorf("unknown strategy %q", out.Strategy))
	}
}

func (p *OpenAIProvider) RecallAndPartition(ctx context.Context, query string, summaries []pagestore.Summary) ([]Partition, error) {
	raw, err := p.call(ctx, recallPartitionSystemPrompt, recallPartitionUserPrompt(query, summaries))
	if err != nil {
		return nil, err
	}
	var out struct {
		Partitions []struct {
			Label string   `json:"label"`
			URLs  []string `json:"urls"`
		} `json:"partitions"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, xerrors.NewAIError(fmt.Errorf("parse partition json: %w", err))
	}
	partitions := make([]Partition, 0, len(out.Partitions))
	for _, part := range out.Partitions {
		partitions = append(partitions, Partition{Label: part.Label, URLs: part.URLs})
	}
	return partitions, nil
}

func (p *OpenAIProvider) extract(ctx context.Context, system, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error) {
	raw, err := p.call(ctx, system, extractUserPrompt(query, pages, hints))
	if err != nil {
		return Extraction{}, err
	}
	return parseExtraction(raw)
}

func (p *OpenAIProvider) Extract(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error) {
	return p.extract(ctx, extractSystemPromptCollection, query, pages, hints)
}

func (p *OpenAIProvider) ExtractSingle(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error) {
	return p.extract(ctx, extractSystemPromptSingular, query, pages, hints)
}

func (p *OpenAIProvider) ExtractNarrative(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error) {
	return p.extract(ctx, extractSystemPromptNarrative, query, pages, hints)
}

func parseExtraction(raw string) (Extraction, error) {
	var out struct {
		Content string `json:"content"`
		Sources []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"sources"`
		Gaps []struct {
			Field     string   `json:"field"`
			QueryText string   `json:"query_text"`
			QueryKind string   `json:"query_kind"`
			Hints     []string `json:"hints"`
			Reason    string   `json:"reason"`
		} `json:"gaps"`
		Conflicts []struct {
			Claim             string   `json:"claim"`
			SupportingURLs    []string `json:"supporting_urls"`
			ContradictingURLs []string `json:"contradicting_urls"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Extraction{}, xerrors.NewAIError(fmt.Errorf("parse extraction json: %w", err))
	}
	extraction := Extraction{Content: out.Content}
	for _, s := range out.Sources {
		extraction.Sources = append(extraction.Sources, Source{URL: s.URL, Title: s.Title})
	}
	for _, g := range out.Gaps {
		extraction.Gaps = append(extraction.Gaps, MissingField{
			Field: g.Field,
			Query: GapQuery{
				Text:  g.QueryText,
				Kind:  parseGapKind(g.QueryKind),
				Hints: g.Hints,
			},
			Reason: parseGapReason(g.Reason),
		})
	}
	for _, c := range out.Conflicts {
		extraction.Conflicts = append(extraction.Conflicts, Conflict{
			Claim:             c.Claim,
			SupportingURLs:    c.SupportingURLs,
			ContradictingURLs: c.ContradictingURLs,
		})
	}
	extraction.Grounding = computeGrounding(extraction)
	extraction.Status = computeStatus(extraction)
	return extraction, nil
}

func parseGapKind(s string) GapKind {
	switch s {
	case "entity":
		return GapEntity
	case "structural":
		return GapStructural
	default:
		return GapSemantic
	}
}

func parseGapReason(s string) GapReason {
	switch s {
	case "Ambiguous":
		return Ambiguous
	case "OutOfScope":
		return OutOfScope
	default:
		return NotMentioned
	}
}

// ComputeGrounding implements spec §4.7: Inferred if any claim has zero
// attributable urls (here: any source without a URL is treated as
// unattributed), Conflicted if any conflict remains, SingleSource if some
// claim depends on only one url, else Verified. Exported so callers that
// combine or supplement an Extraction (the extractor and detective
// packages) can recompute grounding after merging.
func ComputeGrounding(e Extraction) Grounding {
	return computeGrounding(e)
}

func computeGrounding(e Extraction) Grounding {
	if len(e.Sources) == 0 {
		return Inferred
	}
	for _, s := range e.Sources {
		if strings.TrimSpace(s.URL) == "" {
			return Inferred
		}
	}
	if len(e.Conflicts) > 0 {
		return Conflicted
	}
	if len(e.Sources) == 1 {
		return SingleSource
	}
	return Verified
}

// ComputeStatus is the exported counterpart of computeStatus; see
// ComputeGrounding.
func ComputeStatus(e Extraction) Status {
	return computeStatus(e)
}

func computeStatus(e Extraction) Status {
	if strings.TrimSpace(e.Content) == "" {
		return Missing
	}
	if len(e.Conflicts) > 0 {
		return Contradictory
	}
	if len(e.Gaps) > 0 {
		return Partial
	}
	return Found
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, xerrors.NewAIError(errors.New("no embedding returned"))
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.Client == nil || p.EmbeddingModel == "" {
		return nil, errors.New("embedding provider not configured")
	}
	resp, err := p.Client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.EmbeddingModel),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, xerrors.ErrCancelled
		}
		return nil, xerrors.NewAIError(fmt.Errorf("create embeddings: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, xerrors.NewAIError(fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)))
	}
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
