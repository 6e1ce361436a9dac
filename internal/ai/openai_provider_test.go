package ai

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// stubProvider implements Provider with canned chat/embedding responses so
// OpenAIProvider's JSON parsing and grounding logic can be tested without a
// network call, mirroring the teacher's table-driven httptest style adapted
// to an interface stub instead of an HTTP server.
type stubProvider struct {
	chatContent string
	chatErr     error
	embeddings  [][]float32
}

func (s *stubProvider) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.chatErr != nil {
		return openai.ChatCompletionResponse{}, s.chatErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.chatContent}},
		},
	}, nil
}

func (s *stubProvider) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestStrings) (openai.EmbeddingResponse, error) {
	data := make([]openai.Embedding, len(s.embeddings))
	for i, v := range s.embeddings {
		data[i] = openai.Embedding{Embedding: v, Index: i}
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

func TestOpenAIProviderSummarizeParsesSignals(t *testing.T) {
	payload := map[string]any{
		"summary_markdown": "Acme sells widgets.",
		"signals": []map[string]any{
			{"type": "entity", "value": "Acme", "confidence": 0.9},
		},
	}
	raw, _ := json.Marshal(payload)
	p := &OpenAIProvider{Client: &stubProvider{chatContent: string(raw)}, ChatModel: "gpt-test"}

	summary, signals, err := p.Summarize(context.Background(), "Acme sells widgets.", "https://acme.example")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "Acme sells widgets." {
		t.Errorf("unexpected summary: %q", summary)
	}
	if len(signals) != 1 || signals[0].Value != "Acme" || !signals[0].HasConfidence {
		t.Fatalf("unexpected signals: %+v", signals)
	}
}

func TestOpenAIProviderExtractGroundingVerified(t *testing.T) {
	payload := map[string]any{
		"content": "Both vendors offer free shipping [1][2].",
		"sources": []map[string]string{
			{"url": "https://a.example", "title": "A"},
			{"url": "https://b.example", "title": "B"},
		},
	}
	raw, _ := json.Marshal(payload)
	p := &OpenAIProvider{Client: &stubProvider{chatContent: string(raw)}, ChatModel: "gpt-test"}

	extraction, err := p.Extract(context.Background(), "find all shipping offers", nil, ExtractHints{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if extraction.Grounding != Verified {
		t.Errorf("expected Verified, got %s", extraction.Grounding)
	}
	if extraction.Status != Found {
		t.Errorf("expected Found, got %s", extraction.Status)
	}
}

func TestOpenAIProviderExtractGroundingConflicted(t *testing.T) {
	payload := map[string]any{
		"content": "Prices disagree across sources.",
		"sources": []map[string]string{
			{"url": "https://a.example"},
			{"url": "https://b.example"},
		},
		"conflicts": []map[string]any{
			{"claim": "price is $10", "supporting_urls": []string{"https://a.example"}, "contradicting_urls": []string{"https://b.example"}},
		},
	}
	raw, _ := json.Marshal(payload)
	p := &OpenAIProvider{Client: &stubProvider{chatContent: string(raw)}, ChatModel: "gpt-test"}

	extraction, err := p.ExtractSingle(context.Background(), "what is the price", nil, ExtractHints{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if extraction.Grounding != Conflicted {
		t.Errorf("expected Conflicted, got %s", extraction.Grounding)
	}
	if extraction.Status != Contradictory {
		t.Errorf("expected Contradictory, got %s", extraction.Status)
	}
}

func TestOpenAIProviderEmbedBatch(t *testing.T) {
	p := &OpenAIProvider{
		Client:         &stubProvider{embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}}},
		EmbeddingModel: "text-embedding-3-small",
	}
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %+v", vectors)
	}
}

func TestOpenAIProviderPromptHashStableForSameModel(t *testing.T) {
	p1 := &OpenAIProvider{ChatModel: "gpt-test"}
	p2 := &OpenAIProvider{ChatModel: "gpt-test"}
	if p1.PromptHash() != p2.PromptHash() {
		t.Fatalf("expected identical prompt hash for identical model+prompt")
	}
	p3 := &OpenAIProvider{ChatModel: "gpt-other"}
	if p1.PromptHash() == p3.PromptHash() {
		t.Fatalf("expected different prompt hash for different model")
	}
}
