package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/fourthplaces/extractor/internal/ai"
)

type stubAI struct {
	ai.AI
	strategy ai.ExtractionStrategy
	err      error
}

func (s *stubAI) ClassifyQuery(context.Context, string) (ai.ExtractionStrategy, error) {
	return s.strategy, s.err
}

func TestHeuristicStrategy(t *testing.T) {
	cases := map[string]ai.ExtractionStrategy{
		"find all vendors":     ai.Collection,
		"list the offers":      ai.Collection,
		"enumerate the risks":  ai.Collection,
		"what is the price":    ai.Singular,
		"who is the founder":   ai.Singular,
		"describe the product": ai.Narrative,
		"tell me about acme":   ai.Narrative,
		"something ambiguous":  ai.Collection,
	}
	for query, want := range cases {
		if got := HeuristicStrategy(query); got != want {
			t.Errorf("HeuristicStrategy(%q) = %s, want %s", query, got, want)
		}
	}
}

func TestAIClassifierFallsBackOnError(t *testing.T) {
	c := &AIClassifier{
		AI:       &stubAI{err: errors.New("provider down")},
		Fallback: HeuristicClassifier{},
	}
	strategy, err := c.Classify(context.Background(), "find all vendors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy != ai.Collection {
		t.Errorf("expected fallback to heuristic Collection, got %s", strategy)
	}
}

func TestAIClassifierUsesProviderWhenAvailable(t *testing.T) {
	c := &AIClassifier{AI: &stubAI{strategy: ai.Narrative}}
	strategy, err := c.Classify(context.Background(), "what is this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy != ai.Narrative {
		t.Errorf("expected provider strategy Narrative, got %s", strategy)
	}
}
