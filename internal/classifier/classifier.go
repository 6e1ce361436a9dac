// Package classifier maps a query string to an extraction strategy, per spec
// §4.5. It mirrors the teacher's two-tier Planner/FallbackPlanner structure:
// an authoritative AI classifier backed by a deterministic heuristic
// fallback used when the AI call fails or returns an unusable shape.
package classifier

import (
	"context"
	"strings"

	"github.com/fourthplaces/extractor/internal/ai"
)

// Classifier decides an ai.ExtractionStrategy for a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (ai.ExtractionStrategy, error)
}

// AIClassifier calls the configured AI provider's ClassifyQuery, falling
// back to the deterministic heuristic on any error so a flaky or
// misconfigured provider never blocks extraction entirely.
type AIClassifier struct {
	AI       ai.AI
	Fallback Classifier
}

func (c *AIClassifier) Classify(ctx context.Context, query string) (ai.ExtractionStrategy, error) {
	if c.AI != nil {
		strategy, err := c.AI.ClassifyQuery(ctx, query)
		if err == nil {
			return strategy, nil
		}
	}
	if c.Fallback != nil {
		return c.Fallback.Classify(ctx, query)
	}
	return HeuristicStrategy(query), nil
}

// HeuristicClassifier applies the keyword rules from spec §4.5 directly,
// with no AI call. Callers MAY use this to override the AI classifier, or
// as the AIClassifier's Fallback.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(_ context.Context, query string) (ai.ExtractionStrategy, error) {
	return HeuristicStrategy(query), nil
}

// HeuristicStrategy implements deterministic keyword rules, checked in this
// order: "find all"/"list "/"enumerate" -> Collection; "describe"/
// "summarize"/"tell me about" -> Narrative; "what is"/"who is"/"what are"/
// "who are" -> Singular. Matching is by substring only: plural objects and
// a bare definite target ("the X") are not detected. Collection is the
// default when nothing matches, since an over-broad bucket of one is a
// safer failure mode than a false Singular.
func HeuristicStrategy(query string) ai.ExtractionStrategy {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case containsAny(q, "find all", "list ", "enumerate"):
		return ai.Collection
	case containsAny(q, "describe", "summarize", "tell me about"):
		return ai.Narrative
	case containsAny(q, "what is", "who is", "what are", "who are"):
		return ai.Singular
	default:
		return ai.Collection
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
