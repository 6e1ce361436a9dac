package index

import "github.com/fourthplaces/extractor/internal/ai"

// ExtractionConfig is the named-option configuration for Extract/ExtractFrom
// calls (spec §4.9). The boolean options default to true per spec, so they
// are pointers: nil means "use the default", a set pointer means "the caller
// chose explicitly". MaxSummariesForPartition/SemanticWeight use zero-means-
// default instead, since their defaults are themselves non-zero numbers
// a caller would never intentionally pass as zero.
type ExtractionConfig struct {
	MaxSummariesForPartition int
	StrictMode               *bool
	OutputLanguage           string
	Hints                    []string
	DetectConflicts          *bool
	HybridRecall             *bool
	SemanticWeight           float64
}

const (
	defaultMaxSummariesForPartition = 50
	defaultExtractSemanticWeight    = 0.6
)

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (c ExtractionConfig) withDefaults() ExtractionConfig {
	if c.MaxSummariesForPartition <= 0 {
		c.MaxSummariesForPartition = defaultMaxSummariesForPartition
	}
	if c.SemanticWeight == 0 {
		c.SemanticWeight = defaultExtractSemanticWeight
	}
	return c
}

// effectiveSemanticWeight returns 1.0 (pure vector) when HybridRecall is
// disabled, else the configured semantic_weight.
func (c ExtractionConfig) effectiveSemanticWeight() float64 {
	if !boolOrDefault(c.HybridRecall, true) {
		return 1.0
	}
	return c.SemanticWeight
}

func (c ExtractionConfig) hints() ai.ExtractHints {
	return ai.ExtractHints{
		OutputLanguage:  c.OutputLanguage,
		Fields:          c.Hints,
		StrictMode:      boolOrDefault(c.StrictMode, true),
		DetectConflicts: boolOrDefault(c.DetectConflicts, true),
	}
}
