// Package ai defines the polymorphic AI provider contract: summarize, classify,
// recall+partition, the three extract variants, and embedding. See spec §4.3.
// All prompts used by the reference OpenAI-compatible provider live here.
package ai

import (
	"context"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

// ExtractionStrategy is the shape of extraction a query calls for.
type ExtractionStrategy int

const (
	Collection ExtractionStrategy = iota
	Singular
	Narrative
)

func (s ExtractionStrategy) String() string {
	switch s {
	case Collection:
		return "Collection"
	case Singular:
		return "Singular"
	case Narrative:
		return "Narrative"
	default:
		return "Unknown"
	}
}

// Partition is a bucket of page URLs grouped for collection-style extraction.
type Partition struct {
	Label string
	URLs  []string
}

// Source is one attributed origin of extracted content.
type Source struct {
	URL   string
	Title string
}

// GapKind classifies what sort of investigation a MissingField calls for.
type GapKind int

const (
	GapEntity GapKind = iota
	GapSemantic
	GapStructural
)

func (k GapKind) String() string {
	switch k {
	case GapEntity:
		return "entity"
	case GapSemantic:
		return "semantic"
	case GapStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// GapReason explains why a field could not be filled from the corpus.
type GapReason int

const (
	NotMentioned GapReason = iota
	Ambiguous
	OutOfScope
)

func (r GapReason) String() string {
	switch r {
	case NotMentioned:
		return "NotMentioned"
	case Ambiguous:
		return "Ambiguous"
	case OutOfScope:
		return "OutOfScope"
	default:
		return "Unknown"
	}
}

// GapQuery is the follow-up question a MissingField implies.
type GapQuery struct {
	Text  string
	Kind  GapKind
	Hints []string
}

// MissingField is one piece of information the extraction could not fill.
type MissingField struct {
	Field  string
	Query  GapQuery
	Reason GapReason
}

// Conflict records a claim contradicted across sources.
type Conflict struct {
	Claim            string
	SupportingURLs   []string
	ContradictingURLs []string
}

// Grounding is the confidence grade computed from an Extraction's citations.
type Grounding int

const (
	Verified Grounding = iota
	SingleSource
	Conflicted
	Inferred
)

func (g Grounding) String() string {
	switch g {
	case Verified:
		return "Verified"
	case SingleSource:
		return "SingleSource"
	case Conflicted:
		return "Conflicted"
	case Inferred:
		return "Inferred"
	default:
		return "Unknown"
	}
}

// Status summarizes how completely a query was answered.
type Status int

const (
	Found Status = iota
	Partial
	Missing
	Contradictory
)

func (s Status) String() string {
	switch s {
	case Found:
		return "Found"
	case Partial:
		return "Partial"
	case Missing:
		return "Missing"
	case Contradictory:
		return "Contradictory"
	default:
		return "Unknown"
	}
}

// Extraction is the grounded answer the AI abstraction produces.
type Extraction struct {
	Content   string
	Sources   []Source
	Gaps      []MissingField
	Grounding Grounding
	Conflicts []Conflict
	Status    Status
}

// ExtractHints carries extra guidance into a single extraction call: target
// language, named fields the caller expects, and strict/conflict toggles.
type ExtractHints struct {
	OutputLanguage  string
	Fields          []string
	StrictMode      bool
	DetectConflicts bool
}

// AI is the single polymorphic capability set every provider implements.
// Implementations MUST NOT invent facts beyond the content they are given.
type AI interface {
	Summarize(ctx context.Context, content, url string) (string, []pagestore.Signal, error)
	ClassifyQuery(ctx context.Context, query string) (ExtractionStrategy, error)
	RecallAndPartition(ctx context.Context, query string, summaries []pagestore.Summary) ([]Partition, error)
	Extract(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error)
	ExtractSingle(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error)
	ExtractNarrative(ctx context.Context, query string, pages []pagestore.CachedPage, hints ExtractHints) (Extraction, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// PromptHash reports the version-addressable hash of the summarizer
	// prompt in effect for this provider (model name + prompt text). A
	// Summary's PromptHash is compared against this to detect staleness
	// when the summarizer prompt changes (spec §4.1, §4.3).
	PromptHash() string

	// EmbeddingModelID names the model Embed/EmbedBatch vectors come from,
	// for EmbeddingEntry.ModelID (spec §3).
	EmbeddingModelID() string
}
