package ai

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

// Prompt construction for every AI capability. Kept in one file, as the
// teacher keeps planner/synth prompt-building close to the call site, so
// prompt changes and their PromptHash implications stay easy to audit.

const summarizeSystemPrompt = "You are a careful summarizing assistant. Respond with strict JSON only, no narration. The JSON schema is {\"summary_markdown\": string, \"signals\": [{\"type\": string, \"value\": string, \"subtype\": string?, \"confidence\": number?, \"context_snippet\": string?, \"tags\": string[]?}]}. Summarize ONLY what is stated in the supplied content; never invent facts. Signals are free-form: capture named entities, calls to action, offers, asks, or anything else worth recalling later, each as its own entry."

func summarizeUserPrompt(content, url string) string {
	var sb strings.Builder
	sb.WriteString("Page URL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nContent:\n")
	sb.WriteString(content)
	return sb.String()
}

const classifySystemPrompt = `You are a query classification assistant. Respond with strict JSON only, no narration. The JSON schema is {"strategy": "Collection"|"Singular"|"Narrative"}. Collection is for "find all X", "list X", "enumerate X", or any plural target. Singular is for "what is X", "who is X", "the X" (one definite answer). Narrative is for "describe X", "summarize X", "tell me about X".`

func classifyUserPrompt(query string) string {
	return "Query: " + query
}

const recallPartitionSystemPrompt = "You are a retrieval assistant. Respond with strict JSON only, no narration. The JSON schema is {\"partitions\": [{\"label\": string, \"urls\": string[]}]}. Choose only summaries relevant to the query, and group them into labeled buckets suitable for a collection-style extraction. Every url you return MUST come from the supplied summaries."

func recallPartitionUserPrompt(query string, summaries []pagestore.Summary) string {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSummaries:\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("- %s\n%s\n\n", s.URL, s.SummaryMarkdown))
	}
	return sb.String()
}

const extractSystemPromptCollection = "You are a grounded extraction assistant. Respond with strict JSON only, no narration. The JSON schema is {\"content\": string, \"sources\": [{\"url\": string, \"title\": string?}], \"gaps\": [{\"field\": string, \"query_text\": string, \"query_kind\": \"entity\"|\"semantic\"|\"structural\", \"hints\": string[]?, \"reason\": \"NotMentioned\"|\"Ambiguous\"|\"OutOfScope\"}], \"conflicts\": [{\"claim\": string, \"supporting_urls\": string[], \"contradicting_urls\": string[]}]}. Cite every claim in content with the URL of one of the supplied pages; never invent facts beyond the supplied pages."

const extractSystemPromptSingular = "You are a grounded extraction assistant producing a single, one-answer response. Respond with strict JSON only, no narration, using the same schema as the collection extractor: {\"content\": string, \"sources\": [...], \"gaps\": [...], \"conflicts\": [...]}. The answer MUST be attributable to the supplied pages; if the pages disagree, record a conflict rather than picking a side."

const extractSystemPromptNarrative = "You are a grounded extraction assistant producing flowing prose that synthesizes the supplied pages. Respond with strict JSON only, no narration, using the same schema as the collection extractor: {\"content\": string, \"sources\": [...], \"gaps\": [...], \"conflicts\": [...]}. Every sentence must be attributable to at least one supplied page."

func extractUserPrompt(query string, pages []pagestore.CachedPage, hints ExtractHints) string {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(query)
	if hints.OutputLanguage != "" {
		sb.WriteString("\nRespond in language: ")
		sb.WriteString(languageDisplayName(hints.OutputLanguage))
		sb.WriteString(" (keep citation URLs untranslated)")
	}
	if len(hints.Fields) > 0 {
		sb.WriteString("\nExpected fields: ")
		sb.WriteString(strings.Join(hints.Fields, ", "))
	}
	if hints.DetectConflicts {
		sb.WriteString("\nFlag any contradictions you notice across pages as conflicts.")
	}
	sb.WriteString("\n\nPages:\n")
	for _, p := range pages {
		sb.WriteString(fmt.Sprintf("### %s\nTitle: %s\n%s\n\n", p.URL, p.Title, p.Content))
	}
	return sb.String()
}

// languageDisplayName resolves a BCT-47-ish tag (e.g. "fr", "pt-BR") to an
// English display name for the prompt. An unparsable tag is passed through
// verbatim, since the caller may already have supplied a plain-English name.
func languageDisplayName(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	name := display.English.Languages().Name(parsed)
	if name == "" {
		return tag
	}
	return fmt.Sprintf("%s (%s)", name, tag)
}
