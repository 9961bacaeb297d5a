package engine

import (
	"time"

	"github.com/tkralik/turnstile/pkg/provider"
)

// DefaultSystemPrompt is used when neither the configuration nor the
// request supplies one.
const DefaultSystemPrompt = "You are a helpful assistant"

// DefaultTopicSummaryPrompt instructs the model to produce a short
// conversation label on the first turn of a conversation.
const DefaultTopicSummaryPrompt = `
Instructions:
- You are a topic summarizer
- Your job is to extract precise topic summary from user input

For Input Analysis:
- Scan entire user message
- Identify core subject matter
- Distill essence into concise descriptor
- Prioritize key concepts
- Eliminate extraneous details

For Output Constraints:
- Maximum 5 words
- Capitalize only significant words (e.g., nouns, verbs, adjectives, adverbs).
- Do not use all uppercase - capitalize only the first letter of significant words
- Exclude articles and prepositions (e.g., "a," "the," "of," "on," "in")
- Exclude all punctuation and interpunction marks (e.g., . , : ; ! ? "")
- Retain original abbreviations. Do not expand an abbreviation if its specific meaning in the context is unknown or ambiguous.
- Neutral objective language
`

// Config holds configuration for the turn engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	// Empty string means a model is always required in the request.
	DefaultModel string

	// SystemPrompt overrides DefaultSystemPrompt when set. A request
	// supplied prompt takes precedence over both.
	SystemPrompt string

	// TopicSummaryPrompt overrides DefaultTopicSummaryPrompt when set.
	TopicSummaryPrompt string

	// KnowledgeSources lists vector store ids attached to every turn that
	// does not restrict them itself.
	KnowledgeSources []string

	// MCPServers lists MCP tool servers attached to every turn. The
	// backend executes the tools; the engine only relays and extracts
	// their call records.
	MCPServers []provider.MCPServer

	// CatalogTTL bounds how long shield and model catalogs are served from
	// cache before the backend is asked again. Zero means 5 minutes.
	CatalogTTL time.Duration
}

func (c Config) systemPrompt(requestPrompt string) string {
	if requestPrompt != "" {
		return requestPrompt
	}
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return DefaultSystemPrompt
}

func (c Config) topicSummaryPrompt() string {
	if c.TopicSummaryPrompt != "" {
		return c.TopicSummaryPrompt
	}
	return DefaultTopicSummaryPrompt
}

func (c Config) catalogTTL() time.Duration {
	if c.CatalogTTL <= 0 {
		return 5 * time.Minute
	}
	return c.CatalogTTL
}
