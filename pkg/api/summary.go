package api

// RAGToolName labels file-search retrievals in the turn audit trail.
const RAGToolName = "knowledge_search"

// SourceUnresolved is used when a retrieval result cannot be attributed
// to any of the queried knowledge sources.
const SourceUnresolved = "unresolved"

// ReferencedDocument identifies a knowledge-base document that contributed
// to a response. Documents are deduplicated by (url, title); the first
// occurrence wins.
type ReferencedDocument struct {
	DocURL   string `json:"doc_url,omitempty"`
	DocTitle string `json:"doc_title,omitempty"`
	Source   string `json:"source,omitempty"`
}

// RAGChunk is a retrieved text fragment from a file-search call, attributed
// to the knowledge source it came from.
type RAGChunk struct {
	Content    string         `json:"content"`
	Source     string         `json:"source,omitempty"`
	Score      float64        `json:"score,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ToolCallSummary records a single tool invocation for the turn audit
// trail. Args holds the defensively parsed argument map; parsing never
// fails, unparseable input degrades to {"args": <raw>}.
type ToolCallSummary struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Type string         `json:"type"`
}

// ToolResultSummary records the outcome of a tool invocation. Some tool
// kinds produce only a call, some only a result.
type ToolResultSummary struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Round   int    `json:"round"`
}

// TurnSummary accumulates the extracted artifacts of one turn. It is owned
// by the orchestration run and discarded after persistence.
type TurnSummary struct {
	ResponseText        string
	ReferencedDocuments []ReferencedDocument
	RAGChunks           []RAGChunk
	ToolCalls           []ToolCallSummary
	ToolResults         []ToolResultSummary
}
