package engine

import (
	"encoding/json"
	"strings"

	"github.com/tkralik/turnstile/pkg/api"
)

// buildTurnSummary extracts the auditable artifacts from a terminal
// response: response text, referenced documents, RAG chunks, and tool
// call/result summaries. It is total over all inputs; a nil response or
// empty output yields an empty summary, never an error.
func buildTurnSummary(resp *api.Response, knowledgeSources []string) *api.TurnSummary {
	summary := &api.TurnSummary{}

	if resp == nil || len(resp.Output) == 0 {
		return summary
	}

	summary.ResponseText = api.ExtractMessageText(resp.Output)
	summary.ReferencedDocuments = parseReferencedDocuments(resp.Output, knowledgeSources)

	for _, item := range resp.Output {
		call, result := buildToolCallSummary(item, &summary.RAGChunks, knowledgeSources)
		if call != nil {
			summary.ToolCalls = append(summary.ToolCalls, *call)
		}
		if result != nil {
			summary.ToolResults = append(summary.ToolResults, *result)
		}
	}

	return summary
}

// parseArguments parses a tool-argument string defensively: as a JSON
// object first, then brace-wrapped, falling back to {"args": <raw>}.
// It never fails.
func parseArguments(arguments string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err == nil && parsed != nil {
		return parsed
	}

	// Some backends emit the object body without the surrounding braces.
	stripped := strings.TrimSpace(arguments)
	if stripped != "" && !strings.HasPrefix(stripped, "{") {
		var wrapped map[string]any
		if err := json.Unmarshal([]byte("{"+stripped+"}"), &wrapped); err == nil && wrapped != nil {
			return wrapped
		}
	}

	return map[string]any{"args": arguments}
}

// parseReferencedDocuments collects document references from file-search
// results, deduplicated by (url, title) with the first occurrence winning.
func parseReferencedDocuments(output []api.Item, knowledgeSources []string) []api.ReferencedDocument {
	var documents []api.ReferencedDocument
	seen := make(map[[2]string]bool)

	for _, item := range output {
		if item.Type != api.ItemTypeFileSearchCall || item.FileSearchCall == nil {
			continue
		}
		for _, result := range item.FileSearchCall.Results {
			url := firstAttribute(result.Attributes, "doc_url", "docs_url", "url", "link")
			title := stringAttribute(result.Attributes, "title")
			if url == "" && title == "" {
				continue
			}
			key := [2]string{url, title}
			if seen[key] {
				continue
			}
			seen[key] = true
			documents = append(documents, api.ReferencedDocument{
				DocURL:   url,
				DocTitle: title,
				Source:   resolveSource(result, knowledgeSources),
			})
		}
	}

	return documents
}

// resolveSource attributes a file-search result to a knowledge source.
// With exactly one queried source every result belongs to it; with
// several, the result's vector_store_id attribute decides, and a missing
// attribute resolves to "unresolved".
func resolveSource(result api.FileSearchResult, knowledgeSources []string) string {
	switch {
	case len(knowledgeSources) == 1:
		return knowledgeSources[0]
	case len(knowledgeSources) > 1:
		if id := stringAttribute(result.Attributes, "vector_store_id"); id != "" {
			return id
		}
		return api.SourceUnresolved
	default:
		return ""
	}
}

// buildToolCallSummary translates one output item into its tool call and
// result summaries, appending any RAG chunks to chunks. One side of the
// pair may be nil; unrecognized kinds yield neither and never fail.
func buildToolCallSummary(item api.Item, chunks *[]api.RAGChunk, knowledgeSources []string) (*api.ToolCallSummary, *api.ToolResultSummary) {
	switch item.Type {
	case api.ItemTypeFunctionCall:
		if item.FunctionCall == nil {
			return nil, nil
		}
		return &api.ToolCallSummary{
			ID:   item.FunctionCall.CallID,
			Name: item.FunctionCall.Name,
			Args: parseArguments(item.FunctionCall.Arguments),
			Type: string(api.ItemTypeFunctionCall),
		}, nil // the Responses API carries no function_call result

	case api.ItemTypeFileSearchCall:
		if item.FileSearchCall == nil {
			return nil, nil
		}
		extractRAGChunks(item.FileSearchCall, chunks, knowledgeSources)

		content := ""
		if item.FileSearchCall.Results != nil {
			payload, err := json.Marshal(map[string]any{"results": item.FileSearchCall.Results})
			if err == nil {
				content = string(payload)
			}
		}
		return &api.ToolCallSummary{
				ID:   item.ID,
				Name: api.RAGToolName,
				Args: map[string]any{"queries": item.FileSearchCall.Queries},
				Type: string(api.ItemTypeFileSearchCall),
			}, &api.ToolResultSummary{
				ID:      item.ID,
				Status:  string(item.Status),
				Content: content,
				Type:    string(api.ItemTypeFileSearchCall),
				Round:   1,
			}

	case api.ItemTypeWebSearchCall:
		return &api.ToolCallSummary{
				ID:   item.ID,
				Name: "web_search",
				Args: map[string]any{},
				Type: string(api.ItemTypeWebSearchCall),
			}, &api.ToolResultSummary{
				ID:     item.ID,
				Status: string(item.Status),
				Type:   string(api.ItemTypeWebSearchCall),
				Round:  1,
			}

	case api.ItemTypeMCPCall:
		if item.MCPCall == nil {
			return nil, nil
		}
		args := parseArguments(item.MCPCall.Arguments)
		if item.MCPCall.ServerLabel != "" {
			args["server_label"] = item.MCPCall.ServerLabel
		}
		return &api.ToolCallSummary{
			ID:   item.ID,
			Name: item.MCPCall.Name,
			Args: args,
			Type: string(api.ItemTypeMCPCall),
		}, buildMCPResult(&item)

	case api.ItemTypeMCPListTools:
		if item.MCPListTools == nil {
			return nil, nil
		}
		content, err := json.Marshal(item.MCPListTools)
		if err != nil {
			content = nil
		}
		return &api.ToolCallSummary{
				ID:   item.ID,
				Name: "mcp_list_tools",
				Args: map[string]any{"server_label": item.MCPListTools.ServerLabel},
				Type: string(api.ItemTypeMCPListTools),
			}, &api.ToolResultSummary{
				ID:      item.ID,
				Status:  "success",
				Content: string(content),
				Type:    string(api.ItemTypeMCPListTools),
				Round:   1,
			}

	case api.ItemTypeMCPApprovalRequest:
		if item.MCPApprovalRequest == nil {
			return nil, nil
		}
		return &api.ToolCallSummary{
			ID:   item.ID,
			Name: item.MCPApprovalRequest.Name,
			Args: parseArguments(item.MCPApprovalRequest.Arguments),
			Type: string(api.ItemTypeMCPApprovalRequest),
		}, nil

	case api.ItemTypeMCPApprovalResponse:
		if item.MCPApprovalResponse == nil {
			return nil, nil
		}
		status := "denied"
		if item.MCPApprovalResponse.Approve {
			status = "success"
		}
		content := map[string]string{}
		if item.MCPApprovalResponse.Reason != "" {
			content["reason"] = item.MCPApprovalResponse.Reason
		}
		payload, _ := json.Marshal(content)
		return nil, &api.ToolResultSummary{
			ID:      item.MCPApprovalResponse.ApprovalRequestID,
			Status:  status,
			Content: string(payload),
			Type:    string(api.ItemTypeMCPApprovalResponse),
			Round:   1,
		}

	default:
		// Unrecognized kinds (including plain messages) produce no tool
		// summary; forward compatibility demands a silent no-op here.
		return nil, nil
	}
}

// buildMCPResult summarizes an mcp_call item's outcome: an error field
// means failure and its text wins over any output.
func buildMCPResult(item *api.Item) *api.ToolResultSummary {
	if item == nil || item.MCPCall == nil {
		return nil
	}
	status := "success"
	content := item.MCPCall.Output
	if item.MCPCall.Error != "" {
		status = "failure"
		content = item.MCPCall.Error
	}
	return &api.ToolResultSummary{
		ID:      item.ID,
		Status:  status,
		Content: content,
		Type:    string(api.ItemTypeMCPCall),
		Round:   1,
	}
}

// extractRAGChunks appends one chunk per file-search result.
func extractRAGChunks(call *api.FileSearchCallData, chunks *[]api.RAGChunk, knowledgeSources []string) {
	for _, result := range call.Results {
		*chunks = append(*chunks, api.RAGChunk{
			Content:    result.Text,
			Source:     resolveSource(result, knowledgeSources),
			Score:      result.Score,
			Attributes: result.Attributes,
		})
	}
}

// firstAttribute returns the first non-empty string value among the named
// attribute keys.
func firstAttribute(attributes map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringAttribute(attributes, key); v != "" {
			return v
		}
	}
	return ""
}

func stringAttribute(attributes map[string]any, key string) string {
	if attributes == nil {
		return ""
	}
	if s, ok := attributes[key].(string); ok {
		return s
	}
	return ""
}
