package lls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/provider"
)

// Client implements provider.Provider against a llama-stack style backend.
type Client struct {
	cfg          Config
	client       *http.Client
	streamClient *http.Client
}

// Ensure Client implements provider.Provider at compile time.
var _ provider.Provider = (*Client)(nil)

// New creates a new Client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lls: BaseURL is required")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		// No client timeout for streams; the request context bounds them.
		streamClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "lls"
}

// CreateResponse performs non-streaming inference.
func (c *Client) CreateResponse(ctx context.Context, req *provider.Request) (*api.Response, error) {
	body := buildRequest(req, false)

	var resp api.Response
	if err := c.postJSON(ctx, "/v1/responses", req.Model, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels returns available models from the backend.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	var envelope listEnvelope[provider.ModelInfo]
	if err := c.getJSON(ctx, "/v1/models", &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// ListShields returns the safety shields configured on the backend.
func (c *Client) ListShields(ctx context.Context) ([]provider.ShieldInfo, error) {
	var envelope listEnvelope[provider.ShieldInfo]
	if err := c.getJSON(ctx, "/v1/shields", &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// RunModeration evaluates input text against the shield's backing model.
// A violation payload that cannot be parsed is reported as
// provider.ErrMalformedViolation; the caller treats it as a flag.
func (c *Client) RunModeration(ctx context.Context, model, input string) (*provider.ModerationResult, error) {
	payload, err := json.Marshal(moderationRequest{Input: input, Model: model})
	if err != nil {
		return nil, fmt.Errorf("marshaling moderation request: %w", err)
	}

	httpResp, err := c.do(ctx, http.MethodPost, "/v1/moderations", payload, false)
	if err != nil {
		return nil, provider.MapNetworkError(c.cfg.BaseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, c.statusError(model, httpResp)
	}

	var modResp moderationResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modResp); err != nil {
		// Known backend bug: a violation present in the shield response
		// but in a shape that cannot be parsed surfaces as a decode
		// failure here.
		return nil, provider.ErrMalformedViolation
	}

	result := &provider.ModerationResult{ID: modResp.ID}
	if len(modResp.Results) > 0 {
		first := modResp.Results[0]
		result.Flagged = first.Flagged
		result.UserMessage = first.UserMessage
		for category, hit := range first.Categories {
			if hit {
				result.Categories = append(result.Categories, category)
			}
		}
		sort.Strings(result.Categories)
	}
	return result, nil
}

// AppendConversationItems adds items to the backend's conversation
// history without running inference.
func (c *Client) AppendConversationItems(ctx context.Context, conversationID string, items []api.Item) error {
	payload, err := json.Marshal(appendItemsRequest{Items: items})
	if err != nil {
		return fmt.Errorf("marshaling conversation items: %w", err)
	}

	httpResp, err := c.do(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/items", payload, false)
	if err != nil {
		return provider.MapNetworkError(c.cfg.BaseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return c.statusError("", httpResp)
	}
	io.Copy(io.Discard, httpResp.Body)
	return nil
}

// Close releases provider resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// buildRequest translates the engine request into the backend wire format.
func buildRequest(req *provider.Request, stream bool) *responsesRequest {
	out := &responsesRequest{
		Model:        req.Model,
		Input:        req.Input,
		Instructions: req.Instructions,
		Conversation: req.ConversationID,
		Stream:       stream,
		Store:        !req.NoStore,
	}

	if len(req.KnowledgeSources) > 0 {
		out.Tools = append(out.Tools, tool{
			Type:           "file_search",
			VectorStoreIDs: req.KnowledgeSources,
		})
	}
	for _, server := range req.MCPServers {
		out.Tools = append(out.Tools, tool{
			Type:        "mcp",
			ServerLabel: server.Label,
			ServerURL:   server.URL,
			Headers:     server.Headers,
		})
	}
	return out
}

// do issues a request with shared headers. Streaming requests use the
// timeout-free client.
func (c *Client) do(ctx context.Context, method, path string, body []byte, stream bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		return c.streamClient.Do(httpReq)
	}
	return c.client.Do(httpReq)
}

// postJSON posts a JSON body and decodes a JSON response, mapping
// transport and status failures into the engine's error taxonomy.
func (c *Client) postJSON(ctx context.Context, path, model string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpResp, err := c.do(ctx, http.MethodPost, path, payload, false)
	if err != nil {
		return provider.MapNetworkError(c.cfg.BaseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return c.statusError(model, httpResp)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing backend response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpResp, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return provider.MapNetworkError(c.cfg.BaseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return c.statusError("", httpResp)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing backend response: %w", err)
	}
	return nil
}

// statusError reads the error body and classifies the status.
func (c *Client) statusError(model string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope errorEnvelope
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if text := envelope.text(); text != "" {
			message = text
		}
	}

	return provider.MapStatusError(model, resp.StatusCode, message)
}
