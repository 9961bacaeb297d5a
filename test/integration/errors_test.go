package integration

import (
	"bytes"
	"net/http"
	"testing"
)

// errorEnvelope mirrors the gateway's JSON error body.
type errorEnvelope struct {
	Detail struct {
		Response string `json:"response"`
		Cause    string `json:"cause"`
	} `json:"detail"`
}

func TestInvalidJSON(t *testing.T) {
	body := bytes.NewReader([]byte(`{invalid json`))
	resp, err := http.Post(
		testEnv.BaseURL()+"/v1/query",
		"application/json",
		body,
	)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}

	var errResp errorEnvelope
	decodeJSON(t, resp, &errResp)

	if errResp.Detail.Cause == "" {
		t.Error("error detail has no cause")
	}
}

func TestEmptyQuery(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/query", map[string]any{
		"model": "mock-model",
	})

	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}

	var errResp errorEnvelope
	decodeJSON(t, resp, &errResp)
	if errResp.Detail.Cause == "" {
		t.Error("error detail has no cause")
	}
}

func TestInvalidConversationID(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/query", map[string]any{
		"query":           "Hello",
		"conversation_id": "not-a-uuid",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		body := readBody(t, resp)
		t.Errorf("expected 422, got %d: %s", resp.StatusCode, body)
	}
}

func TestUnsupportedContentType(t *testing.T) {
	body := bytes.NewReader([]byte(`query=test`))
	resp, err := http.Post(
		testEnv.BaseURL()+"/v1/query",
		"application/x-www-form-urlencoded",
		body,
	)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		body := readBody(t, resp)
		t.Errorf("expected 415, got %d: %s", resp.StatusCode, body)
	}
}

func TestErrorResponseFormat(t *testing.T) {
	// Any error response should carry the detail envelope.
	resp := postJSON(t, testEnv.BaseURL()+"/v1/query", map[string]any{})

	var raw map[string]any
	decodeJSON(t, resp, &raw)

	detail, ok := raw["detail"].(map[string]any)
	if !ok {
		t.Fatal("response missing 'detail' object")
	}
	if _, ok := detail["response"]; !ok {
		t.Error("detail missing 'response'")
	}
	if _, ok := detail["cause"]; !ok {
		t.Error("detail missing 'cause'")
	}
}
