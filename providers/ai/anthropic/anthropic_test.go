package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

func TestNewWithoutEnvVariable(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	p := New()

	if p == nil {
		t.Fatal("expected provider to be created even without env variable")
	}
	if p.model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, p.model)
	}
}

func TestBuilderPattern(t *testing.T) {
	p := New().
		WithAPIKey("custom-key").
		WithBaseURL("https://custom.anthropic.com").
		WithHttpClient(&http.Client{}).(*AnthropicProvider).
		WithModel("claude-custom")

	if p.apiKey != "custom-key" {
		t.Errorf("expected api key to be set, got %q", p.apiKey)
	}
	if p.baseURL != "https://custom.anthropic.com" {
		t.Errorf("expected base URL to be set, got %q", p.baseURL)
	}
	if p.httpClient == nil {
		t.Error("expected http client to be set")
	}
	if p.model != "claude-custom" {
		t.Errorf("expected model to be set, got %q", p.model)
	}
}

func TestBuilderPatternReturnsProviderInterface(t *testing.T) {
	var _ ai.Provider = New()
	New().WithAPIKey("key")
	New().WithBaseURL("url")
}

func TestSendMessageMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	p := New()
	_, err := p.SendMessage(context.Background(), ai.ChatRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
	})

	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestSendMessageWithValidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header 'test-key', got %s", r.Header.Get("x-api-key"))
		}

		var requestBody map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
			t.Fatal("failed to decode request body: " + err.Error())
		}
		if requestBody["model"] != "claude-test" {
			t.Errorf("expected model 'claude-test' in request, got %v", requestBody["model"])
		}
		if _, ok := requestBody["max_tokens"]; !ok {
			t.Error("expected max_tokens in request body")
		}

		response := map[string]interface{}{
			"id":    "msg_01",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-test",
			"content": []map[string]interface{}{
				{"type": "text", "text": "Paris is the capital of France."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 12, "output_tokens": 9},
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Fatal("failed to encode response: " + err.Error())
		}
	}))
	defer server.Close()

	p := New().
		WithAPIKey("test-key").
		WithBaseURL(server.URL)

	response, err := p.SendMessage(context.Background(), ai.ChatRequest{
		Model: "claude-test",
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: "What is the capital of France?"},
		},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Content != "Paris is the capital of France." {
		t.Errorf("unexpected content %q", response.Content)
	}
	if response.FinishReason != "stop" {
		t.Errorf("expected finish reason 'stop', got %q", response.FinishReason)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 21 {
		t.Errorf("expected usage with 21 total tokens, got %+v", response.Usage)
	}
}

func TestSendMessageWithNon2xxStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, err := w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
		if err != nil {
			t.Fatal("failed to write response: " + err.Error())
		}
	}))
	defer server.Close()

	p := New().
		WithAPIKey("invalid-key").
		WithBaseURL(server.URL)

	_, err := p.SendMessage(context.Background(), ai.ChatRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: "Hello"}},
	})

	if err == nil {
		t.Fatal("expected error for non-2xx status, got nil")
	}
}

func TestIsStopMessage(t *testing.T) {
	p := New()

	cases := []struct {
		name     string
		response *ai.ChatResponse
		want     bool
	}{
		{"nil response", nil, true},
		{"finish stop", &ai.ChatResponse{Content: "done", FinishReason: "stop"}, true},
		{"finish length", &ai.ChatResponse{Content: "cut", FinishReason: "length"}, true},
		{"tool calls win over stop", &ai.ChatResponse{
			FinishReason: "stop",
			ToolCalls:    []ai.ToolCall{{ID: "call_1", Type: "function"}},
		}, false},
		{"tool calls pending", &ai.ChatResponse{
			FinishReason: "tool_calls",
			ToolCalls:    []ai.ToolCall{{ID: "call_1", Type: "function"}},
		}, false},
		{"empty response", &ai.ChatResponse{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.IsStopMessage(tc.response); got != tc.want {
				t.Errorf("IsStopMessage(%+v) = %v, want %v", tc.response, got, tc.want)
			}
		})
	}
}
