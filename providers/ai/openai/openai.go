package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anshlambagit/agentgraph/providers/ai"
	"github.com/anshlambagit/agentgraph/providers/observability"
)

const (
	// DefaultModel is used when neither the provider nor the request specifies
	// a model.
	DefaultModel = openai.ChatModelGPT4oMini
)

// OpenAIProvider implements the [ai.Provider] and [ai.StreamProvider]
// interfaces on top of the official OpenAI Go SDK. The zero value is not
// usable; create instances with [NewOpenAIProvider].
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

// Compile-time interface checks.
var (
	_ ai.Provider       = (*OpenAIProvider)(nil)
	_ ai.StreamProvider = (*OpenAIProvider)(nil)
)

// NewOpenAIProvider creates a new OpenAI provider instance with default values.
// The API key is read from OPENAI_API_KEY and the base URL from
// OPENAI_API_BASE_URL (empty means the SDK default, api.openai.com).
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: os.Getenv("OPENAI_API_BASE_URL"),
		model:   DefaultModel,
	}
}

// WithAPIKey sets the API key for the provider
func (p *OpenAIProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API
func (p *OpenAIProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient sets a custom HTTP client
func (p *OpenAIProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.httpClient = httpClient
	return p
}

// WithModel sets the default model used when a request does not name one.
func (p *OpenAIProvider) WithModel(model string) *OpenAIProvider {
	p.model = model
	return p
}

// client builds an SDK client from the provider configuration.
func (p *OpenAIProvider) client() openai.Client {
	opts := []option.RequestOption{}
	if p.apiKey != "" {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	return openai.NewClient(opts...)
}

// SendMessage implements the Provider interface
func (p *OpenAIProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	span := observability.SpanFromContext(ctx)
	observer := observability.ObserverFromContext(ctx)

	model := request.Model
	if model == "" {
		model = p.model
	}

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "openai"),
			observability.String(observability.AttrLLMModel, model),
		)
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	if observer != nil {
		observer.Trace(ctx, "OpenAI provider preparing request",
			observability.String(observability.AttrLLMProvider, "openai"),
			observability.String(observability.AttrLLMModel, model),
			observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
			observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key (set OPENAI_API_KEY or use WithAPIKey)")
	}

	params, err := buildParams(request, p.model)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}

	client := p.client()
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		if observer != nil {
			observer.Trace(ctx, "OpenAI request failed", observability.Error(err))
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}

	response := toChatResponse(completion)

	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMResponseID, response.Id),
			observability.String(observability.AttrLLMFinishReason, response.FinishReason),
		)
		if response.Usage != nil {
			span.AddEvent(observability.EventTokensReceived,
				observability.Int(observability.AttrLLMTokensTotal, response.Usage.TotalTokens),
			)
		}
	}

	return response, nil
}

// IsStopMessage reports whether the given chat response should be treated as a stop/end signal.
func (p *OpenAIProvider) IsStopMessage(message *ai.ChatResponse) bool {
	if message == nil {
		return true
	}
	// Prefer explicit finish reason from API
	if message.FinishReason == "stop" || message.FinishReason == "length" || message.FinishReason == "content_filter" {
		return true
	}
	// If there's no content and no tool calls, treat as stop
	if message.Content == "" && len(message.ToolCalls) == 0 {
		return true
	}
	return false
}
