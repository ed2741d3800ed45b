package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/anshlambagit/agentgraph/providers/ai"
	"github.com/anshlambagit/agentgraph/providers/observability"
)

const (
	// DefaultModel is used when neither the provider nor the request specifies
	// a model.
	DefaultModel = string(anthropic.ModelClaude3_5Sonnet20241022)

	// defaultMaxTokens is applied when the request carries no token limit.
	// Anthropic requires max_tokens on every request.
	defaultMaxTokens = 4096
)

// AnthropicProvider implements [ai.Provider] on top of the official Anthropic
// Go SDK (Messages API). The zero value is not usable; create instances with
// [New].
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

var _ ai.Provider = (*AnthropicProvider)(nil)

// New returns an [AnthropicProvider] initialized from environment variables.
// It reads ANTHROPIC_API_KEY for authentication and ANTHROPIC_API_BASE_URL for
// the endpoint base (empty means the SDK default, api.anthropic.com). Use
// [AnthropicProvider.WithAPIKey] and [AnthropicProvider.WithBaseURL] to
// override these values after construction.
func New() *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		baseURL: os.Getenv("ANTHROPIC_API_BASE_URL"),
		model:   DefaultModel,
	}
}

// WithAPIKey sets the API key used for authenticating requests and returns the
// provider so calls can be chained. It overrides the value read from ANTHROPIC_API_KEY.
func (p *AnthropicProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL overrides the API base URL and returns the provider so calls can
// be chained. Use this when targeting a proxy or local testing endpoint.
func (p *AnthropicProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient replaces the default [http.Client] used for API calls and
// returns the provider so calls can be chained. Useful for injecting custom
// timeouts, transport layers, or test doubles.
func (p *AnthropicProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.httpClient = httpClient
	return p
}

// WithModel sets the default model used when a request does not name one.
func (p *AnthropicProvider) WithModel(model string) *AnthropicProvider {
	p.model = model
	return p
}

// client builds an SDK client from the provider configuration.
func (p *AnthropicProvider) client() anthropic.Client {
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
	return anthropic.NewClient(opts...)
}

// SendMessage implements [ai.Provider] by sending a synchronous request to
// Anthropic's Messages API and returning the response mapped to the generic
// [ai.ChatResponse] format. It returns an error if the API key is unset, the
// request cannot be built, or the API call fails.
func (p *AnthropicProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	span := observability.SpanFromContext(ctx)
	observer := observability.ObserverFromContext(ctx)

	model := request.Model
	if model == "" {
		model = p.model
	}

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "anthropic"),
			observability.String(observability.AttrLLMModel, model),
		)
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	if observer != nil {
		observer.Trace(ctx, "Anthropic provider preparing request",
			observability.String(observability.AttrLLMProvider, "anthropic"),
			observability.String(observability.AttrLLMModel, model),
			observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
			observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	params, err := buildParams(request, p.model)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}

	client := p.client()
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		if observer != nil {
			observer.Trace(ctx, "Anthropic request failed", observability.Error(err))
		}
		return nil, fmt.Errorf("anthropic: messages: %w", err)
	}

	result := toChatResponse(message)
	if result.Model == "" {
		result.Model = model
	}

	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMResponseID, result.Id),
			observability.String(observability.AttrLLMFinishReason, result.FinishReason),
		)
		if result.Usage != nil {
			span.AddEvent(observability.EventTokensReceived,
				observability.Int(observability.AttrLLMTokensTotal, result.Usage.TotalTokens),
			)
		}
	}

	return result, nil
}

// IsStopMessage reports whether message represents a terminal response that
// requires no further action. Responses that contain tool calls are never
// considered stops even when FinishReason is "stop", because some models set
// stop_reason to "end_turn" alongside tool_use blocks.
func (p *AnthropicProvider) IsStopMessage(message *ai.ChatResponse) bool {
	if message == nil {
		return true
	}

	// Tool calls take priority over finish_reason, tools need to be executed.
	if len(message.ToolCalls) > 0 {
		return false
	}

	if message.FinishReason == "stop" || message.FinishReason == "length" || message.FinishReason == "content_filter" {
		return true
	}

	return message.Content == ""
}
