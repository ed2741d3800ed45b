package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

// StreamMessage implements the StreamProvider interface using the SDK's SSE
// streaming transport. Deltas are translated one-to-one into StreamEvents:
// content chunks, incremental tool call fragments, a usage event when the API
// reports token counts, and a final done event carrying the finish reason.
func (p *OpenAIProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key (set OPENAI_API_KEY or use WithAPIKey)")
	}

	params, err := buildParams(request, p.model)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	// Ask the API to append a final chunk with token accounting.
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	client := p.client()
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer stream.Close()

		finishReason := ""
		for stream.Next() {
			chunk := stream.Current()

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: choice.Delta.Content}, nil) {
						return
					}
				}

				for _, toolCall := range choice.Delta.ToolCalls {
					delta := &ai.ToolCallDelta{
						Index:     int(toolCall.Index),
						ID:        toolCall.ID,
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					}
					if !yield(ai.StreamEvent{Type: ai.StreamEventToolCall, ToolCall: delta}, nil) {
						return
					}
				}

				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
			}

			// With IncludeUsage the API sends one trailing chunk without
			// choices that carries the token counts.
			if usage := toUsage(chunk.Usage); usage != nil {
				if !yield(ai.StreamEvent{Type: ai.StreamEventUsage, Usage: usage}, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			streamErr := fmt.Errorf("openai: stream: %w", err)
			yield(ai.StreamEvent{Type: ai.StreamEventError, Error: streamErr.Error()}, streamErr)
			return
		}

		yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: finishReason}, nil)
	}

	return ai.NewChatStream(iteratorFunc), nil
}
