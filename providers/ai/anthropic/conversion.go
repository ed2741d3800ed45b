package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/invopop/jsonschema"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

// buildParams assembles the SDK request parameters from a provider-neutral
// chat request. Anthropic requires max_tokens on every request, so a default
// is applied when the request carries no limit.
func buildParams(request ai.ChatRequest, defaultModel string) (anthropic.MessageNewParams, error) {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:    anthropic.Model(model),
		Messages: buildMessages(request.Messages),
	}

	if system := buildSystemBlocks(request); len(system) > 0 {
		params.System = system
	}

	maxTokens := int64(defaultMaxTokens)
	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.Temperature > 0 {
			params.Temperature = anthropic.Float(float64(cfg.Temperature))
		}
		if cfg.TopP > 0 {
			params.TopP = anthropic.Float(float64(cfg.TopP))
		}
		// MaxOutputTokens takes precedence over the legacy MaxTokens field.
		if cfg.MaxOutputTokens > 0 {
			maxTokens = int64(cfg.MaxOutputTokens)
		} else if cfg.MaxTokens > 0 {
			maxTokens = int64(cfg.MaxTokens)
		}
	}
	params.MaxTokens = maxTokens

	if len(request.Tools) > 0 {
		tools, err := buildTools(request.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools

		if request.ToolChoiceForced != "" {
			params.ToolChoice = buildToolChoice(request.ToolChoiceForced)
		}
	}

	return params, nil
}

// buildSystemBlocks collects the request's SystemPrompt plus any system-role
// messages into top-level system blocks. Anthropic carries system text in a
// dedicated request field rather than the message list.
func buildSystemBlocks(request ai.ChatRequest) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if request.SystemPrompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: request.SystemPrompt})
	}
	for _, message := range request.Messages {
		if message.Role == ai.RoleSystem && message.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: message.Content})
		}
	}

	return blocks
}

// buildMessages converts the neutral message history into SDK message params.
//
// Anthropic requires strictly alternating user/assistant turns. Consecutive
// tool-result messages are therefore merged into a single user message with
// multiple tool_result content blocks, which is the only layout the API
// accepts.
func buildMessages(messages []ai.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var pendingToolResults []anthropic.ContentBlockParamUnion

	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for _, message := range messages {
		switch message.Role {
		case ai.RoleUser:
			flushToolResults()
			if blocks := userContentBlocks(message); len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}

		case ai.RoleAssistant:
			flushToolResults()
			var blocks []anthropic.ContentBlockParamUnion
			if message.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(message.Content))
			}
			for _, call := range message.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(
					call.ID,
					toolInput(call.Function.Arguments),
					call.Function.Name,
				))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case ai.RoleTool:
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(message.ToolCallID, message.Content, false))

		case ai.RoleSystem:
			// Carried in the top-level system field, see buildSystemBlocks.
		}
	}
	flushToolResults()

	return result
}

// userContentBlocks converts a user message into content blocks. ContentParts
// take precedence over the plain Content string. Inline base64 images are
// supported; other media kinds are skipped because the Messages API does not
// accept them.
func userContentBlocks(message ai.Message) []anthropic.ContentBlockParamUnion {
	if len(message.ContentParts) == 0 {
		if message.Content == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(message.Content)}
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range message.ContentParts {
		switch part.Type {
		case ai.ContentTypeText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case ai.ContentTypeImage:
			if part.Image != nil && part.Image.Data != "" {
				blocks = append(blocks, anthropic.NewImageBlockBase64(part.Image.MimeType, part.Image.Data))
			}
		}
	}
	return blocks
}

// toolInput parses a tool call's JSON argument string into the generic value
// the SDK expects for tool_use input, falling back to the raw string when the
// arguments are not valid JSON.
func toolInput(arguments string) any {
	if arguments == "" {
		return map[string]any{}
	}
	var input any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return arguments
	}
	return input
}

// buildTools converts neutral tool descriptions into SDK tool definitions.
// The flattened JSON schema is split into the properties/required layout the
// Messages API uses for input_schema.
func buildTools(descriptions []ai.ToolDescription) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(descriptions))
	for _, description := range descriptions {
		if ai.IsBuiltinTool(description.Name) {
			continue
		}
		schemaMap, err := schemaToMap(description.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q parameters: %w", description.Name, err)
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if properties, ok := schemaMap["properties"]; ok {
			inputSchema.Properties = properties
		}
		if required, ok := schemaMap["required"]; ok {
			inputSchema.Required = toStringSlice(required)
		}

		tool := anthropic.ToolParam{
			Name:        description.Name,
			InputSchema: inputSchema,
		}
		if description.Description != "" {
			tool.Description = anthropic.String(description.Description)
		}

		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools, nil
}

// buildToolChoice converts the forced tool choice to its SDK representation.
// "auto" and "any"/"required" are mode literals; any other value forces the
// model to call exactly that tool.
func buildToolChoice(choice string) anthropic.ToolChoiceUnionParam {
	switch strings.ToLower(choice) {
	case "auto":
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case "any", "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice}}
	}
}

// schemaToMap flattens a JSON schema into a generic map so its properties and
// required list can be lifted into the input_schema wire layout.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// toStringSlice converts a required-fields value, which arrives as []any after
// a JSON round-trip, into a string slice.
func toStringSlice(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		result := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// toChatResponse converts an SDK message into the neutral response type.
//
// Multiple text blocks are joined with newlines into a single Content string.
// Multiple thinking blocks are similarly joined into Reasoning. Unknown block
// types are silently skipped for forward-compatibility with future Anthropic
// content types.
func toChatResponse(message *anthropic.Message) *ai.ChatResponse {
	response := &ai.ChatResponse{
		Id:      message.ID,
		Model:   string(message.Model),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
	}

	var textParts []string
	var reasoningParts []string

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.AsText().Text)

		case "thinking":
			reasoningParts = append(reasoningParts, block.AsThinking().Thinking)

		case "tool_use":
			toolUse := block.AsToolUse()
			arguments := ""
			if toolUse.Input != nil {
				if raw, err := json.Marshal(toolUse.Input); err == nil {
					arguments = string(raw)
				}
			}
			response.ToolCalls = append(response.ToolCalls, ai.ToolCall{
				ID:   toolUse.ID,
				Type: "function",
				Function: ai.ToolCallFunction{
					Name:      toolUse.Name,
					Arguments: arguments,
				},
			})
		}
	}

	response.Content = strings.Join(textParts, "\n")
	response.Reasoning = strings.Join(reasoningParts, "\n")
	response.FinishReason = mapStopReason(string(message.StopReason))

	// CacheCreationInputTokens and CacheReadInputTokens are sub-counts of
	// InputTokens but are surfaced via CachedTokens so that the cost layer can
	// apply the discounted cache-read rate.
	response.Usage = &ai.Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		CachedTokens:     int(message.Usage.CacheCreationInputTokens + message.Usage.CacheReadInputTokens),
	}

	return response
}

// mapStopReason converts an Anthropic stop_reason value to the canonical
// finish_reason string used by ai.ChatResponse.
func mapStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}
