package openai

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

// buildParams assembles the SDK request parameters from a provider-neutral
// chat request. The defaultModel is used when the request does not name one.
func buildParams(request ai.ChatRequest, defaultModel string) (openai.ChatCompletionNewParams, error) {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: buildMessages(request),
	}

	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.Temperature != 0 {
			params.Temperature = openai.Float(float64(cfg.Temperature))
		}
		if cfg.TopP != 0 {
			params.TopP = openai.Float(float64(cfg.TopP))
		}
		if cfg.FrequencyPenalty != 0 {
			params.FrequencyPenalty = openai.Float(float64(cfg.FrequencyPenalty))
		}
		if cfg.PresencePenalty != 0 {
			params.PresencePenalty = openai.Float(float64(cfg.PresencePenalty))
		}
		if cfg.MaxOutputTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(cfg.MaxOutputTokens))
		} else if cfg.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(cfg.MaxTokens))
		}
	}

	if len(request.Tools) > 0 {
		tools, err := buildTools(request.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}

	if request.ToolChoiceForced != "" {
		params.ToolChoice = buildToolChoice(request.ToolChoiceForced)
	}

	if request.ResponseFormat != nil {
		format, err := buildResponseFormat(request.ResponseFormat)
		if err != nil {
			return params, err
		}
		params.ResponseFormat = format
	}

	return params, nil
}

// buildMessages converts the neutral message history into SDK message unions.
// The request's SystemPrompt, when set, becomes the leading system message.
func buildMessages(request ai.ChatRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages)+1)

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}

	for _, message := range request.Messages {
		switch message.Role {
		case ai.RoleSystem:
			messages = append(messages, openai.SystemMessage(message.Content))

		case ai.RoleUser:
			messages = append(messages, openai.UserMessage(message.Content))

		case ai.RoleAssistant:
			if len(message.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(message.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: buildToolCallParams(message.ToolCalls),
			}
			if message.Content != "" {
				assistant.Content.OfString = openai.String(message.Content)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case ai.RoleTool:
			messages = append(messages, openai.ToolMessage(message.Content, message.ToolCallID))

		default:
			// Unknown roles degrade to user messages rather than being dropped.
			if message.Content != "" {
				messages = append(messages, openai.UserMessage(message.Content))
			}
		}
	}

	return messages
}

// buildToolCallParams converts completed assistant tool calls back into their
// request representation for conversation replay.
func buildToolCallParams(toolCalls []ai.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	params := make([]openai.ChatCompletionMessageToolCallParam, 0, len(toolCalls))
	for _, call := range toolCalls {
		params = append(params, openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return params
}

// buildTools converts neutral tool descriptions into SDK tool definitions.
// Built-in pseudo-tools (underscore-prefixed) are filtered out because the API
// does not recognize them as function definitions.
func buildTools(descriptions []ai.ToolDescription) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(descriptions))
	for _, description := range descriptions {
		if ai.IsBuiltinTool(description.Name) {
			continue
		}
		parameters, err := schemaToMap(description.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q parameters: %w", description.Name, err)
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        description.Name,
				Description: openai.String(description.Description),
				Parameters:  parameters,
			},
		})
	}
	return tools, nil
}

// buildToolChoice maps the forced tool choice to the SDK union. The values
// "auto", "none", and "required" select the corresponding mode; any other
// value is treated as a specific function name.
func buildToolChoice(choice string) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice {
	case "auto", "none", "required":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice},
			},
		}
	}
}

// buildResponseFormat maps the neutral response format to the SDK union.
// A format with an OutputSchema becomes a json_schema response format; a bare
// "json_object" type hint becomes the json_object format.
func buildResponseFormat(format *ai.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	var union openai.ChatCompletionNewParamsResponseFormatUnion

	if format.OutputSchema != nil {
		schemaMap, err := schemaToMap(format.OutputSchema)
		if err != nil {
			return union, fmt.Errorf("output schema: %w", err)
		}
		union.OfJSONSchema = &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "structured_output",
				Schema: schemaMap,
				Strict: openai.Bool(format.Strict),
			},
		}
		return union, nil
	}

	if format.Type == "json_object" {
		union.OfJSONObject = &openai.ResponseFormatJSONObjectParam{}
	}
	return union, nil
}

// schemaToMap flattens a JSON schema into the generic map representation the
// SDK expects for function parameters and response schemas.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	parameters := map[string]any{}
	if err := json.Unmarshal(raw, &parameters); err != nil {
		return nil, err
	}
	return parameters, nil
}

// toChatResponse converts an SDK completion into the neutral response type.
func toChatResponse(completion *openai.ChatCompletion) *ai.ChatResponse {
	response := &ai.ChatResponse{
		Id:      completion.ID,
		Model:   completion.Model,
		Object:  string(completion.Object),
		Created: completion.Created,
	}

	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		response.Content = choice.Message.Content
		response.Refusal = choice.Message.Refusal
		response.FinishReason = string(choice.FinishReason)
		for _, call := range choice.Message.ToolCalls {
			response.ToolCalls = append(response.ToolCalls, ai.ToolCall{
				ID:   call.ID,
				Type: string(call.Type),
				Function: ai.ToolCallFunction{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
	}

	response.Usage = toUsage(completion.Usage)
	return response
}

// toUsage converts SDK token accounting into the neutral usage type.
func toUsage(usage openai.CompletionUsage) *ai.Usage {
	if usage.TotalTokens == 0 && usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		return nil
	}
	return &ai.Usage{
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
		TotalTokens:      int(usage.TotalTokens),
		ReasoningTokens:  int(usage.CompletionTokensDetails.ReasoningTokens),
		CachedTokens:     int(usage.PromptTokensDetails.CachedTokens),
	}
}
