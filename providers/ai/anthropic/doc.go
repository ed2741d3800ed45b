// Package anthropic implements the [ai.Provider] interface on top of the
// official Anthropic Go SDK (Messages API).
//
// It handles request conversion from the generic [ai.ChatRequest] format to
// SDK message params, and response mapping back to [ai.ChatResponse],
// including tool_use blocks, thinking blocks, and usage accounting.
//
// The primary entry point is [New], which reads ANTHROPIC_API_KEY and
// ANTHROPIC_API_BASE_URL from the environment. Use [AnthropicProvider.WithAPIKey],
// [AnthropicProvider.WithBaseURL], [AnthropicProvider.WithHttpClient], or
// [AnthropicProvider.WithModel] to configure the provider programmatically.
//
// The provider is synchronous only. Callers that need streaming receive a
// single-event fallback stream from the client layer.
package anthropic
