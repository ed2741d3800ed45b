// Package openai implements the agentgraph AI provider interface on top of the
// official OpenAI Go SDK, targeting the /v1/chat/completions endpoint. Any
// OpenAI-compatible host works by overriding the base URL.
//
// The main entry point is [NewOpenAIProvider], which reads OPENAI_API_KEY and
// OPENAI_API_BASE_URL from the environment. Use [OpenAIProvider.WithAPIKey],
// [OpenAIProvider.WithBaseURL] and [OpenAIProvider.WithModel] to override these
// values programmatically.
//
// Streaming is available through [OpenAIProvider.StreamMessage], which returns
// an [ai.ChatStream] iterator over incremental SSE events.
package openai
