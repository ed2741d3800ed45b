// Package utils provides shared low-level helpers used throughout the agentgraph
// internals. It covers HTTP request helpers for both synchronous and
// streaming (SSE) communication with AI provider APIs, string formatting
// utilities for log output, and a simple elapsed-time timer.
//
// Key entry points: [DoPostSync] for synchronous JSON round-trips,
// [DoPostStream] together with [SSEScanner] for Server-Sent Events streaming,
// and [Timer] for measuring latency.
package utils
