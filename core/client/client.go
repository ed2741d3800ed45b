package client

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/anshlambagit/agentgraph/core/cost"
	"github.com/anshlambagit/agentgraph/core/overview"
	"github.com/anshlambagit/agentgraph/core/parse"
	"github.com/anshlambagit/agentgraph/providers/ai"
	"github.com/anshlambagit/agentgraph/providers/memory"
	"github.com/anshlambagit/agentgraph/providers/observability"
	"github.com/anshlambagit/agentgraph/providers/tool"
)

// Environment variables for cost tracking. When set, New picks them up as
// defaults so cost tracking works without touching application code.
const (
	envModelInputCostPerMillion  = "AGENTGRAPH_MODEL_INPUT_COST_PER_MILLION"
	envModelOutputCostPerMillion = "AGENTGRAPH_MODEL_OUTPUT_COST_PER_MILLION"
	envComputeCostPerSecond      = "AGENTGRAPH_COMPUTE_COST_PER_SECOND"
)

// Client is a provider-agnostic LLM client that layers conversation memory,
// tool advertisement, structured output, observability and cost tracking on
// top of a raw [ai.Provider].
//
// A Client is either stateless (no memory provider configured) or stateful
// (every user message is appended to memory and the full history is sent on
// each request). Responses are never saved automatically; callers decide
// which assistant and tool messages belong in the conversation history.
//
// Create a Client with [New] and configure it through functional options.
type Client struct {
	llmProvider    ai.Provider
	memoryProvider memory.Provider
	observer       observability.Provider

	systemPrompt string
	defaultModel string

	toolCatalog   *tool.Catalog
	requiredTools []ai.ToolDescription

	defaultOutputSchema *jsonschema.Schema
	modelCost           *cost.ModelCost
	computeCost         *cost.ComputeCost

	// Middleware chains. Nil when no middleware is configured, in which case
	// requests go straight to the provider.
	sendChain   SendFunc
	streamChain StreamFunc
}

// ClientOptions collects the configuration applied by the functional options
// passed to [New]. The zero value is a valid stateless configuration.
type ClientOptions struct {
	Memory              memory.Provider
	Observer            observability.Provider
	SystemPrompt        string
	DefaultModel        string
	Tools               []tool.GenericTool
	RequiredTools       []tool.GenericTool
	Middlewares         []MiddlewareConfig
	DefaultOutputSchema *jsonschema.Schema
	ModelCost           *cost.ModelCost

	// EnrichSystemPromptWithToolDescr appends a tool overview section to the
	// system prompt at construction time.
	EnrichSystemPromptWithToolDescr bool

	// EnrichSystemPromptWithToolCosts additionally includes per-tool cost and
	// quality metrics plus an optimization goal derived from ToolCostOptimization.
	EnrichSystemPromptWithToolCosts bool
	ToolCostOptimization            cost.OptimizationStrategy
}

// WithMemory configures a memory provider. With memory configured the client
// becomes stateful: SendMessage appends the user message to memory and sends
// the full history, and ContinueConversation becomes available.
func WithMemory(provider memory.Provider) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.Memory = provider
	}
}

// WithObserver configures an observability provider. The client automatically
// installs an observability middleware that traces every request, records
// request and token metrics, and logs outcomes.
func WithObserver(observer observability.Provider) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.Observer = observer
	}
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.SystemPrompt = prompt
	}
}

// WithDefaultModel sets the model identifier used for requests. Providers fall
// back to their own default when empty.
func WithDefaultModel(model string) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// WithTools registers tools in the client's catalog. Registered tools are
// advertised to the provider on every request; executing them is up to the
// caller (or a pattern built on top of the client).
func WithTools(tools ...tool.GenericTool) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

// WithRequiredTools registers tools that the model is expected to call.
// Required tools join the catalog like regular tools and are additionally
// advertised with the required flag set.
func WithRequiredTools(tools ...tool.GenericTool) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.RequiredTools = append(o.RequiredTools, tools...)
	}
}

// WithMiddleware appends middleware entries to the client's chain. Entries
// execute in the order given: the first entry is the outermost wrapper. Each
// entry must have a non-nil Send; [New] returns an error otherwise.
func WithMiddleware(configs ...MiddlewareConfig) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.Middlewares = append(o.Middlewares, configs...)
	}
}

// WithDefaultOutputSchema sets a JSON schema applied to every request's
// response format. Per-call [WithOutputSchema] options override it.
func WithDefaultOutputSchema(schema *jsonschema.Schema) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.DefaultOutputSchema = schema
	}
}

// WithModelCost sets the per-token pricing used for cost tracking. When not
// provided, pricing is read from the AGENTGRAPH_MODEL_*_COST_PER_MILLION
// environment variables if present.
func WithModelCost(modelCost cost.ModelCost) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.ModelCost = &modelCost
	}
}

// WithEnrichSystemPromptWithToolsDescriptions enriches the system prompt at
// construction time with a section listing every registered tool's name and
// description. Useful for models that benefit from seeing their tools in the
// prompt in addition to the structured tool definitions.
func WithEnrichSystemPromptWithToolsDescriptions() func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.EnrichSystemPromptWithToolDescr = true
	}
}

// WithEnrichSystemPromptWithToolsCosts enriches the system prompt with tool
// descriptions plus their cost and quality metrics, and appends an
// optimization goal so the model can pick tools according to strategy.
func WithEnrichSystemPromptWithToolsCosts(strategy cost.OptimizationStrategy) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.EnrichSystemPromptWithToolCosts = true
		o.ToolCostOptimization = strategy
	}
}

// New creates a Client for the given provider. The provider must be non-nil.
// Options are applied in order; later options win on scalar fields while
// tools and middlewares accumulate.
func New(llmProvider ai.Provider, opts ...func(*ClientOptions)) (*Client, error) {
	if llmProvider == nil {
		return nil, fmt.Errorf("llm provider cannot be nil")
	}

	options := &ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// User-provided middleware is validated before the observability
	// middleware is prepended so error indices match the caller's order.
	for i, mw := range options.Middlewares {
		if mw.Send == nil {
			return nil, fmt.Errorf("middleware[%d] has a nil Send field", i)
		}
	}

	c := &Client{
		llmProvider:         llmProvider,
		memoryProvider:      options.Memory,
		observer:            options.Observer,
		systemPrompt:        options.SystemPrompt,
		defaultModel:        options.DefaultModel,
		toolCatalog:         tool.NewCatalogWithTools(options.Tools...),
		defaultOutputSchema: options.DefaultOutputSchema,
		modelCost:           options.ModelCost,
	}

	if len(options.RequiredTools) > 0 {
		c.toolCatalog.AddTools(options.RequiredTools...)
		for _, requiredTool := range options.RequiredTools {
			info := requiredTool.ToolInfo()
			info.Required = true
			c.requiredTools = append(c.requiredTools, info)
		}
	}

	if c.modelCost == nil {
		c.modelCost = loadModelCostFromEnv()
	}
	c.computeCost = loadComputeCostFromEnv()

	// Prompt enrichment happens once, at construction time, so the enriched
	// prompt is visible on the client and identical across requests.
	if options.EnrichSystemPromptWithToolCosts {
		c.systemPrompt = enrichSystemPromptWithTools(c.systemPrompt, options.Tools, c.requiredTools, options.ToolCostOptimization)
	} else if options.EnrichSystemPromptWithToolDescr {
		c.systemPrompt = enrichSystemPromptWithTools(c.systemPrompt, options.Tools, c.requiredTools, "")
	}

	middlewares := options.Middlewares
	if c.observer != nil {
		middlewares = append([]MiddlewareConfig{NewObservabilityMiddleware(c.observer, c.defaultModel)}, middlewares...)
	}

	if len(middlewares) > 0 {
		c.sendChain = buildSendChain(llmProvider, middlewares)
		c.streamChain = buildStreamChain(llmProvider, middlewares)
	}

	return c, nil
}

// sendMessageOptions holds per-call request overrides.
type sendMessageOptions struct {
	outputSchema          *jsonschema.Schema
	ephemeralSystemPrompt string
	generationConfig      *ai.GenerationConfig
}

// SendMessageOption customizes a single request without touching the client's
// configuration.
type SendMessageOption func(*sendMessageOptions)

// WithOutputSchema applies a JSON schema to this request's response format,
// overriding any default output schema configured on the client.
func WithOutputSchema(schema *jsonschema.Schema) SendMessageOption {
	return func(o *sendMessageOptions) {
		o.outputSchema = schema
	}
}

// WithEphemeralSystemPrompt replaces the client's system prompt for this
// request only.
func WithEphemeralSystemPrompt(prompt string) SendMessageOption {
	return func(o *sendMessageOptions) {
		o.ephemeralSystemPrompt = prompt
	}
}

// WithGenerationConfig sets sampling and token limit parameters for this
// request only.
func WithGenerationConfig(config ai.GenerationConfig) SendMessageOption {
	return func(o *sendMessageOptions) {
		o.generationConfig = &config
	}
}

func applySendMessageOptions(opts []SendMessageOption) *sendMessageOptions {
	options := &sendMessageOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SendMessage sends a user message and returns the provider's response.
//
// In stateful mode (memory configured) the user message is appended to memory
// and the full history is sent. The response is NOT saved to memory; callers
// decide which assistant and tool messages to keep via the memory provider.
//
// The prompt must be non-empty. To request a completion over the existing
// history without new user input, use ContinueConversation.
func (c *Client) SendMessage(ctx context.Context, prompt string, opts ...SendMessageOption) (*ai.ChatResponse, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty: use ContinueConversation() to request a completion over the existing history")
	}

	messages, err := c.historyWithUserMessage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return c.send(ctx, c.buildChatRequest(messages, applySendMessageOptions(opts)))
}

// ContinueConversation requests a completion over the conversation history in
// memory without adding a new user message. This is the natural follow-up
// after tool results have been appended to memory, or whenever the model
// should take another turn on the existing context.
//
// Requires a memory provider. The response is not saved to memory.
func (c *Client) ContinueConversation(ctx context.Context, opts ...SendMessageOption) (*ai.ChatResponse, error) {
	if c.memoryProvider == nil {
		return nil, fmt.Errorf("ContinueConversation requires a memory provider: configure one with WithMemory()")
	}

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}

	return c.send(ctx, c.buildChatRequest(messages, applySendMessageOptions(opts)))
}

// StreamMessage sends a user message and returns a stream of incremental
// response events. Memory handling matches SendMessage: the user message is
// appended before streaming begins, the streamed response is not saved.
//
// Providers that do not support native streaming fall back to a synchronous
// request wrapped in a single-pass stream.
func (c *Client) StreamMessage(ctx context.Context, prompt string, opts ...SendMessageOption) (*ai.ChatStream, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty: use StreamContinueConversation() to request a completion over the existing history")
	}

	messages, err := c.historyWithUserMessage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return c.stream(ctx, c.buildChatRequest(messages, applySendMessageOptions(opts)))
}

// StreamContinueConversation streams a completion over the conversation
// history in memory without adding a new user message. Requires a memory
// provider.
func (c *Client) StreamContinueConversation(ctx context.Context, opts ...SendMessageOption) (*ai.ChatStream, error) {
	if c.memoryProvider == nil {
		return nil, fmt.Errorf("StreamContinueConversation requires a memory provider: configure one with WithMemory()")
	}

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}

	return c.stream(ctx, c.buildChatRequest(messages, applySendMessageOptions(opts)))
}

// historyWithUserMessage appends the user message to memory (when configured)
// and returns the message list for the outgoing request.
func (c *Client) historyWithUserMessage(ctx context.Context, prompt string) ([]ai.Message, error) {
	userMessage := ai.Message{Role: ai.RoleUser, Content: prompt}

	if c.memoryProvider == nil {
		return []ai.Message{userMessage}, nil
	}

	c.memoryProvider.AppendMessage(ctx, &userMessage)

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}
	return messages, nil
}

// buildChatRequest assembles the outgoing request from client configuration
// and per-call overrides.
func (c *Client) buildChatRequest(messages []ai.Message, options *sendMessageOptions) ai.ChatRequest {
	request := ai.ChatRequest{
		Model:            c.defaultModel,
		Messages:         messages,
		SystemPrompt:     c.systemPrompt,
		Tools:            c.toolDescriptions(),
		GenerationConfig: options.generationConfig,
	}

	if options.ephemeralSystemPrompt != "" {
		request.SystemPrompt = options.ephemeralSystemPrompt
	}

	outputSchema := c.defaultOutputSchema
	if options.outputSchema != nil {
		outputSchema = options.outputSchema
	}
	if outputSchema != nil {
		request.ResponseFormat = &ai.ResponseFormat{
			Type:         "json_schema",
			OutputSchema: outputSchema,
		}
	}

	return request
}

// toolDescriptions builds the tool definitions advertised on each request,
// marking required tools.
func (c *Client) toolDescriptions() []ai.ToolDescription {
	if c.toolCatalog.Size() == 0 {
		return nil
	}

	required := make(map[string]bool, len(c.requiredTools))
	for _, desc := range c.requiredTools {
		required[strings.ToLower(desc.Name)] = true
	}

	descriptions := make([]ai.ToolDescription, 0, c.toolCatalog.Size())
	for name, registeredTool := range c.toolCatalog.Tools() {
		info := registeredTool.ToolInfo()
		info.Required = required[name]
		descriptions = append(descriptions, info)
	}
	return descriptions
}

// send dispatches a request through the middleware chain (or directly to the
// provider) and records the exchange in the context's overview.
func (c *Client) send(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	requestOverview := overview.OverviewFromContext(&ctx)
	requestOverview.AddRequest(&request)
	if c.modelCost != nil {
		requestOverview.SetModelCost(c.modelCost)
	}
	if c.computeCost != nil {
		requestOverview.SetComputeCost(c.computeCost)
	}

	var response *ai.ChatResponse
	var err error
	if c.sendChain != nil {
		response, err = c.sendChain(ctx, request)
	} else {
		response, err = c.llmProvider.SendMessage(ctx, request)
	}
	if err != nil {
		return nil, err
	}

	requestOverview.AddResponse(response)
	requestOverview.IncludeUsage(response.Usage)
	requestOverview.AddToolCalls(response.ToolCalls)

	return response, nil
}

// stream dispatches a streaming request through the stream chain when one is
// configured, otherwise straight to the provider with a sync fallback for
// providers without native streaming.
func (c *Client) stream(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if c.streamChain != nil {
		return c.streamChain(ctx, request)
	}

	if streamProvider, ok := c.llmProvider.(ai.StreamProvider); ok {
		return streamProvider.StreamMessage(ctx, request)
	}

	response, err := c.llmProvider.SendMessage(ctx, request)
	if err != nil {
		return nil, err
	}
	return ai.NewSingleEventStream(response), nil
}

// Memory returns the configured memory provider, or nil in stateless mode.
func (c *Client) Memory() memory.Provider {
	return c.memoryProvider
}

// Observer returns the configured observability provider, or nil.
func (c *Client) Observer() observability.Provider {
	return c.observer
}

// AppendToSystemPrompt appends content to the client's system prompt. The
// caller is responsible for any separating whitespace.
func (c *Client) AppendToSystemPrompt(content string) {
	c.systemPrompt += content
}

// ToolCatalog returns a clone of the client's tool catalog. Modifying the
// returned catalog does not affect the client.
func (c *Client) ToolCatalog() *tool.Catalog {
	return c.toolCatalog.Clone()
}

// SetDefaultOutputSchema sets the JSON schema applied to every request's
// response format. Used by [FromBaseClient] to bind a structured client's
// schema onto its base.
func (c *Client) SetDefaultOutputSchema(schema *jsonschema.Schema) {
	c.defaultOutputSchema = schema
}

// ParseResponseAs parses a chat response's content into type T using the same
// flexible parsing rules as structured outputs: direct conversion for
// primitives, JSON (with repair) for complex types.
func ParseResponseAs[T any](response *ai.ChatResponse) (T, error) {
	var zero T
	if response == nil {
		return zero, fmt.Errorf("response is nil")
	}

	parsed, err := parse.ParseStringAs[T](response.Content)
	if err != nil {
		return zero, fmt.Errorf("failed to parse response as %s: %w", reflect.TypeFor[T]().Kind(), err)
	}
	return parsed, nil
}

// enrichSystemPromptWithTools appends a tool overview section to basePrompt.
// Tools are listed with their descriptions; when strategy is non-empty, each
// tool's cost and quality metrics are included along with an optimization
// goal guiding tool selection. Returns basePrompt unchanged when there are no
// tools to describe.
func enrichSystemPromptWithTools(basePrompt string, tools []tool.GenericTool, toolDescriptions []ai.ToolDescription, strategy cost.OptimizationStrategy) string {
	descriptions := make([]ai.ToolDescription, 0, len(tools)+len(toolDescriptions))
	for _, t := range tools {
		descriptions = append(descriptions, t.ToolInfo())
	}
	descriptions = append(descriptions, toolDescriptions...)

	if len(descriptions) == 0 {
		return basePrompt
	}

	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\n## Available Tools\n\n")
	sb.WriteString("You have access to the following tools through function calling:\n\n")

	for i, desc := range descriptions {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, desc.Name, desc.Description))
		if strategy != "" && desc.Metrics != nil {
			sb.WriteString(fmt.Sprintf("   - Cost: %s\n", desc.Metrics.String()))
			if metricsLine := desc.Metrics.MetricsString(); metricsLine != "" {
				sb.WriteString(fmt.Sprintf("   - %s\n", metricsLine))
			}
		}
	}

	sb.WriteString("\nUse function calling to invoke a tool when it helps you fulfill the request.\n")

	if strategy != "" {
		sb.WriteString("\n## Optimization Goal\n\n")
		sb.WriteString(optimizationGuidance(strategy))
		sb.WriteString("\n")
	}

	return sb.String()
}

// optimizationGuidance returns the tool selection instruction for a strategy.
func optimizationGuidance(strategy cost.OptimizationStrategy) string {
	switch strategy {
	case cost.OptimizeForCost:
		return "Minimize costs: prefer the cheapest tool that can accomplish the task, and avoid paid tool calls when a direct answer suffices."
	case cost.OptimizeForAccuracy:
		return "Maximize accuracy: prefer the most accurate tool for the task, even when it costs more or runs slower."
	case cost.OptimizeForSpeed:
		return "Minimize latency: prefer the fastest tool that can accomplish the task."
	case cost.OptimizeBalanced:
		return "Balance cost, accuracy and speed: pick the tool with the best overall trade-off for the task."
	case cost.OptimizeCostEffective:
		return "Maximize cost-effectiveness: prefer the tool delivering the best accuracy per unit of cost."
	default:
		return "Choose the most appropriate tool for each task."
	}
}

// loadModelCostFromEnv reads per-token pricing from the environment. Returns
// nil when either variable is missing or fails to parse, so a misconfigured
// environment degrades to no cost tracking rather than a construction error.
func loadModelCostFromEnv() *cost.ModelCost {
	inputRaw := os.Getenv(envModelInputCostPerMillion)
	outputRaw := os.Getenv(envModelOutputCostPerMillion)
	if inputRaw == "" || outputRaw == "" {
		return nil
	}

	inputCost, err := strconv.ParseFloat(inputRaw, 64)
	if err != nil {
		return nil
	}
	outputCost, err := strconv.ParseFloat(outputRaw, 64)
	if err != nil {
		return nil
	}

	return &cost.ModelCost{
		InputCostPerMillion:  inputCost,
		OutputCostPerMillion: outputCost,
	}
}

// loadComputeCostFromEnv reads per-second compute pricing from the
// environment. Returns nil when unset or invalid.
func loadComputeCostFromEnv() *cost.ComputeCost {
	raw := os.Getenv(envComputeCostPerSecond)
	if raw == "" {
		return nil
	}

	costPerSecond, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}

	return &cost.ComputeCost{CostPerSecond: costPerSecond}
}
