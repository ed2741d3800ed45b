package react

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/anshlambagit/agentgraph/core/client"
	"github.com/anshlambagit/agentgraph/core/overview"
	"github.com/anshlambagit/agentgraph/core/parse"
	"github.com/anshlambagit/agentgraph/internal/schema"
	"github.com/anshlambagit/agentgraph/internal/utils"
	"github.com/anshlambagit/agentgraph/patterns"
	"github.com/anshlambagit/agentgraph/providers/ai"
	"github.com/anshlambagit/agentgraph/providers/tool"
)

// defaultMaxIterations bounds the reasoning loop when WithMaxIterations is not
// provided.
const defaultMaxIterations = 10

// retryInstruction is appended to the conversation when the final answer could
// not be parsed into the target type, asking the model to answer once more
// bound to the JSON schema.
const retryInstruction = "Your previous answer could not be parsed. Respond again with only a JSON object matching the required schema, without any surrounding text."

// errToolNotFound marks a tool call whose name is not registered in the
// client's tool catalog.
var errToolNotFound = errors.New("tool not found in catalog")

// ReactPattern runs a type-safe ReAct (Reason + Act) loop: the model is asked
// for its next step, tool calls it requests are executed and fed back through
// conversation memory, and the loop repeats until the model answers without
// requesting tools. That final answer is parsed into T.
//
// The pattern requires a client with a memory provider, because the loop is a
// multi-turn conversation: every assistant turn and tool result becomes part
// of the history the next iteration reasons over.
type ReactPattern[T any] struct {
	client        *client.Client
	maxIterations int
	stopOnError   bool

	// outputSchema is the JSON schema of T, generated once and attached to
	// the request when the final answer needs the structured retry.
	outputSchema *jsonschema.Schema
}

var _ patterns.Pattern[string] = (*ReactPattern[string])(nil)

// ReactOptions collects the configuration applied by the functional options
// passed to New.
type ReactOptions struct {
	MaxIterations int
	StopOnError   bool
}

// WithMaxIterations caps the number of reasoning iterations before the loop
// gives up. Defaults to 10.
func WithMaxIterations(maxIterations int) func(*ReactOptions) {
	return func(o *ReactOptions) {
		o.MaxIterations = maxIterations
	}
}

// WithStopOnError controls how failing tool calls are handled. When true the
// loop aborts on the first tool error; when false (the default) the failure is
// reported back to the model as a tool result and the loop continues, letting
// the model recover or try another tool.
func WithStopOnError(stopOnError bool) func(*ReactOptions) {
	return func(o *ReactOptions) {
		o.StopOnError = stopOnError
	}
}

// New creates a ReAct agent producing answers of type T on top of a
// configured client. The client must carry a memory provider; tools the agent
// may use are the ones registered on the client via client.WithTool.
func New[T any](baseClient *client.Client, opts ...func(*ReactOptions)) (*ReactPattern[T], error) {
	if baseClient == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if baseClient.Memory() == nil {
		return nil, fmt.Errorf("ReAct requires a stateful conversation: configure the client with a memory provider")
	}

	options := &ReactOptions{MaxIterations: defaultMaxIterations}
	for _, opt := range opts {
		opt(options)
	}

	if options.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", options.MaxIterations)
	}

	return &ReactPattern[T]{
		client:        baseClient,
		maxIterations: options.MaxIterations,
		stopOnError:   options.StopOnError,
		outputSchema:  schema.GenerateJSONSchema[T](),
	}, nil
}

// Execute runs the ReAct loop for prompt until the model produces a final
// answer or the iteration cap is reached. A response without tool calls is
// treated as the final answer and parsed into T; when parsing fails the model
// is asked once more with the schema of T attached, and the second parse
// failure is returned as an error.
//
// Tool calls are resolved case-insensitively against the client's tool
// catalog. A failing or unknown tool either aborts the loop
// (WithStopOnError(true)) or is rendered as an error tool result the model
// can react to on the next iteration.
func (p *ReactPattern[T]) Execute(ctx context.Context, prompt string) (*overview.StructuredOverview[T], error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	executionOverview := overview.OverviewFromContext(&ctx)
	executionOverview.StartExecution()

	run := newReactRun(&ctx, p.client, p.maxIterations)
	catalog := p.client.ToolCatalog()

	for iteration := 1; iteration <= p.maxIterations; iteration++ {
		run.observeIterationStart(ctx, iteration)

		iterationTimer := utils.NewTimer()
		response, err := p.nextResponse(ctx, iteration, prompt)
		iterationTimer.Stop()
		if err != nil {
			run.observeIterationError(ctx, iteration, iterationTimer, err)
			return nil, fmt.Errorf("iteration %d failed: %w", iteration, err)
		}

		// A response without tool calls is the model's final answer.
		if len(response.ToolCalls) == 0 {
			return p.finishWithAnswer(ctx, run, response, executionOverview)
		}

		p.rememberAssistantTurn(ctx, response)

		for _, toolCall := range response.ToolCalls {
			output, toolErr := p.executeToolCall(ctx, run, catalog, toolCall, executionOverview)
			if toolErr != nil {
				if p.stopOnError {
					run.observeToolError(ctx, toolCall.Function.Name, toolErr)
					run.observeStopOnError(ctx, toolErr)
					return nil, fmt.Errorf("tool execution failed at iteration %d: %w", iteration, toolErr)
				}
				output = toolFailurePayload(toolErr)
			}
			p.rememberToolResult(ctx, toolCall, output)
		}
	}

	run.observeMaxIteration(ctx, p.maxIterations)
	return nil, fmt.Errorf("reached maximum iterations (%d) without a final answer", p.maxIterations)
}

// nextResponse requests the model's next turn. The prompt opens the
// conversation; later iterations continue over the accumulated history.
func (p *ReactPattern[T]) nextResponse(ctx context.Context, iteration int, prompt string) (*ai.ChatResponse, error) {
	if iteration == 1 {
		return p.client.SendMessage(ctx, prompt)
	}
	return p.client.ContinueConversation(ctx)
}

// finishWithAnswer parses the final response into T, retrying once with the
// output schema attached when the first attempt does not produce a valid T.
func (p *ReactPattern[T]) finishWithAnswer(ctx context.Context, run *reactRun, response *ai.ChatResponse, executionOverview *overview.Overview) (*overview.StructuredOverview[T], error) {
	p.rememberAssistantTurn(ctx, response)

	parsed, parseErr := parse.ParseStringAs[T](response.Content)
	if parseErr == nil {
		run.observeSuccess(ctx)
		return buildResult(executionOverview, &parsed), nil
	}

	run.observeParseError(ctx, parseErr)
	run.observeRequestingStructuredFinalAnswer(ctx)

	retryResponse, err := p.requestStructuredFinalAnswer(ctx)
	if err != nil {
		run.observeFailure(ctx, "Structured final answer request failed", err)
		return nil, fmt.Errorf("failed to request structured final answer: %w", err)
	}

	p.rememberAssistantTurn(ctx, retryResponse)

	parsed, parseErr = parse.ParseStringAs[T](retryResponse.Content)
	if parseErr != nil {
		run.observeParseError(ctx, parseErr)
		run.observeFailure(ctx, "Final answer unparseable after retry", parseErr)
		return nil, fmt.Errorf("failed to parse final answer after retry: %w", parseErr)
	}

	run.observeSuccess(ctx)
	return buildResult(executionOverview, &parsed), nil
}

// requestStructuredFinalAnswer asks the model to answer again with the JSON
// schema of T bound to the request.
func (p *ReactPattern[T]) requestStructuredFinalAnswer(ctx context.Context) (*ai.ChatResponse, error) {
	p.client.Memory().AppendMessage(ctx, &ai.Message{Role: ai.RoleUser, Content: retryInstruction})
	return p.client.ContinueConversation(ctx, client.WithOutputSchema(p.outputSchema))
}

// executeToolCall resolves the requested tool in the catalog and runs it. The
// lookup is case-insensitive because models frequently vary the casing of
// tool names.
func (p *ReactPattern[T]) executeToolCall(ctx context.Context, run *reactRun, catalog *tool.Catalog, toolCall ai.ToolCall, executionOverview *overview.Overview) (string, error) {
	toolName := toolCall.Function.Name

	registeredTool, found := catalog.Get(toolName)
	if !found {
		err := fmt.Errorf("tool %q: %w", toolName, errToolNotFound)
		run.observeToolNotFound(ctx, toolName, err)
		return "", err
	}

	toolTimer := utils.NewTimer()
	output, err := registeredTool.Call(ctx, toolCall.Function.Arguments)
	toolTimer.Stop()
	if err != nil {
		run.observeToolFailed(ctx, toolName, toolTimer, err)
		return "", fmt.Errorf("tool %q: %w", toolName, err)
	}

	executionOverview.AddToolExecutionCost(toolName, registeredTool.GetMetrics())
	run.observeToolCompleted(ctx, toolName, toolTimer)
	return output, nil
}

// toolFailurePayload renders a tool error as the standardized error tool
// result JSON so the model can see what went wrong and adjust its plan.
func toolFailurePayload(err error) string {
	errorType := "tool_execution_failed"
	if errors.Is(err, errToolNotFound) {
		errorType = "tool_not_found"
	}

	payload, marshalErr := ai.NewToolResultError(errorType, err.Error()).ToJSON()
	if marshalErr != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	return payload
}

// rememberAssistantTurn appends the assistant's turn to memory. The client
// never saves responses on its own; the pattern decides what belongs in the
// conversation history.
func (p *ReactPattern[T]) rememberAssistantTurn(ctx context.Context, response *ai.ChatResponse) {
	p.client.Memory().AppendMessage(ctx, &ai.Message{
		Role:      ai.RoleAssistant,
		Content:   response.Content,
		Reasoning: response.Reasoning,
		ToolCalls: response.ToolCalls,
	})
}

// rememberToolResult appends a tool's output as a tool message linked to the
// call that produced it.
func (p *ReactPattern[T]) rememberToolResult(ctx context.Context, toolCall ai.ToolCall, output string) {
	p.client.Memory().AppendMessage(ctx, &ai.Message{
		Role:       ai.RoleTool,
		Content:    output,
		ToolCallID: toolCall.ID,
		Name:       toolCall.Function.Name,
	})
}

// buildResult stamps the execution end time and snapshots the overview into
// the typed result.
func buildResult[T any](executionOverview *overview.Overview, data *T) *overview.StructuredOverview[T] {
	executionOverview.EndExecution()
	return &overview.StructuredOverview[T]{
		Overview: *executionOverview,
		Data:     data,
	}
}

// ExecuteStream runs the same ReAct loop as Execute but yields events as the
// work happens: iteration boundaries, content and reasoning deltas, tool
// calls with their results, and finally the parsed answer. Consume the
// returned stream with Iter or Collect.
func (p *ReactPattern[T]) ExecuteStream(ctx context.Context, prompt string) (*ReactStream[T], error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	carrier := &contextCarrier{}
	iterator := func(yield func(ReactEvent[T], error) bool) {
		p.streamLoop(ctx, prompt, carrier, yield)
	}

	return &ReactStream[T]{
		iterator: iterator,
		ctxPtr:   carrier,
	}, nil
}

// streamLoop drives the streaming ReAct loop. Terminal failures are yielded
// as a ReactEventError carrying the error on both sides of the pair, so
// consumers see the event and the iterator error together.
func (p *ReactPattern[T]) streamLoop(ctx context.Context, prompt string, carrier *contextCarrier, yield func(ReactEvent[T], error) bool) {
	executionOverview := overview.OverviewFromContext(&ctx)
	executionOverview.StartExecution()
	carrier.overview = executionOverview

	run := newReactRun(&ctx, p.client, p.maxIterations)
	catalog := p.client.ToolCatalog()

	for iteration := 1; iteration <= p.maxIterations; iteration++ {
		run.observeIterationStart(ctx, iteration)

		if !yield(ReactEvent[T]{Type: ReactEventIterationStart, Iteration: iteration}, nil) {
			return
		}

		iterationTimer := utils.NewTimer()
		chatStream, err := p.nextResponseStream(ctx, iteration, prompt)
		if err != nil {
			iterationTimer.Stop()
			run.observeIterationError(ctx, iteration, iterationTimer, err)
			failed := fmt.Errorf("iteration %d failed: %w", iteration, err)
			yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
			return
		}

		turn, stopped, streamErr := forwardStreamEvents(iteration, chatStream, yield)
		iterationTimer.Stop()
		if stopped {
			return
		}
		if streamErr != nil {
			run.observeIterationError(ctx, iteration, iterationTimer, streamErr)
			failed := fmt.Errorf("iteration %d failed: %w", iteration, streamErr)
			yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
			return
		}

		// The streaming path bypasses the client's overview bookkeeping, so
		// the assembled response is accounted for here.
		response := turn.response()
		executionOverview.AddResponse(response)
		executionOverview.IncludeUsage(response.Usage)
		executionOverview.AddToolCalls(response.ToolCalls)

		if len(response.ToolCalls) == 0 {
			p.streamFinalAnswer(ctx, run, iteration, response, executionOverview, yield)
			return
		}

		p.rememberAssistantTurn(ctx, response)

		for _, toolCall := range response.ToolCalls {
			if !yield(ReactEvent[T]{
				Type:      ReactEventToolCall,
				Iteration: iteration,
				ToolName:  toolCall.Function.Name,
				ToolInput: toolCall.Function.Arguments,
			}, nil) {
				return
			}

			output, toolErr := p.executeToolCall(ctx, run, catalog, toolCall, executionOverview)
			if toolErr != nil {
				if p.stopOnError {
					run.observeToolError(ctx, toolCall.Function.Name, toolErr)
					run.observeStopOnError(ctx, toolErr)
					failed := fmt.Errorf("tool execution failed at iteration %d: %w", iteration, toolErr)
					yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
					return
				}
				output = toolFailurePayload(toolErr)
			}
			p.rememberToolResult(ctx, toolCall, output)

			if !yield(ReactEvent[T]{
				Type:       ReactEventToolResult,
				Iteration:  iteration,
				ToolName:   toolCall.Function.Name,
				ToolOutput: output,
			}, nil) {
				return
			}
		}
	}

	run.observeMaxIteration(ctx, p.maxIterations)
	failed := fmt.Errorf("reached maximum iterations (%d) without a final answer", p.maxIterations)
	yield(ReactEvent[T]{Type: ReactEventError, Err: failed}, failed)
}

// nextResponseStream opens the model's next turn as a stream. Providers
// without native streaming are wrapped by the client into a single-event
// stream, so the loop never needs to special-case them.
func (p *ReactPattern[T]) nextResponseStream(ctx context.Context, iteration int, prompt string) (*ai.ChatStream, error) {
	if iteration == 1 {
		return p.client.StreamMessage(ctx, prompt)
	}
	return p.client.StreamContinueConversation(ctx)
}

// streamedTurn is one fully consumed streaming response.
type streamedTurn struct {
	content      strings.Builder
	reasoning    strings.Builder
	builders     []reactToolCallBuilder
	usage        *ai.Usage
	finishReason string
}

// response assembles the accumulated deltas into a complete ChatResponse.
func (turn *streamedTurn) response() *ai.ChatResponse {
	return &ai.ChatResponse{
		Content:      turn.content.String(),
		Reasoning:    turn.reasoning.String(),
		ToolCalls:    buildToolCallsFromBuilders(turn.builders),
		FinishReason: turn.finishReason,
		Usage:        turn.usage,
	}
}

// forwardStreamEvents drains one streaming response, re-emitting content and
// reasoning deltas as react events and accumulating everything else. Tool
// call deltas are only accumulated here; the caller emits the complete calls
// once the response has been fully consumed. stopped reports that the
// consumer broke out of the event loop.
func forwardStreamEvents[T any](iteration int, chatStream *ai.ChatStream, yield func(ReactEvent[T], error) bool) (turn *streamedTurn, stopped bool, err error) {
	turn = &streamedTurn{}

	for event, streamErr := range chatStream.Iter() {
		if streamErr != nil {
			return nil, false, streamErr
		}

		switch event.Type {
		case ai.StreamEventContent:
			turn.content.WriteString(event.Content)
			if !yield(ReactEvent[T]{Type: ReactEventContent, Iteration: iteration, Content: event.Content}, nil) {
				return nil, true, nil
			}

		case ai.StreamEventReasoning:
			turn.reasoning.WriteString(event.Reasoning)
			if !yield(ReactEvent[T]{Type: ReactEventReasoning, Iteration: iteration, Reasoning: event.Reasoning}, nil) {
				return nil, true, nil
			}

		case ai.StreamEventToolCall:
			if event.ToolCall != nil {
				turn.builders = accumulateReactToolCallDelta(turn.builders, event.ToolCall)
			}

		case ai.StreamEventUsage:
			if event.Usage != nil {
				turn.usage = event.Usage
			}

		case ai.StreamEventDone:
			turn.finishReason = event.FinishReason
		}
	}

	return turn, false, nil
}

// streamFinalAnswer parses the accumulated final response and emits the
// FinalAnswer event, retrying once with the output schema when the content is
// not valid for T. Retry deltas are forwarded to the consumer like any other
// iteration output.
func (p *ReactPattern[T]) streamFinalAnswer(ctx context.Context, run *reactRun, iteration int, response *ai.ChatResponse, executionOverview *overview.Overview, yield func(ReactEvent[T], error) bool) {
	p.rememberAssistantTurn(ctx, response)

	parsed, parseErr := parse.ParseStringAs[T](response.Content)
	if parseErr == nil {
		executionOverview.EndExecution()
		run.observeSuccess(ctx)
		yield(ReactEvent[T]{Type: ReactEventFinalAnswer, Iteration: iteration, Content: response.Content, Result: &parsed}, nil)
		return
	}

	run.observeParseError(ctx, parseErr)
	run.observeRequestingStructuredFinalAnswer(ctx)

	p.client.Memory().AppendMessage(ctx, &ai.Message{Role: ai.RoleUser, Content: retryInstruction})

	retryStream, err := p.client.StreamContinueConversation(ctx, client.WithOutputSchema(p.outputSchema))
	if err != nil {
		run.observeFailure(ctx, "Structured final answer request failed", err)
		failed := fmt.Errorf("failed to request structured final answer: %w", err)
		yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
		return
	}

	retryTurn, stopped, streamErr := forwardStreamEvents(iteration, retryStream, yield)
	if stopped {
		return
	}
	if streamErr != nil {
		run.observeFailure(ctx, "Structured final answer request failed", streamErr)
		failed := fmt.Errorf("failed to request structured final answer: %w", streamErr)
		yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
		return
	}

	retryResponse := retryTurn.response()
	executionOverview.AddResponse(retryResponse)
	executionOverview.IncludeUsage(retryResponse.Usage)
	p.rememberAssistantTurn(ctx, retryResponse)

	parsed, parseErr = parse.ParseStringAs[T](retryResponse.Content)
	if parseErr != nil {
		run.observeParseError(ctx, parseErr)
		run.observeFailure(ctx, "Final answer unparseable after retry", parseErr)
		failed := fmt.Errorf("failed to parse final answer after retry: %w", parseErr)
		yield(ReactEvent[T]{Type: ReactEventError, Iteration: iteration, Err: failed}, failed)
		return
	}

	executionOverview.EndExecution()
	run.observeSuccess(ctx)
	yield(ReactEvent[T]{Type: ReactEventFinalAnswer, Iteration: iteration, Content: retryResponse.Content, Result: &parsed}, nil)
}
