package cost

import (
	"fmt"
)

// OptimizationStrategy defines the strategy for tool selection when multiple tools
// are available. This guides the LLM on which metrics to prioritize.
type OptimizationStrategy string

const (
	// OptimizeForCost prioritizes tools with lower execution costs.
	// Use when budget constraints are the primary concern.
	OptimizeForCost OptimizationStrategy = "cost"

	// OptimizeForAccuracy prioritizes tools with higher accuracy/reliability scores.
	// Use when result quality is more important than cost or speed.
	OptimizeForAccuracy OptimizationStrategy = "accuracy"

	// OptimizeForSpeed prioritizes tools with faster execution times.
	// Use when response time is critical.
	OptimizeForSpeed OptimizationStrategy = "speed"

	// OptimizeBalanced seeks a balance between cost, accuracy, and speed.
	// Use when no single metric dominates the decision criteria.
	OptimizeBalanced OptimizationStrategy = "balanced"

	// OptimizeCostEffective prioritizes the best quality-to-cost ratio.
	// Use when you want good results at reasonable prices.
	OptimizeCostEffective OptimizationStrategy = "cost_effective"
)

// String returns the string representation of the optimization strategy.
func (s OptimizationStrategy) String() string {
	return string(s)
}

// ToolMetrics describes the cost and quality characteristics of a single tool
// execution. The cost can be expressed as a fixed amount per call or as a
// custom unit, and the quality metrics feed the optimization strategies.
//
// Example usage:
//
//	metrics := cost.ToolMetrics{
//	    Amount:                  0.001,
//	    Currency:                "USD",
//	    CostDescription:         "per API call",
//	    Accuracy:                0.95, // 95% accuracy
//	    AverageDurationInMillis: 1200,
//	}
type ToolMetrics struct {
	// Amount is the cost value for executing this tool once
	Amount float64 `json:"amount"`

	// Currency is the currency or unit for the cost (e.g., "USD", "EUR", "credits")
	Currency string `json:"currency,omitempty"`

	// CostDescription provides additional context about the cost
	// (e.g., "per API call", "per search query")
	CostDescription string `json:"cost_description,omitempty"`

	// Accuracy represents the accuracy/reliability score (0.0 to 1.0)
	// Higher values indicate more accurate/reliable results
	Accuracy float64 `json:"accuracy,omitempty"`

	// AverageDurationInMillis is the typical execution time in milliseconds
	// Lower values indicate faster execution
	AverageDurationInMillis int64 `json:"average_duration_ms,omitempty"`
}

// String returns a formatted string representation of the cost.
func (tm ToolMetrics) String() string {
	currency := tm.Currency
	if currency == "" {
		currency = "USD"
	}

	result := fmt.Sprintf("%.6f %s", tm.Amount, currency)

	if tm.CostDescription != "" {
		result = fmt.Sprintf("%s (%s)", result, tm.CostDescription)
	}

	return result
}

// MetricsString returns a formatted string with all quality metrics.
func (tm ToolMetrics) MetricsString() string {
	metrics := ""

	if tm.Accuracy > 0 {
		metrics += fmt.Sprintf("Accuracy: %.1f%%", tm.Accuracy*100)
	}

	if tm.AverageDurationInMillis > 0 {
		if metrics != "" {
			metrics += ", "
		}
		metrics += fmt.Sprintf("Avg Duration: %dms", tm.AverageDurationInMillis)
	}

	return metrics
}

// CostEffectivenessScore calculates a cost-effectiveness score.
// Higher scores indicate better value (accuracy per unit cost).
// Returns 0 if cost or accuracy is 0 to avoid division by zero and
// meaningless free-tool rankings.
func (tm ToolMetrics) CostEffectivenessScore() float64 {
	if tm.Amount == 0 || tm.Accuracy == 0 {
		return 0
	}

	return tm.Accuracy / tm.Amount
}

// CostTier defines an alternate per-million price that applies once the token
// count of a request reaches Threshold. Some providers (notably Gemini Pro
// models) charge a higher rate for prompts above a context-size cutoff, and the
// entire request is billed at the tier rate.
//
// Tiers must be sorted by ascending Threshold.
type CostTier struct {
	// Threshold is the minimum token count (inclusive) for this tier to apply
	Threshold int `json:"threshold"`

	// InputCostPerMillion is the input token price for this tier (0 = keep base rate)
	InputCostPerMillion float64 `json:"input_cost_per_million,omitempty"`

	// OutputCostPerMillion is the output token price for this tier (0 = keep base rate)
	OutputCostPerMillion float64 `json:"output_cost_per_million,omitempty"`
}

// ModelCost represents the pricing structure for a language model.
// Costs are expressed in USD per million tokens.
//
// Example usage:
//
//	modelCost := cost.ModelCost{
//	    InputCostPerMillion:       2.50,
//	    OutputCostPerMillion:      10.00,
//	    CachedInputCostPerMillion: 1.25,
//	    ReasoningCostPerMillion:   5.00,
//	}
type ModelCost struct {
	// InputCostPerMillion is the cost in USD per 1 million input tokens
	InputCostPerMillion float64 `json:"input_cost_per_million"`

	// OutputCostPerMillion is the cost in USD per 1 million output tokens
	OutputCostPerMillion float64 `json:"output_cost_per_million"`

	// CachedInputCostPerMillion is the cost in USD per 1 million cached input tokens
	// Some providers offer discounted rates for cached tokens (optional)
	CachedInputCostPerMillion float64 `json:"cached_input_cost_per_million,omitempty"`

	// ReasoningCostPerMillion is the cost in USD per 1 million reasoning tokens
	// Used by models like o1/o3 that perform chain-of-thought reasoning (optional)
	ReasoningCostPerMillion float64 `json:"reasoning_cost_per_million,omitempty"`

	// Tiers holds context-size pricing tiers, sorted by ascending Threshold (optional)
	Tiers []CostTier `json:"tiers,omitempty"`
}

// CalculateInputCost calculates the cost for the given number of input tokens.
func (mc ModelCost) CalculateInputCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.InputCostPerMillion
}

// CalculateOutputCost calculates the cost for the given number of output tokens.
func (mc ModelCost) CalculateOutputCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.OutputCostPerMillion
}

// CalculateInputCostWithTiers calculates the input cost, applying the highest
// pricing tier whose threshold the token count has reached. With no tiers
// configured it behaves exactly like CalculateInputCost.
func (mc ModelCost) CalculateInputCostWithTiers(tokens int) float64 {
	rate := mc.InputCostPerMillion

	for _, tier := range mc.Tiers {
		if tokens >= tier.Threshold && tier.InputCostPerMillion > 0 {
			rate = tier.InputCostPerMillion
		}
	}

	return (float64(tokens) / 1_000_000.0) * rate
}

// CalculateOutputCostWithTiers calculates the output cost, applying the highest
// pricing tier whose threshold the token count has reached. With no tiers
// configured it behaves exactly like CalculateOutputCost.
func (mc ModelCost) CalculateOutputCostWithTiers(tokens int) float64 {
	rate := mc.OutputCostPerMillion

	for _, tier := range mc.Tiers {
		if tokens >= tier.Threshold && tier.OutputCostPerMillion > 0 {
			rate = tier.OutputCostPerMillion
		}
	}

	return (float64(tokens) / 1_000_000.0) * rate
}

// CalculateCachedCost calculates the cost for the given number of cached tokens.
func (mc ModelCost) CalculateCachedCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.CachedInputCostPerMillion
}

// CalculateReasoningCost calculates the cost for the given number of reasoning tokens.
func (mc ModelCost) CalculateReasoningCost(tokens int) float64 {
	return (float64(tokens) / 1_000_000.0) * mc.ReasoningCostPerMillion
}

// CalculateTotalCost calculates the total cost for all token types.
func (mc ModelCost) CalculateTotalCost(inputTokens, outputTokens, cachedTokens, reasoningTokens int) float64 {
	total := mc.CalculateInputCost(inputTokens)
	total += mc.CalculateOutputCost(outputTokens)

	if mc.CachedInputCostPerMillion > 0 && cachedTokens > 0 {
		total += mc.CalculateCachedCost(cachedTokens)
	}

	if mc.ReasoningCostPerMillion > 0 && reasoningTokens > 0 {
		total += mc.CalculateReasoningCost(reasoningTokens)
	}

	return total
}

// String returns a formatted string representation of the model costs.
func (mc ModelCost) String() string {
	return fmt.Sprintf("Input: $%.6f/M, Output: $%.6f/M",
		mc.InputCostPerMillion, mc.OutputCostPerMillion)
}

// ComputeCost represents the infrastructure cost of the environment that runs
// an execution, such as serverless functions, VMs, or container runtimes.
//
// Example usage:
//
//	computeCost := cost.ComputeCost{
//	    CostPerSecond: 0.0000166667, // AWS Lambda 1GB
//	    Description:   "lambda-1gb",
//	}
type ComputeCost struct {
	// CostPerSecond is the cost in USD per second of execution time
	CostPerSecond float64 `json:"cost_per_second"`

	// Description identifies the compute environment (optional)
	Description string `json:"description,omitempty"`
}

// CalculateCost returns the compute cost for the given execution duration in seconds.
func (cc ComputeCost) CalculateCost(seconds float64) float64 {
	return cc.CostPerSecond * seconds
}

// String returns a formatted string representation of the compute cost.
func (cc ComputeCost) String() string {
	result := fmt.Sprintf("$%.8f/s", cc.CostPerSecond)

	if cc.Description != "" {
		result = fmt.Sprintf("%s (%s)", result, cc.Description)
	}

	return result
}

// CostSummary provides a detailed breakdown of all costs during an execution.
type CostSummary struct {
	// ToolCosts maps tool names to their accumulated execution costs
	ToolCosts map[string]float64 `json:"tool_costs,omitempty"`

	// ToolExecutionCount tracks how many times each tool was called
	ToolExecutionCount map[string]int `json:"tool_execution_count,omitempty"`

	// TotalToolCost is the sum of all tool execution costs
	TotalToolCost float64 `json:"total_tool_cost"`

	// ModelInputCost is the cost from input tokens
	ModelInputCost float64 `json:"model_input_cost"`

	// ModelOutputCost is the cost from output tokens
	ModelOutputCost float64 `json:"model_output_cost"`

	// ModelCachedCost is the cost from cached tokens
	ModelCachedCost float64 `json:"model_cached_cost"`

	// ModelReasoningCost is the cost from reasoning tokens
	ModelReasoningCost float64 `json:"model_reasoning_cost"`

	// TotalModelCost is the sum of all model costs
	TotalModelCost float64 `json:"total_model_cost"`

	// ExecutionDurationSeconds is the wall-clock execution time used for compute cost
	ExecutionDurationSeconds float64 `json:"execution_duration_seconds,omitempty"`

	// ComputeCost is the infrastructure cost for the execution duration
	ComputeCost float64 `json:"compute_cost"`

	// TotalCost is the grand total (tools + model + compute)
	TotalCost float64 `json:"total_cost"`

	// Currency is always "USD" for consistency
	Currency string `json:"currency"`
}
