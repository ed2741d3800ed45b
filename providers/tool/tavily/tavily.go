package tavily

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tavilygo "github.com/diverged/tavily-go"
	tavilymodels "github.com/diverged/tavily-go/models"

	"github.com/anshlambagit/agentgraph/core/cost"
	"github.com/anshlambagit/agentgraph/providers/tool"
)

const (
	defaultBaseURL = "https://api.tavily.com"
	envAPIKey      = "TAVILY_API_KEY"
	maxResults     = 20
	maxBodySize    = 10 * 1024 * 1024
	requestTimeout = 30 * time.Second
)

// baseURL overrides the Tavily API endpoint when non-empty.
// Tests point it at a local httptest server.
var baseURL string

// httpClient is shared across all Tavily requests. The timeout bounds each
// call since the tavily-go search functions do not accept a context.
var httpClient = &http.Client{Timeout: requestTimeout}

func endpoint() string {
	if baseURL != "" {
		return baseURL
	}
	return defaultBaseURL
}

// NewTavilySearchTool creates a new Tavily Search tool for web search.
// Returns summarized results optimized for LLM consumption.
func NewTavilySearchTool() *tool.Tool[SearchInput, SearchOutput] {
	return tool.NewTool[SearchInput, SearchOutput](
		"TavilySearch",
		Search,
		tool.WithDescription("Search the web using Tavily API, optimized for LLM and RAG applications. Provides high-quality, AI-optimized web search results with optional AI-generated answers. Works well for: current events, factual information, research queries, news, and general web searches. Returns a summary of top results with titles, URLs, and content snippets. Requires TAVILY_API_KEY environment variable."),
		tool.WithMetrics(cost.ToolMetrics{
			Amount:                  0.001, // ~1 credit per basic search
			Currency:                "USD",
			CostDescription:         "per basic search query (1 API credit)",
			Accuracy:                0.92, // High accuracy - AI-optimized search
			AverageDurationInMillis: 800,
		}),
	)
}

// NewTavilySearchAdvancedTool creates a new Tavily Search tool with detailed results.
// Returns complete structured data including all metadata.
func NewTavilySearchAdvancedTool() *tool.Tool[SearchInput, SearchAdvancedOutput] {
	return tool.NewTool[SearchInput, SearchAdvancedOutput](
		"TavilySearchAdvanced",
		SearchAdvanced,
		tool.WithDescription("Advanced web search using Tavily API with complete structured results. Returns detailed information including full content, relevance scores, images, and AI-generated answers. Ideal when you need comprehensive search data with all metadata. Use search_depth='advanced' for more thorough results. Requires TAVILY_API_KEY environment variable."),
		tool.WithMetrics(cost.ToolMetrics{
			Amount:                  0.002, // ~2 credits per advanced search
			Currency:                "USD",
			CostDescription:         "per advanced search query (2 API credits)",
			Accuracy:                0.94, // Very high accuracy with advanced depth
			AverageDurationInMillis: 1200,
		}),
	)
}

// Search performs a web search and returns a summarized result optimized for LLMs
func Search(ctx context.Context, input SearchInput) (SearchOutput, error) {
	apiResponse, err := fetchTavilySearch(ctx, input)
	if err != nil {
		return SearchOutput{}, err
	}

	// Convert to simplified output
	results := make([]SearchResult, 0, len(apiResponse.Results))
	var summaryParts []string

	if len(apiResponse.Results) > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("Found %d results:", len(apiResponse.Results)))
	}

	for i, r := range apiResponse.Results {
		if i >= 10 { // Limit summary to top 10
			break
		}

		result := SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		}
		results = append(results, result)

		summaryParts = append(summaryParts, fmt.Sprintf("\n%d. %s\n   URL: %s\n   %s",
			i+1, r.Title, r.URL, truncate(r.Content, 200)))
	}

	summary := strings.Join(summaryParts, "\n")
	if summary == "" {
		summary = fmt.Sprintf("No results found for '%s'. Try a different query or check your spelling.", input.Query)
	}

	return SearchOutput{
		Query:   input.Query,
		Answer:  apiResponse.Answer,
		Summary: summary,
		Results: results,
	}, nil
}

// SearchAdvanced performs a web search and returns complete structured results
func SearchAdvanced(ctx context.Context, input SearchInput) (SearchAdvancedOutput, error) {
	apiResponse, err := fetchTavilySearch(ctx, input)
	if err != nil {
		return SearchAdvancedOutput{}, err
	}

	// Convert results
	results := make([]SearchResultAdvanced, 0, len(apiResponse.Results))
	for _, r := range apiResponse.Results {
		results = append(results, SearchResultAdvanced{
			Title:      r.Title,
			URL:        r.URL,
			Content:    r.Content,
			RawContent: r.RawContent,
			Score:      r.Score,
		})
	}

	return SearchAdvancedOutput{
		Query:        input.Query,
		Answer:       apiResponse.Answer,
		Results:      results,
		Images:       apiResponse.Images,
		ResponseTime: apiResponse.ResponseTime,
	}, nil
}

// fetchTavilySearch performs the API call through the tavily-go client.
func fetchTavilySearch(ctx context.Context, input SearchInput) (*tavilymodels.SearchResponse, error) {
	apiKey := os.Getenv(envAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable is not set", envAPIKey)
	}

	// tavilygo.Search does not accept a context, so honor cancellation
	// up front and rely on the httpClient timeout for the call itself.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := tavilygo.NewClient(apiKey)
	client.BaseURL = endpoint()
	client.HTTPClient = httpClient

	depth := input.SearchDepth
	if depth == "" {
		depth = "basic"
	}

	maxRes := input.MaxResults
	if maxRes <= 0 {
		maxRes = 10
	}
	if maxRes > maxResults {
		maxRes = maxResults
	}

	request := tavilymodels.SearchRequest{
		Query:             input.Query,
		SearchDepth:       depth,
		MaxResults:        maxRes,
		IncludeDomains:    input.IncludeDomains,
		ExcludeDomains:    input.ExcludeDomains,
		IncludeAnswer:     input.IncludeAnswer,
		IncludeImages:     input.IncludeImages,
		IncludeRawContent: input.IncludeRawContent,
	}

	apiResponse, err := tavilygo.Search(client, request)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	return apiResponse, nil
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
