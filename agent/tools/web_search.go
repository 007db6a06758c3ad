package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SearchBackend is the external web-search collaborator.
type SearchBackend interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// SearchHit is one web search result.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

const defaultSearchResults = 5

// WebSearchTool lets the model look up reference material on the web.
type WebSearchTool struct {
	backend SearchBackend
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(backend SearchBackend) (*WebSearchTool, error) {
	if backend == nil {
		return nil, fmt.Errorf("search backend cannot be nil")
	}
	return &WebSearchTool{backend: backend}, nil
}

func (t *WebSearchTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "web_search",
		Description: "Search the web for information and return titles, URLs and snippets.",
		Timeout:     10 * time.Second,
		Arguments: Schema{
			Type: TypeObject,
			Properties: PropertyMap{
				"query": {
					Type:        TypeString,
					Description: "The search query",
				},
				"max_results": {
					Type:        TypeInteger,
					Description: "Maximum number of results, default 5",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *WebSearchTool) Run(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is empty")
	}

	maxResults := defaultSearchResults
	if v, ok := args["max_results"].(float64); ok && int(v) > 0 {
		maxResults = int(v)
	}

	hits, err := t.backend.Search(ctx, query, maxResults)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		return "no results", nil
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, hit.Title, hit.URL, hit.Snippet)
	}
	return strings.TrimSpace(b.String()), nil
}
