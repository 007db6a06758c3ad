package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGoBackend implements SearchBackend against the DuckDuckGo
// instant answer API. No API key required.
type DuckDuckGoBackend struct {
	httpClient *http.Client
	endpoint   string
}

// NewDuckDuckGoBackend creates the default web-search backend.
func NewDuckDuckGoBackend() *DuckDuckGoBackend {
	return &DuckDuckGoBackend{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   duckDuckGoEndpoint,
	}
}

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var hits []SearchHit
	if body.AbstractText != "" {
		hits = append(hits, SearchHit{
			Title:   body.Heading,
			URL:     body.AbstractURL,
			Snippet: body.AbstractText,
		})
	}
	for _, topic := range body.RelatedTopics {
		if len(hits) >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		hits = append(hits, SearchHit{
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}
