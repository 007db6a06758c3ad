package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDuckGoBackend_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang slices", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Heading": "Go slices",
			"AbstractText": "A slice is a view into an array.",
			"AbstractURL": "https://example.org/slices",
			"RelatedTopics": [
				{"Text": "Slice internals", "FirstURL": "https://example.org/internals"},
				{"Text": "", "FirstURL": "https://example.org/empty"},
				{"Text": "Append semantics", "FirstURL": "https://example.org/append"}
			]
		}`))
	}))
	defer srv.Close()

	backend := &DuckDuckGoBackend{
		httpClient: srv.Client(),
		endpoint:   srv.URL,
	}

	hits, err := backend.Search(context.Background(), "golang slices", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Go slices", hits[0].Title)
	assert.Equal(t, "Slice internals", hits[1].Title)
}

func TestDuckDuckGoBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend := &DuckDuckGoBackend{
		httpClient: srv.Client(),
		endpoint:   srv.URL,
	}

	_, err := backend.Search(context.Background(), "anything", 3)
	require.Error(t, err)
}

func TestWebSearchTool_Run(t *testing.T) {
	backend := stubBackend{hits: []SearchHit{
		{Title: "T1", URL: "https://example.org/1", Snippet: "first"},
	}}
	tool, err := NewWebSearchTool(backend)
	require.NoError(t, err)

	out, err := tool.Run(context.Background(), map[string]any{"query": "anything"})
	require.NoError(t, err)
	assert.Contains(t, out, "T1")
	assert.Contains(t, out, "https://example.org/1")

	_, err = tool.Run(context.Background(), map[string]any{"query": "  "})
	require.Error(t, err)
}

type stubBackend struct {
	hits []SearchHit
}

func (s stubBackend) Search(_ context.Context, _ string, max int) ([]SearchHit, error) {
	if len(s.hits) > max {
		return s.hits[:max], nil
	}
	return s.hits, nil
}

func TestWebSearchTool_DescriptorTimeout(t *testing.T) {
	tool, err := NewWebSearchTool(stubBackend{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, tool.Descriptor().Timeout)
}
