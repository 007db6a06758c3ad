// Package retrieval provides reference-snippet retrieval for the pipeline.
// The backing vector store is an external collaborator; the pipeline only
// depends on the Retriever interface and degrades to an empty context when
// the store is unavailable.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Snippet is one ranked piece of retrieved reference material.
// Read-only once produced.
type Snippet struct {
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
	Text     string  `json:"text"`
}

// Retriever returns the top-k reference snippets for a query, sorted by
// score descending.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// Resilient wraps a Retriever so that failures never propagate: errors are
// logged and an empty result is returned, letting the pipeline run without
// retrieved context.
func Resilient(r Retriever) Retriever {
	return &resilientRetriever{inner: r}
}

type resilientRetriever struct {
	inner Retriever
}

func (r *resilientRetriever) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if r.inner == nil || k <= 0 {
		return nil, nil
	}

	snippets, err := r.inner.Search(ctx, query, k)
	if err != nil {
		slog.Warn("retrieval: backend unavailable, continuing without context",
			"error", err,
			"query_length", len(query))
		return nil, nil
	}

	// Defend the ordering contract even against misbehaving backends.
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets, nil
}

// FormatContext renders snippets into a prompt section, highest score first.
func FormatContext(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Retrieved Context\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "\n### Source %d: %s\nRelevance: %.2f\n\n%s\n\n---\n", i+1, s.SourceID, s.Score, s.Text)
	}
	return b.String()
}
