// Package orchestrator drives the multi-agent pipeline: classify the
// request, retrieve reference context, run the planned agent stages, and
// fold every step back into the shared execution context.
package orchestrator

import (
	"time"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/core/retrieval"
	"github.com/smartfold/agentpipe/routing"
)

// Request is the inbound task request from the API boundary.
type Request struct {
	Message     string  `json:"message"`
	UseRAG      bool    `json:"use_rag"`
	Temperature float32 `json:"temperature,omitempty"`
}

// RunStatus tracks a run through the pipeline state machine.
type RunStatus string

const (
	StatusPending    RunStatus = "PENDING"
	StatusClassified RunStatus = "CLASSIFIED"
	StatusRetrieved  RunStatus = "RETRIEVED"
	StatusExecuting  RunStatus = "EXECUTING"
	StatusAggregated RunStatus = "AGGREGATED"
	StatusCompleted  RunStatus = "COMPLETED"
	StatusFailed     RunStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the classified form of a request. Immutable once created.
type Task struct {
	ID        string           `json:"id"`
	RawQuery  string           `json:"raw_query"`
	Category  routing.Category `json:"category"`
	CreatedAt time.Time        `json:"created_at"`
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID       string             `json:"id"`
	Status   RunStatus          `json:"status"`
	Category routing.Category   `json:"category"`
	Response string             `json:"response"`
	Trace    []agent.StepResult `json:"agent_trace"`
	// Sources previews the retrieved snippets that informed the run.
	Sources []Source `json:"sources,omitempty"`
	// ExecutionTime is the wall-clock duration of the run in seconds.
	ExecutionTime float64 `json:"execution_time"`
	// Err describes the failure when Status is FAILED.
	Err string `json:"error,omitempty"`
}

// Source is a preview of one retrieved reference snippet.
type Source struct {
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
	Preview  string  `json:"preview"`
}

// sourcePreviewLen caps the preview text carried back to the caller.
const sourcePreviewLen = 200

func sourcesFor(snippets []retrieval.Snippet) []Source {
	if len(snippets) == 0 {
		return nil
	}
	sources := make([]Source, len(snippets))
	for i, s := range snippets {
		preview := s.Text
		if runes := []rune(preview); len(runes) > sourcePreviewLen {
			preview = string(runes[:sourcePreviewLen]) + "..."
		}
		sources[i] = Source{SourceID: s.SourceID, Score: s.Score, Preview: preview}
	}
	return sources
}
