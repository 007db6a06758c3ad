// Package taskctx maintains the token-budgeted execution context threaded
// through one pipeline run. The context is a value: appends return a new
// context, so concurrent stage roles can never observe each other's writes.
package taskctx

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/smartfold/agentpipe/core/retrieval"
)

// DefaultBudget is the fallback token ceiling when none is configured.
const DefaultBudget = 4096

// summaryCap bounds the placeholder left behind when an old step output is
// summarized away during eviction.
const summaryCap = 160

// StepOutput is one prior agent output folded into the context.
type StepOutput struct {
	Role       string
	Output     string
	Summarized bool
}

// Context is the accumulated state for one run. The zero value is unusable;
// construct with New.
type Context struct {
	query    string
	snippets []retrieval.Snippet
	steps    []StepOutput
	tokens   int
	budget   int
}

// New creates a context seeded with the original task query. The query is
// load-bearing for every downstream agent and is never evicted.
func New(query string, budget int) Context {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return Context{
		query:  query,
		budget: budget,
		tokens: EstimateTokens(query),
	}
}

// Query returns the original task query.
func (c Context) Query() string { return c.query }

// Budget returns the configured token ceiling.
func (c Context) Budget() int { return c.budget }

// TokenCount returns the current token estimate. Never exceeds Budget after
// an append.
func (c Context) TokenCount() int { return c.tokens }

// Snippets returns the retained retrieved snippets, score descending.
func (c Context) Snippets() []retrieval.Snippet {
	out := make([]retrieval.Snippet, len(c.snippets))
	copy(out, c.snippets)
	return out
}

// Steps returns the retained agent outputs in execution order.
func (c Context) Steps() []StepOutput {
	out := make([]StepOutput, len(c.steps))
	copy(out, c.steps)
	return out
}

// LatestStep returns the most recent agent output, if any.
func (c Context) LatestStep() (StepOutput, bool) {
	if len(c.steps) == 0 {
		return StepOutput{}, false
	}
	return c.steps[len(c.steps)-1], true
}

// AppendSnippets returns a new context with the snippets folded in, evicting
// as needed to stay under budget.
func (c Context) AppendSnippets(snippets []retrieval.Snippet) Context {
	next := c.clone()
	next.snippets = append(next.snippets, snippets...)
	next.recount()
	next.evict()
	return next
}

// AppendStep returns a new context with one agent output folded in, evicting
// as needed to stay under budget.
func (c Context) AppendStep(role, output string) Context {
	next := c.clone()
	next.steps = append(next.steps, StepOutput{Role: role, Output: output})
	next.recount()
	next.evict()
	return next
}

func (c Context) clone() Context {
	next := Context{
		query:  c.query,
		budget: c.budget,
		tokens: c.tokens,
	}
	next.snippets = make([]retrieval.Snippet, len(c.snippets))
	copy(next.snippets, c.snippets)
	next.steps = make([]StepOutput, len(c.steps))
	copy(next.steps, c.steps)
	return next
}

func (c *Context) recount() {
	tokens := EstimateTokens(c.query)
	for _, s := range c.snippets {
		tokens += EstimateTokens(s.Text)
	}
	for _, s := range c.steps {
		tokens += EstimateTokens(s.Output)
	}
	c.tokens = tokens
}

// evict brings the context back under budget. Fixed, deterministic order:
//  1. drop the lowest-scoring snippets;
//  2. replace the oldest agent outputs with a short summary placeholder.
//
// The original query and the most recent agent output are never touched,
// except that an oversized latest output is truncated as a last resort.
func (c *Context) evict() {
	evictedSnippets := 0
	for c.tokens > c.budget && len(c.snippets) > 0 {
		idx := lowestScoreIndex(c.snippets)
		c.tokens -= EstimateTokens(c.snippets[idx].Text)
		c.snippets = append(c.snippets[:idx], c.snippets[idx+1:]...)
		evictedSnippets++
	}

	summarized := 0
	for i := 0; c.tokens > c.budget && i < len(c.steps)-1; i++ {
		if c.steps[i].Summarized {
			continue
		}
		before := EstimateTokens(c.steps[i].Output)
		c.steps[i] = summarize(c.steps[i])
		c.tokens += EstimateTokens(c.steps[i].Output) - before
		summarized++
	}

	// Last resort: the newest output alone does not fit. Keep it, truncated.
	if c.tokens > c.budget && len(c.steps) > 0 {
		last := &c.steps[len(c.steps)-1]
		overflow := c.tokens - c.budget
		keep := EstimateTokens(last.Output) - overflow
		if keep < 0 {
			keep = 0
		}
		before := EstimateTokens(last.Output)
		last.Output = truncateTokens(last.Output, keep)
		c.tokens += EstimateTokens(last.Output) - before
	}

	if evictedSnippets > 0 || summarized > 0 {
		slog.Debug("taskctx: evicted to stay under budget",
			"snippets_dropped", evictedSnippets,
			"steps_summarized", summarized,
			"tokens", c.tokens,
			"budget", c.budget)
	}
}

// lowestScoreIndex picks the victim snippet: the last entry among those with
// the minimum score, so ties evict newest-first and the result is stable.
func lowestScoreIndex(snippets []retrieval.Snippet) int {
	idx := 0
	for i := 1; i < len(snippets); i++ {
		if snippets[i].Score <= snippets[idx].Score {
			idx = i
		}
	}
	return idx
}

func summarize(step StepOutput) StepOutput {
	runes := []rune(step.Output)
	capped := summaryCap
	if len(runes) < capped {
		capped = len(runes)
	}
	return StepOutput{
		Role:       step.Role,
		Output:     fmt.Sprintf("[summarized %s output] %s", step.Role, string(runes[:capped])),
		Summarized: true,
	}
}

// PromptBlock renders the context into the prompt section handed to agents.
func (c Context) PromptBlock() string {
	var b strings.Builder

	b.WriteString("## Task\n\n")
	b.WriteString(c.query)
	b.WriteString("\n")

	if block := retrieval.FormatContext(c.snippets); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
	}

	if len(c.steps) > 0 {
		b.WriteString("\n## Prior Agent Outputs\n")
		for _, s := range c.steps {
			fmt.Fprintf(&b, "\n### %s\n\n%s\n", s.Role, s.Output)
		}
	}

	return b.String()
}
