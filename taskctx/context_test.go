package taskctx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfold/agentpipe/core/retrieval"
)

func snippet(id string, score float32, tokens int) retrieval.Snippet {
	return retrieval.Snippet{SourceID: id, Score: score, Text: strings.Repeat("abcd", tokens)}
}

func TestNew_SeedsQuery(t *testing.T) {
	ctx := New("reverse a string", 1000)
	assert.Equal(t, "reverse a string", ctx.Query())
	assert.Equal(t, EstimateTokens("reverse a string"), ctx.TokenCount())
	assert.Equal(t, 1000, ctx.Budget())
}

func TestAppend_NeverExceedsBudget(t *testing.T) {
	ctx := New("q", 100)
	ctx = ctx.AppendSnippets([]retrieval.Snippet{
		snippet("a", 0.9, 60),
		snippet("b", 0.5, 60),
	})
	assert.LessOrEqual(t, ctx.TokenCount(), ctx.Budget())

	ctx = ctx.AppendStep("planner", strings.Repeat("step ", 100))
	assert.LessOrEqual(t, ctx.TokenCount(), ctx.Budget())
}

func TestEvict_DropsLowestScoreSnippetFirst(t *testing.T) {
	ctx := New("q", 150)
	ctx = ctx.AppendSnippets([]retrieval.Snippet{
		snippet("high", 0.9, 60),
		snippet("mid", 0.6, 60),
		snippet("low", 0.2, 60),
	})

	ids := make([]string, 0, 3)
	for _, s := range ctx.Snippets() {
		ids = append(ids, s.SourceID)
	}
	assert.NotContains(t, ids, "low")
	assert.Contains(t, ids, "high")
}

func TestEvict_SummarizesOldStepsBeforeDroppingThem(t *testing.T) {
	ctx := New("q", 300)
	ctx = ctx.AppendStep("planner", strings.Repeat("plan ", 150))
	ctx = ctx.AppendStep("coder", strings.Repeat("code ", 150))

	steps := ctx.Steps()
	require.Len(t, steps, 2, "steps are summarized, never dropped")
	assert.True(t, steps[0].Summarized)
	assert.Contains(t, steps[0].Output, "[summarized planner output]")
	assert.LessOrEqual(t, ctx.TokenCount(), ctx.Budget())
}

func TestEvict_NeverTouchesQueryOrLatestStep(t *testing.T) {
	ctx := New("the original question", 200)
	ctx = ctx.AppendSnippets([]retrieval.Snippet{snippet("s1", 0.8, 100)})
	ctx = ctx.AppendStep("planner", strings.Repeat("old ", 100))
	ctx = ctx.AppendStep("coder", strings.Repeat("new ", 40))

	assert.Equal(t, "the original question", ctx.Query())
	latest, ok := ctx.LatestStep()
	require.True(t, ok)
	assert.Equal(t, "coder", latest.Role)
	assert.False(t, latest.Summarized)
	assert.LessOrEqual(t, ctx.TokenCount(), ctx.Budget())
}

func TestEvict_SnippetsGoBeforeStepSummaries(t *testing.T) {
	ctx := New("q", 250)
	ctx = ctx.AppendStep("planner", strings.Repeat("plan ", 50)) // fits
	ctx = ctx.AppendStep("coder", strings.Repeat("code ", 50))   // fits

	// Now push it over with snippets; snippets must be the first victims.
	ctx = ctx.AppendSnippets([]retrieval.Snippet{
		snippet("a", 0.9, 80),
		snippet("b", 0.3, 80),
	})

	steps := ctx.Steps()
	require.Len(t, steps, 2)
	for _, s := range ctx.Snippets() {
		assert.NotEqual(t, "b", s.SourceID, "lowest-scoring snippet evicted first")
	}
	assert.LessOrEqual(t, ctx.TokenCount(), ctx.Budget())
}

func TestAppend_IsDeterministic(t *testing.T) {
	build := func() Context {
		ctx := New("query", 200)
		ctx = ctx.AppendSnippets([]retrieval.Snippet{
			snippet("a", 0.9, 30),
			snippet("b", 0.4, 30),
			snippet("c", 0.4, 30),
		})
		ctx = ctx.AppendStep("planner", strings.Repeat("x", 400))
		ctx = ctx.AppendStep("coder", "short answer")
		return ctx
	}

	first := build()
	second := build()
	assert.Equal(t, first.TokenCount(), second.TokenCount())
	assert.Equal(t, first.Snippets(), second.Snippets())
	assert.Equal(t, first.Steps(), second.Steps())
}

func TestAppend_DoesNotMutateReceiver(t *testing.T) {
	base := New("q", 1000)
	withStep := base.AppendStep("planner", "a plan")

	assert.Empty(t, base.Steps())
	require.Len(t, withStep.Steps(), 1)
}

func TestPromptBlock(t *testing.T) {
	ctx := New("write a parser", 2000)
	ctx = ctx.AppendSnippets([]retrieval.Snippet{{SourceID: "doc-9", Score: 0.7, Text: "grammar notes"}})
	ctx = ctx.AppendStep("planner", "1. tokenize 2. parse")

	block := ctx.PromptBlock()
	assert.Contains(t, block, "## Task")
	assert.Contains(t, block, "write a parser")
	assert.Contains(t, block, "## Retrieved Context")
	assert.Contains(t, block, "grammar notes")
	assert.Contains(t, block, "## Prior Agent Outputs")
	assert.Contains(t, block, "### planner")
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("abcd", 25)))
}

func TestTruncateTokens(t *testing.T) {
	assert.Empty(t, truncateTokens("anything", 0))
	assert.Equal(t, "abcd", truncateTokens("abcd", 10))
	out := truncateTokens(strings.Repeat("abcd", 100), 10)
	assert.LessOrEqual(t, EstimateTokens(out), 10)
}
