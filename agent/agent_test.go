package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfold/agentpipe/agent/tools"
	"github.com/smartfold/agentpipe/core/llm"
	"github.com/smartfold/agentpipe/taskctx"
)

// scriptedClient returns canned completions (or errors) in order, then
// repeats the last entry.
type scriptedClient struct {
	mu      sync.Mutex
	script  []scriptEntry
	calls   int
	lastReq llm.CompletionRequest
}

type scriptEntry struct {
	completion *llm.Completion
	err        error
}

func (c *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReq = req
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	entry := c.script[idx]
	return entry.completion, entry.err
}

func (c *scriptedClient) Warmup(context.Context) {}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func final(text string) scriptEntry {
	return scriptEntry{completion: &llm.Completion{
		Content: text,
		Usage:   llm.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}}
}

func toolRequest(id, name, args string) scriptEntry {
	return scriptEntry{completion: &llm.Completion{
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
		Usage:     llm.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}}
}

func failure(kind llm.Kind) scriptEntry {
	return scriptEntry{err: &llm.Error{Kind: kind, Err: assert.AnError}}
}

// recorderTool echoes its text argument and counts runs.
type recorderTool struct {
	mu   sync.Mutex
	runs int
}

func (t *recorderTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "code_executor",
		Description: "run code",
		Timeout:     time.Second,
		Arguments: tools.Schema{
			Type:       tools.TypeObject,
			Properties: tools.PropertyMap{"code": {Type: tools.TypeString}},
			Required:   []string{"code"},
		},
	}
}

func (t *recorderTool) Run(_ context.Context, args map[string]any) (string, error) {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
	return "stdout: " + args["code"].(string), nil
}

func newTestAgent(t *testing.T, role Role, client llm.Client, cfg Config) *Agent {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&recorderTool{}))
	a, err := New(role, client, registry, tools.NewExecutor(registry), cfg)
	require.NoError(t, err)
	return a
}

func TestRun_FinalAnswer(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{final("the answer")}}
	a := newTestAgent(t, RolePlanner, client, Config{})

	result := a.Run(context.Background(), taskctx.New("plan something", 2048))
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "the answer", result.Output)
	assert.Equal(t, RolePlanner, result.Role)
	assert.NotEmpty(t, result.PromptDigest)
	assert.Empty(t, result.ToolCalls)
}

func TestRun_ToolLoop(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		toolRequest("call_1", "code_executor", `{"code":"print(1)"}`),
		final("done, output was 1"),
	}}
	a := newTestAgent(t, RoleCoder, client, Config{Tools: []string{"code_executor"}})

	result := a.Run(context.Background(), taskctx.New("write code", 2048))
	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "code_executor", result.ToolCalls[0].Tool)
	assert.Equal(t, "stdout: print(1)", result.ToolCalls[0].Result)
	assert.Equal(t, "done, output was 1", result.Output)
	// Usage sums both provider calls of the loop.
	assert.Equal(t, 60, result.Usage.TotalTokens)
	assert.Equal(t, 40, result.Usage.PromptTokens)
	assert.LessOrEqual(t, result.LLMTime, result.Duration)
}

func TestRun_ToolErrorIsObservedNotFatal(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		toolRequest("call_1", "code_executor", `{"wrong":"args"}`),
		final("recovered"),
	}}
	a := newTestAgent(t, RoleCoder, client, Config{Tools: []string{"code_executor"}})

	result := a.Run(context.Background(), taskctx.New("write code", 2048))
	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.ToolCalls, 1)
	assert.NotEmpty(t, result.ToolCalls[0].Err)
	assert.Equal(t, "recovered", result.Output)
}

func TestRun_DepthLimitBoundsLoop(t *testing.T) {
	// The model never stops asking for tools.
	client := &scriptedClient{script: []scriptEntry{
		toolRequest("call_x", "code_executor", `{"code":"loop"}`),
	}}
	a := newTestAgent(t, RoleCoder, client, Config{MaxToolDepth: 3, Tools: []string{"code_executor"}})

	result := a.Run(context.Background(), taskctx.New("write code", 2048))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Err, "depth exceeded")
	assert.Len(t, result.ToolCalls, 3, "partial trace is preserved")
}

func TestRun_RetriesRetryableThenSucceeds(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		failure(llm.KindRateLimited),
		failure(llm.KindRateLimited),
		final("third time lucky"),
	}}
	a := newTestAgent(t, RolePlanner, client, Config{RetryBackoff: time.Millisecond})

	result := a.Run(context.Background(), taskctx.New("plan", 2048))
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "third time lucky", result.Output)
	assert.Equal(t, 3, client.callCount())
}

func TestRun_InvalidRequestFailsImmediately(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{failure(llm.KindInvalidRequest)}}
	a := newTestAgent(t, RoleCoder, client, Config{RetryBackoff: time.Millisecond})

	result := a.Run(context.Background(), taskctx.New("code", 2048))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, client.callCount(), "fatal errors are not retried")
}

func TestRun_RetriesExhausted(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{failure(llm.KindUnavailable)}}
	a := newTestAgent(t, RolePlanner, client, Config{RetryAttempts: 2, RetryBackoff: time.Millisecond})

	result := a.Run(context.Background(), taskctx.New("plan", 2048))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 2, client.callCount())
	assert.Contains(t, result.Err, "after 2 attempts")
}

func TestRun_OffersDeclaredToolsOnly(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{final("ok")}}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&recorderTool{}))

	withTools, err := New(RoleCoder, client, registry, tools.NewExecutor(registry), Config{Tools: []string{"code_executor"}})
	require.NoError(t, err)
	withTools.Run(context.Background(), taskctx.New("q", 2048))
	assert.Len(t, client.lastReq.Tools, 1)

	noTools, err := New(RoleReviewer, client, registry, tools.NewExecutor(registry), Config{})
	require.NoError(t, err)
	noTools.Run(context.Background(), taskctx.New("q", 2048))
	assert.Empty(t, client.lastReq.Tools)
}

func TestTemperature(t *testing.T) {
	assert.InDelta(t, 0.3, Temperature(RoleCoder, 0), 0.001)
	assert.InDelta(t, 0.7, Temperature(RolePlanner, 0), 0.001)
	assert.InDelta(t, 0.9, Temperature(RoleCoder, 0.9), 0.001)
}

func TestNew_Validation(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{final("x")}}
	_, err := New(Role("chef"), client, nil, nil, Config{})
	require.Error(t, err)

	_, err = New(RoleCoder, nil, nil, nil, Config{})
	require.Error(t, err)
}
