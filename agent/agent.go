package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartfold/agentpipe/agent/tools"
	"github.com/smartfold/agentpipe/core/llm"
	"github.com/smartfold/agentpipe/taskctx"
)

// Config bounds one agent's provider loop. All values come from the
// process configuration, never from the request.
type Config struct {
	// MaxToolDepth bounds the number of tool-call iterations before the
	// step is marked failed. Default 5.
	MaxToolDepth int
	// RetryAttempts is the per-provider-call attempt count. Default 3.
	RetryAttempts int
	// RetryBackoff is the initial backoff, doubled per retry. Default 200ms.
	RetryBackoff time.Duration
	// Temperature overrides the role default when > 0.
	Temperature float32
	// Tools names the registry tools offered to this role. Empty means none.
	Tools []string
}

func (c Config) withDefaults() Config {
	if c.MaxToolDepth <= 0 {
		c.MaxToolDepth = 5
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	return c
}

// Agent wraps one role: it builds the prompt, drives the tool-call loop
// against the provider, and returns a structured step result.
type Agent struct {
	role     Role
	client   llm.Client
	executor *tools.Executor
	registry *tools.Registry
	cfg      Config
}

// New creates an agent for role. The executor and registry may be nil for
// roles that use no tools.
func New(role Role, client llm.Client, registry *tools.Registry, executor *tools.Executor, cfg Config) (*Agent, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown agent role: %s", role)
	}
	if client == nil {
		return nil, fmt.Errorf("provider client cannot be nil")
	}
	return &Agent{
		role:     role,
		client:   client,
		executor: executor,
		registry: registry,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Role returns the agent's role.
func (a *Agent) Role() Role { return a.role }

// Run executes one step against the given context snapshot. It never
// returns an error: failures are encoded in the step result so the
// orchestrator can apply its criticality policy.
func (a *Agent) Run(ctx context.Context, ec taskctx.Context) StepResult {
	started := time.Now()

	prompt := ec.PromptBlock()
	result := StepResult{
		Role:         a.role,
		PromptDigest: digest(prompt),
		StartedAt:    started,
		Status:       StatusOK,
	}

	messages := []llm.Message{
		llm.SystemPrompt(SystemPrompt(a.role)),
		llm.UserMessage(prompt),
	}
	declarations := a.toolDeclarations()

	for depth := 0; depth < a.cfg.MaxToolDepth; depth++ {
		llmStart := time.Now()
		completion, err := a.completeWithRetry(ctx, llm.CompletionRequest{
			Messages:    messages,
			Tools:       declarations,
			Temperature: Temperature(a.role, a.cfg.Temperature),
		})
		result.LLMTime += time.Since(llmStart)
		if err != nil {
			result.Status = StatusFailed
			result.Err = err.Error()
			result.Duration = time.Since(started)
			slog.Error("agent: step failed",
				"role", a.role,
				"depth", depth,
				"error", err)
			return result
		}
		result.Usage.Add(completion.Usage)

		if !completion.IsToolRequest() {
			result.Output = completion.Content
			result.Duration = time.Since(started)
			slog.Debug("agent: step completed",
				"role", a.role,
				"tool_calls", len(result.ToolCalls),
				"duration_ms", result.Duration.Milliseconds())
			return result
		}

		// Execute one call per iteration so the depth limit bounds real work.
		call := completion.ToolCalls[0]
		record := a.invokeTool(ctx, call)
		result.ToolCalls = append(result.ToolCalls, record)

		messages = append(messages,
			llm.AssistantToolCalls(completion.Content, []llm.ToolCall{call}),
			llm.ToolMessage(call.ID, observationFor(record)),
		)

		if ctx.Err() != nil {
			result.Status = StatusFailed
			result.Err = ctx.Err().Error()
			result.Duration = time.Since(started)
			return result
		}
	}

	result.Status = StatusFailed
	result.Err = fmt.Sprintf("tool-call depth exceeded (%d)", a.cfg.MaxToolDepth)
	result.Duration = time.Since(started)
	slog.Warn("agent: tool-call depth exceeded",
		"role", a.role,
		"max_depth", a.cfg.MaxToolDepth)
	return result
}

func (a *Agent) toolDeclarations() []llm.ToolDescriptor {
	if a.registry == nil || len(a.cfg.Tools) == 0 {
		return nil
	}
	descs := a.registry.Descriptors(a.cfg.Tools)
	out := make([]llm.ToolDescriptor, len(descs))
	for i, d := range descs {
		out[i] = llm.ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Arguments.String(),
		}
	}
	return out
}

func (a *Agent) invokeTool(ctx context.Context, call llm.ToolCall) ToolCallRecord {
	record := ToolCallRecord{Tool: call.Name, Arguments: call.Arguments}
	if a.executor == nil {
		record.Err = "no tool executor configured"
		return record
	}

	res := a.executor.Invoke(ctx, call.Name, call.Arguments)
	record.Duration = res.Duration
	if res.OK() {
		record.Result = res.Output
	} else {
		record.Err = res.ErrMsg
		if record.Err == "" {
			record.Err = string(res.Err)
		}
	}
	return record
}

// observationFor renders the tool record back to the model. Failures become
// error observations the model can adapt to rather than loop aborts.
func observationFor(record ToolCallRecord) string {
	if record.Err != "" {
		return "tool error: " + record.Err
	}
	return record.Result
}

// completeWithRetry retries retryable provider failures with exponential
// backoff. InvalidRequest fails immediately; context cancellation stops the
// retry loop.
func (a *Agent) completeWithRetry(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	var lastErr error
	backoff := a.cfg.RetryBackoff

	for attempt := 1; attempt <= a.cfg.RetryAttempts; attempt++ {
		completion, err := a.client.Complete(ctx, req)
		if err == nil {
			return completion, nil
		}

		classified := llm.Classify(err)
		lastErr = classified
		if !classified.Retryable() {
			return nil, classified
		}
		if attempt == a.cfg.RetryAttempts {
			break
		}

		slog.Warn("agent: provider call failed, retrying",
			"role", a.role,
			"attempt", attempt,
			"kind", classified.Kind,
			"backoff_ms", backoff.Milliseconds())

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("provider failed after %d attempts: %w", a.cfg.RetryAttempts, lastErr)
}
