package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrKind classifies tool invocation failures. They are reported back to
// the model as observations, never as agent-loop aborts.
type ErrKind string

const (
	ErrNone             ErrKind = ""
	ErrUnknownTool      ErrKind = "unknown_tool"
	ErrInvalidArguments ErrKind = "invalid_arguments"
	ErrTimeout          ErrKind = "timeout"
	ErrCancelled        ErrKind = "cancelled"
	ErrExecutionFailed  ErrKind = "execution_failed"
)

// Result is the outcome of one tool invocation.
type Result struct {
	Output   string
	Err      ErrKind
	ErrMsg   string
	Duration time.Duration
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Err == ErrNone }

// Observation renders the result as the text handed back to the model, so a
// failed call becomes something the model can adapt to.
func (r Result) Observation() string {
	if r.OK() {
		return r.Output
	}
	return "tool error (" + string(r.Err) + "): " + r.ErrMsg
}

// DefaultTimeout bounds tool invocations whose descriptor does not set one.
const DefaultTimeout = 30 * time.Second

// Executor validates and dispatches tool-invocation requests. It is
// stateless between calls.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Invoke validates rawArgs against the tool's schema and runs the tool
// under its per-call timeout. Schema mismatches never reach the tool.
func (e *Executor) Invoke(ctx context.Context, name, rawArgs string) Result {
	start := time.Now()

	tool, ok := e.registry.Get(name)
	if !ok {
		return Result{Err: ErrUnknownTool, ErrMsg: "no such tool: " + name, Duration: time.Since(start)}
	}

	desc := tool.Descriptor()
	args, err := desc.Arguments.Validate(rawArgs)
	if err != nil {
		slog.Debug("tools: argument validation failed", "tool", name, "error", err)
		return Result{Err: ErrInvalidArguments, ErrMsg: err.Error(), Duration: time.Since(start)}
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := tool.Run(callCtx, args)
	duration := time.Since(start)
	if err != nil {
		kind := ErrExecutionFailed
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = ErrTimeout
		case errors.Is(err, context.Canceled):
			kind = ErrCancelled
		}
		slog.Warn("tools: invocation failed",
			"tool", name,
			"kind", kind,
			"error", err,
			"duration_ms", duration.Milliseconds())
		return Result{Err: kind, ErrMsg: err.Error(), Duration: duration}
	}

	slog.Debug("tools: invocation completed",
		"tool", name,
		"output_length", len(output),
		"duration_ms", duration.Milliseconds())
	return Result{Output: output, Duration: duration}
}
