package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sandbox executes untrusted code. The real isolation boundary is an
// external collaborator; implementations here only shape the request.
type Sandbox interface {
	// Execute runs code and returns combined stdout. A non-nil error carries
	// stderr or the failure reason.
	Execute(ctx context.Context, language, code string) (string, error)
}

// CodeExecutorTool lets the model run a snippet and observe its output.
type CodeExecutorTool struct {
	sandbox Sandbox
	timeout time.Duration
}

// NewCodeExecutorTool creates the code_executor tool.
func NewCodeExecutorTool(sandbox Sandbox, timeout time.Duration) (*CodeExecutorTool, error) {
	if sandbox == nil {
		return nil, fmt.Errorf("sandbox cannot be nil")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CodeExecutorTool{sandbox: sandbox, timeout: timeout}, nil
}

func (t *CodeExecutorTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "code_executor",
		Description: "Execute a code snippet in a sandboxed interpreter and return its stdout. Use this to verify code before presenting it.",
		Timeout:     t.timeout,
		Arguments: Schema{
			Type: TypeObject,
			Properties: PropertyMap{
				"code": {
					Type:        TypeString,
					Description: "The code to execute",
				},
				"language": {
					Type:        TypeString,
					Description: "Interpreter language: python (default) or bash",
				},
			},
			Required: []string{"code"},
		},
	}
}

func (t *CodeExecutorTool) Run(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("code is empty")
	}
	language, _ := args["language"].(string)
	if language == "" {
		language = "python"
	}
	return t.sandbox.Execute(ctx, language, code)
}

// ExecSandbox shells out to a local interpreter. It is a development
// stand-in for the real sandboxed execution engine and relies on ctx for
// cooperative cancellation.
type ExecSandbox struct{}

func (ExecSandbox) Execute(ctx context.Context, language, code string) (string, error) {
	var cmd *exec.Cmd
	switch language {
	case "python":
		cmd = exec.CommandContext(ctx, "python3", "-c", code)
	case "bash":
		cmd = exec.CommandContext(ctx, "bash", "-c", code)
	default:
		return "", fmt.Errorf("unsupported language: %s", language)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("execution failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
