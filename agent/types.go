// Package agent implements the role-specific reasoning steps of the
// pipeline. Each agent wraps one role, builds its prompt from the shared
// execution context, and drives the provider tool-call loop to a final
// answer.
package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/smartfold/agentpipe/core/llm"
)

// Role identifies one specialized agent.
type Role string

const (
	RolePlanner   Role = "planner"
	RoleCoder     Role = "coder"
	RoleReviewer  Role = "reviewer"
	RoleDebugger  Role = "debugger"
	RoleOptimizer Role = "optimizer"
)

// KnownRoles is the closed set of roles, sorted by name.
func KnownRoles() []Role {
	roles := []Role{RolePlanner, RoleCoder, RoleReviewer, RoleDebugger, RoleOptimizer}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlanner, RoleCoder, RoleReviewer, RoleDebugger, RoleOptimizer:
		return true
	}
	return false
}

// Critical reports whether a failure of this role aborts the whole run.
// Planner and Coder outputs are load-bearing; the rest are advisory.
func (r Role) Critical() bool {
	return r == RolePlanner || r == RoleCoder
}

// StepStatus is the outcome of one agent step.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// ToolCallRecord is one tool invocation made during a step.
type ToolCallRecord struct {
	Tool      string        `json:"tool_name"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result,omitempty"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// StepResult is the structured outcome of running one agent.
type StepResult struct {
	Role         Role             `json:"agent_role"`
	PromptDigest string           `json:"input_prompt_digest"`
	Output       string           `json:"output_text"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
	Usage        llm.Usage        `json:"token_usage"`
	LLMTime      time.Duration    `json:"llm_time"`
	Status       StepStatus       `json:"status"`
	Err          string           `json:"error,omitempty"`
}

// OK reports whether the step produced a usable output.
func (s StepResult) OK() bool { return s.Status == StatusOK }

// digest returns the sha256 hex of a prompt, recorded in the trace instead
// of the full prompt text.
func digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
