package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/agent/tools"
	"github.com/smartfold/agentpipe/core/llm"
	"github.com/smartfold/agentpipe/core/retrieval"
	"github.com/smartfold/agentpipe/routing"
	"github.com/smartfold/agentpipe/taskctx"
)

// Config is the externally supplied tuning surface of the pipeline.
type Config struct {
	// Plans maps each task category to its pipeline plan. Defaults to
	// DefaultPlans.
	Plans map[routing.Category]Plan
	// TokenBudget caps the execution context size. Defaults to
	// taskctx.DefaultBudget.
	TokenBudget int
	// RetrieveK is the number of reference snippets requested per run.
	RetrieveK int
	// StageTimeout bounds each agent step. Defaults to 60s.
	StageTimeout time.Duration
	// RunDeadline bounds the whole run, classification through
	// aggregation. Defaults to 5m.
	RunDeadline time.Duration
	// MaxParallelRoles caps concurrent roles within one stage.
	MaxParallelRoles int
	// RoleTools assigns tool names to roles. Defaults to DefaultRoleTools.
	RoleTools map[agent.Role][]string
	// Agent carries the per-step tuning shared by all roles.
	Agent agent.Config
}

func (c Config) withDefaults() Config {
	if c.Plans == nil {
		c.Plans = DefaultPlans()
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = taskctx.DefaultBudget
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = 5
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.RunDeadline <= 0 {
		c.RunDeadline = 5 * time.Minute
	}
	if c.MaxParallelRoles <= 0 {
		c.MaxParallelRoles = 4
	}
	if c.RoleTools == nil {
		c.RoleTools = DefaultRoleTools()
	}
	return c
}

// DefaultRoleTools returns the default role-to-tool assignment.
func DefaultRoleTools() map[agent.Role][]string {
	return map[agent.Role][]string{
		agent.RoleCoder:    {"code_executor", "read_file"},
		agent.RoleDebugger: {"code_executor", "read_file"},
		agent.RolePlanner:  {"web_search"},
	}
}

// PlanFor returns the plan for the category, falling back to the general
// plan for unknown or unmapped categories.
func (c Config) PlanFor(category routing.Category) Plan {
	if plan, ok := c.Plans[category]; ok {
		return plan
	}
	return c.Plans[routing.CategoryGeneral]
}

// Recorder observes run outcomes for metrics export. Implementations must
// be safe for concurrent use.
type Recorder interface {
	RecordRun(category routing.Category, status RunStatus, duration time.Duration)
	RecordStage(role agent.Role, status agent.StepStatus, duration time.Duration)
	RecordToolCall(toolName string, duration time.Duration, success bool)
	RecordLLMUsage(role string, promptTokens, completionTokens int, latency time.Duration)
}

// Orchestrator coordinates classification, retrieval, agent execution and
// aggregation for one request at a time. It is safe for concurrent runs:
// all per-run state lives on the stack of Run.
type Orchestrator struct {
	classifier *routing.Classifier
	retriever  retrieval.Retriever
	client     llm.Client
	registry   *tools.Registry
	executor   *tools.Executor
	recorder   Recorder
	cfg        Config
}

// New creates an orchestrator. The retriever and recorder are optional;
// everything else is required.
func New(client llm.Client, classifier *routing.Classifier, retriever retrieval.Retriever, registry *tools.Registry, executor *tools.Executor, cfg Config) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("orchestrator requires an llm client")
	}
	if classifier == nil {
		return nil, fmt.Errorf("orchestrator requires a classifier")
	}
	cfg = cfg.withDefaults()
	for category, plan := range cfg.Plans {
		if err := plan.Validate(); err != nil {
			return nil, fmt.Errorf("invalid plan for %s: %w", category, err)
		}
	}
	if _, ok := cfg.Plans[routing.CategoryGeneral]; !ok {
		return nil, fmt.Errorf("plan mapping must cover the general category")
	}
	return &Orchestrator{
		classifier: classifier,
		retriever:  retrieval.Resilient(retriever),
		client:     client,
		registry:   registry,
		executor:   executor,
		cfg:        cfg,
	}, nil
}

// SetRecorder attaches a metrics recorder. Call before serving traffic.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// Run executes the full pipeline for one request. The returned result is
// always non-nil for a valid request; pipeline failures are reported via
// RunResult.Status, not the error return.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("empty request message")
	}

	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunDeadline)
	defer cancel()

	result := &RunResult{
		ID:     shortuuid.New(),
		Status: StatusPending,
	}
	defer func() {
		result.ExecutionTime = time.Since(started).Seconds()
		if o.recorder != nil {
			o.recorder.RecordRun(result.Category, result.Status, time.Since(started))
		}
	}()

	slog.Info("orchestrator: run started",
		"run_id", result.ID,
		"use_rag", req.UseRAG,
		"message_length", len(req.Message))

	// PENDING -> CLASSIFIED. The category is fixed for the rest of the run.
	task := Task{
		ID:        result.ID,
		RawQuery:  req.Message,
		Category:  o.classifier.Classify(runCtx, req.Message),
		CreatedAt: started,
	}
	result.Category = task.Category
	result.Status = StatusClassified

	// CLASSIFIED -> RETRIEVED. Retrieval degrades to an empty context on
	// backend failure; only the caller's use_rag flag can skip it.
	ec := taskctx.New(req.Message, o.cfg.TokenBudget)
	if req.UseRAG {
		snippets, _ := o.retriever.Search(runCtx, req.Message, o.cfg.RetrieveK)
		ec = ec.AppendSnippets(snippets)
		result.Sources = sourcesFor(snippets)
		slog.Debug("orchestrator: context retrieved",
			"run_id", result.ID,
			"snippets", len(snippets))
	}
	result.Status = StatusRetrieved

	plan := o.cfg.PlanFor(task.Category)
	slog.Info("orchestrator: plan selected",
		"run_id", result.ID,
		"category", task.Category,
		"stages", len(plan.Stages))

	// EXECUTING: stages run in order, roles within a stage concurrently
	// against the same context snapshot.
	result.Status = StatusExecuting
	for i, stage := range plan.Stages {
		steps := o.runStage(runCtx, stage, ec, req.Temperature)
		result.Trace = append(result.Trace, steps...)

		for _, step := range steps {
			if o.recorder != nil {
				o.recorder.RecordStage(step.Role, step.Status, step.Duration)
				for _, call := range step.ToolCalls {
					o.recorder.RecordToolCall(call.Tool, call.Duration, call.Err == "")
				}
				if step.Usage.TotalTokens > 0 {
					o.recorder.RecordLLMUsage(string(step.Role),
						step.Usage.PromptTokens, step.Usage.CompletionTokens, step.LLMTime)
				}
			}
			if step.OK() {
				ec = ec.AppendStep(string(step.Role), step.Output)
				continue
			}
			if step.Role.Critical() {
				result.Status = StatusFailed
				result.Err = fmt.Sprintf("critical role %s failed: %s", step.Role, step.Err)
				slog.Error("orchestrator: run failed",
					"run_id", result.ID,
					"stage", i,
					"role", step.Role,
					"error", step.Err)
				return result, nil
			}
			slog.Warn("orchestrator: optional role failed, continuing",
				"run_id", result.ID,
				"stage", i,
				"role", step.Role,
				"error", step.Err)
		}

		if err := runCtx.Err(); err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Sprintf("run deadline exceeded after stage %d: %v", i, err)
			slog.Error("orchestrator: run deadline exceeded",
				"run_id", result.ID,
				"stage", i)
			return result, nil
		}
	}

	// AGGREGATED -> COMPLETED.
	result.Status = StatusAggregated
	result.Response = synthesizeResponse(result.Trace)
	if result.Response == "" {
		result.Status = StatusFailed
		result.Err = "no agent step produced output"
		slog.Error("orchestrator: run produced no output", "run_id", result.ID)
		return result, nil
	}
	result.Status = StatusCompleted

	slog.Info("orchestrator: run completed",
		"run_id", result.ID,
		"category", task.Category,
		"steps", len(result.Trace),
		"duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

// runStage executes every role of the stage against the same context
// snapshot and returns the step results ordered by role name.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, ec taskctx.Context, temperature float32) []agent.StepResult {
	roles := stage.sortedRoles()
	if len(roles) == 1 {
		return []agent.StepResult{o.runRole(ctx, roles[0], ec, temperature)}
	}

	results := make([]agent.StepResult, len(roles))
	sem := make(chan struct{}, o.cfg.MaxParallelRoles)
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func(idx int, r agent.Role) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx] = o.runRole(ctx, r, ec, temperature)
			case <-ctx.Done():
				results[idx] = agent.StepResult{
					Role:      r,
					StartedAt: time.Now(),
					Status:    agent.StatusFailed,
					Err:       ctx.Err().Error(),
				}
			}
		}(i, role)
	}
	wg.Wait()
	return results
}

// runRole runs one agent step under the stage timeout.
func (o *Orchestrator) runRole(ctx context.Context, role agent.Role, ec taskctx.Context, temperature float32) agent.StepResult {
	a, err := o.newAgent(role, temperature)
	if err != nil {
		return agent.StepResult{
			Role:      role,
			StartedAt: time.Now(),
			Status:    agent.StatusFailed,
			Err:       err.Error(),
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	return a.Run(stageCtx, ec)
}

// newAgent builds the agent for one step. Agents are cheap value wrappers
// around the shared client and registry, so one per step keeps the
// orchestrator free of per-request state.
func (o *Orchestrator) newAgent(role agent.Role, temperature float32) (*agent.Agent, error) {
	cfg := o.cfg.Agent
	cfg.Temperature = agent.Temperature(role, temperature)
	cfg.Tools = o.cfg.RoleTools[role]
	return agent.New(role, o.client, o.registry, o.executor, cfg)
}

// sectionTitles names the response section contributed by each role.
var sectionTitles = map[agent.Role]string{
	agent.RoleCoder:     "Implementation",
	agent.RoleDebugger:  "Debugging Analysis",
	agent.RoleOptimizer: "Optimization Suggestions",
	agent.RoleReviewer:  "Code Review",
	agent.RolePlanner:   "Execution Plan",
}

// responseOrder lists roles by display priority: primary output first,
// review notes next, the plan last.
var responseOrder = []agent.Role{
	agent.RoleCoder,
	agent.RoleDebugger,
	agent.RoleOptimizer,
	agent.RoleReviewer,
	agent.RolePlanner,
}

// synthesizeResponse builds the final response text from the trace. A
// single successful step is returned verbatim; multiple steps are combined
// into titled markdown sections.
func synthesizeResponse(trace []agent.StepResult) string {
	latest := make(map[agent.Role]string)
	count := 0
	var last string
	for _, step := range trace {
		if !step.OK() || step.Output == "" {
			continue
		}
		if _, seen := latest[step.Role]; !seen {
			count++
		}
		latest[step.Role] = step.Output
		last = step.Output
	}
	if count == 0 {
		return ""
	}
	if count == 1 {
		return last
	}

	var b strings.Builder
	for _, role := range responseOrder {
		output, ok := latest[role]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", sectionTitles[role], output)
	}
	return b.String()
}
