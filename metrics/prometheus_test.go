package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/orchestrator"
	"github.com/smartfold/agentpipe/routing"
)

func TestExporter_RecordsAndServes(t *testing.T) {
	e := NewExporter(Config{})

	done := e.RunStarted()
	e.RecordRun(routing.CategoryCodeGeneration, orchestrator.StatusCompleted, 1200*time.Millisecond)
	e.RecordStage(agent.RoleCoder, agent.StatusOK, 800*time.Millisecond)
	e.RecordStage(agent.RoleReviewer, agent.StatusFailed, 100*time.Millisecond)
	e.RecordToolCall("code_executor", 50*time.Millisecond, true)
	e.RecordLLMUsage(string(agent.RoleCoder), 120, 340, 700*time.Millisecond)
	done()

	families, err := e.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["agentpipe_pipeline_runs_total"])
	assert.True(t, names["agentpipe_pipeline_agent_steps_total"])
	assert.True(t, names["agentpipe_pipeline_tool_calls_total"])
	assert.True(t, names["agentpipe_pipeline_llm_tokens_total"])

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentpipe_pipeline_runs_total")
}

func TestExporter_SharedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	e := NewExporter(Config{Registry: registry})
	assert.Same(t, registry, e.Registry())
}
