package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfold/agentpipe/metrics"
	"github.com/smartfold/agentpipe/orchestrator"
	"github.com/smartfold/agentpipe/routing"
)

type stubRunner struct {
	result  *orchestrator.RunResult
	err     error
	lastReq orchestrator.Request
}

func (r *stubRunner) Run(_ context.Context, req orchestrator.Request) (*orchestrator.RunResult, error) {
	r.lastReq = req
	return r.result, r.err
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	runner := &stubRunner{result: &orchestrator.RunResult{
		ID:       "run-1",
		Status:   orchestrator.StatusCompleted,
		Category: routing.CategoryCodeGeneration,
		Response: "done",
	}}
	s := New(":0", runner, nil)

	rec := postChat(t, s, `{"message":"Create a parser","use_rag":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "run-1", result.ID)
	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.True(t, runner.lastReq.UseRAG)
	assert.Equal(t, "Create a parser", runner.lastReq.Message)
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	s := New(":0", &stubRunner{}, nil)
	rec := postChat(t, s, `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MalformedBody(t *testing.T) {
	s := New(":0", &stubRunner{}, nil)
	rec := postChat(t, s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_FailedRun(t *testing.T) {
	runner := &stubRunner{result: &orchestrator.RunResult{
		ID:     "run-2",
		Status: orchestrator.StatusFailed,
		Err:    "run deadline exceeded after stage 1",
	}}
	s := New(":0", runner, nil)

	rec := postChat(t, s, `{"message":"hi"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var result orchestrator.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, orchestrator.StatusFailed, result.Status)
	assert.Contains(t, result.Err, "deadline")
}

func TestHandleChat_RunnerError(t *testing.T) {
	s := New(":0", &stubRunner{err: errors.New("boom")}, nil)
	rec := postChat(t, s, `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := New(":0", &stubRunner{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	exporter := metrics.NewExporter(metrics.Config{})
	s := New(":0", &stubRunner{result: &orchestrator.RunResult{Status: orchestrator.StatusCompleted}}, exporter)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
