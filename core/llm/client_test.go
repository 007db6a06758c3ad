package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		wantKind  Kind
		retryable bool
	}{
		{
			name:      "rate limited",
			err:       &openai.APIError{HTTPStatusCode: 429},
			wantKind:  KindRateLimited,
			retryable: true,
		},
		{
			name:      "server error",
			err:       &openai.APIError{HTTPStatusCode: 503},
			wantKind:  KindUnavailable,
			retryable: true,
		},
		{
			name:      "bad request",
			err:       &openai.APIError{HTTPStatusCode: 400},
			wantKind:  KindInvalidRequest,
			retryable: false,
		},
		{
			name:      "auth failure is not retryable",
			err:       &openai.APIError{HTTPStatusCode: 401},
			wantKind:  KindInvalidRequest,
			retryable: false,
		},
		{
			name:      "deadline exceeded",
			err:       fmt.Errorf("call: %w", context.DeadlineExceeded),
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:      "transport failure defaults to unavailable",
			err:       errors.New("connection refused"),
			wantKind:  KindUnavailable,
			retryable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.wantKind, got.Kind)
			assert.Equal(t, tc.retryable, got.Retryable())
		})
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := &Error{Kind: KindRateLimited, Err: errors.New("slow down")}
	wrapped := fmt.Errorf("attempt 1: %w", orig)

	got := Classify(wrapped)
	assert.Equal(t, KindRateLimited, got.Kind)
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.False(t, IsRetryable(nil))
}

func TestConvertMessages(t *testing.T) {
	messages := []Message{
		SystemPrompt("You are a planner."),
		UserMessage("plan this"),
		AssistantToolCalls("", []ToolCall{{ID: "call_1", Name: "code_executor", Arguments: `{"code":"1+1"}`}}),
		ToolMessage("call_1", "2"),
	}

	converted := convertMessages(messages)
	require.Len(t, converted, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, converted[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, converted[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, converted[2].Role)
	require.Len(t, converted[2].ToolCalls, 1)
	assert.Equal(t, "code_executor", converted[2].ToolCalls[0].Function.Name)
	assert.Equal(t, openai.ChatMessageRoleTool, converted[3].Role)
	assert.Equal(t, "call_1", converted[3].ToolCallID)
}

func TestCompletion_IsToolRequest(t *testing.T) {
	final := &Completion{Content: "done"}
	assert.False(t, final.IsToolRequest())

	toolReq := &Completion{ToolCalls: []ToolCall{{Name: "web_search"}}}
	assert.True(t, toolReq.IsToolRequest())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)

	c, err := NewClient(&Config{Model: "deepseek-chat", Provider: "deepseek"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
