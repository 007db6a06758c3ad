// Package llm provides the provider client used by all agents. It speaks the
// OpenAI-compatible chat protocol and surfaces typed, retry-classifiable errors.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant, tool
	Content string
	// ToolCalls carries the calls requested by an assistant message, so the
	// follow-up tool observations can reference them.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string
}

// ToolDescriptor declares a function/tool available to the model.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string // JSON Schema string
}

// ToolCall is a structured request from the model to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Usage reports token consumption for a single completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another completion's usage into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest is one stateless completion call. All conversational
// state is carried in Messages.
type CompletionRequest struct {
	Messages    []Message
	Tools       []ToolDescriptor
	Temperature float32 // <= 0 uses the client default
	MaxTokens   int     // <= 0 uses the client default
}

// Completion is the model's answer. An empty ToolCalls slice means the
// content is the final answer; otherwise the caller is expected to execute
// the requested tools and continue the loop.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// IsToolRequest reports whether the model asked for tool execution instead
// of producing a final answer.
func (c *Completion) IsToolRequest() bool {
	return len(c.ToolCalls) > 0
}

// Client is the provider client interface. Each call is independent and
// stateless from the client's perspective.
type Client interface {
	// Complete performs one chat completion, possibly returning tool calls.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Warmup sends a lightweight ping to establish the provider connection.
	Warmup(ctx context.Context)
}

// Config represents provider client configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, openrouter, ollama, ...
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // per-request timeout in seconds (default: 120)
	// RequestsPerMinute throttles outbound calls; <= 0 disables throttling.
	RequestsPerMinute int
}

type client struct {
	api         *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient creates a provider client for any OpenAI-compatible backend.
func NewClient(cfg *Config) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &client{
		api:         openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		limiter:     limiter,
	}, nil
}

// defaultBaseURL maps known providers to their OpenAI-compatible endpoints.
func defaultBaseURL(provider string) string {
	switch provider {
	case "deepseek":
		return "https://api.deepseek.com"
	case "siliconflow":
		return "https://api.siliconflow.cn/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	case "openai", "":
		return ""
	default:
		slog.Info("llm: unknown provider, using OpenAI-compatible defaults", "provider", provider)
		return ""
	}
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Classify(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    convertMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
	}

	slog.Debug("llm: completion request",
		"model", c.model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		classified := Classify(err)
		slog.Error("llm: completion failed",
			"kind", classified.Kind,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindUnavailable, Err: fmt.Errorf("empty response from provider")}
	}

	choice := resp.Choices[0]
	completion := &Completion{
		Content: choice.Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	slog.Debug("llm: completion received",
		"content_length", len(completion.Content),
		"tool_calls", len(completion.ToolCalls),
		"total_tokens", completion.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return completion, nil
}

func (c *client) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.api.CreateChatCompletion(warmupCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		slog.Warn("llm: warmup ping failed (first request may be slower)",
			"provider", c.provider,
			"model", c.model,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Info("llm: connection warmed up",
		"provider", c.provider,
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds())
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case "system":
			msg.Role = openai.ChatMessageRoleSystem
		case "assistant":
			msg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case "tool":
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		default:
			msg.Role = openai.ChatMessageRoleUser
		}
		out[i] = msg
	}
	return out
}

func convertTools(tools []ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// ToolMessage creates a tool observation message answering callID.
func ToolMessage(callID, content string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: callID}
}

// AssistantToolCalls creates the assistant message that requested calls.
func AssistantToolCalls(content string, calls []ToolCall) Message {
	return Message{Role: "assistant", Content: content, ToolCalls: calls}
}
