package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingClient turns text into a dense vector for similarity search.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string // default: text-embedding-3-small
	Timeout int    // seconds, default: 30
}

type embeddingClient struct {
	api     *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
}

// NewEmbeddingClient creates an embedding client against an
// OpenAI-compatible embeddings endpoint.
func NewEmbeddingClient(cfg *EmbeddingConfig) EmbeddingClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &embeddingClient{
		api:     openai.NewClientWithConfig(clientConfig),
		model:   openai.EmbeddingModel(model),
		timeout: timeout,
	}
}

func (c *embeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("create embedding: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
