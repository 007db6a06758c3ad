package profile

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// LLM provider configuration (OpenAI-compatible protocol). All
	// providers (openai, deepseek, siliconflow, openrouter, ollama) use
	// the same config surface.
	LLMProvider string // Provider identifier
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has a default per provider
	LLMModel    string
	LLMTimeout  int // Request timeout in seconds (default: 120)
	LLMRPM      int // Requests per minute; 0 disables client-side limiting

	// Embedding configuration for the vector store.
	EmbeddingModel   string
	EmbeddingAPIKey  string
	EmbeddingBaseURL string

	// Vector store configuration. Retrieval is disabled when DSN is empty.
	DSN            string
	RetrievalTable string

	// Pipeline tuning.
	TokenBudget         int
	RetrieveK           int
	MaxToolDepth        int
	RetryAttempts       int
	RetryBackoffMS      int
	StageTimeoutSeconds int
	RunDeadlineSeconds  int
	MaxParallelRoles    int

	// Sandbox working directory for the file-reading tool.
	Workspace string

	Mode    string
	Addr    string
	Port    int
	Version string
}

// Provider default configurations, used when LLM_BASE_URL or LLM_MODEL is
// not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsRetrievalEnabled reports whether the vector store is configured.
func (p *Profile) IsRetrievalEnabled() bool {
	return p.DSN != ""
}

// StageTimeout returns the per-stage timeout as a duration.
func (p *Profile) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

// RunDeadline returns the whole-run deadline as a duration.
func (p *Profile) RunDeadline() time.Duration {
	return time.Duration(p.RunDeadlineSeconds) * time.Second
}

// RetryBackoff returns the initial retry backoff as a duration.
func (p *Profile) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMS) * time.Millisecond
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("AGENTPIPE_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("AGENTPIPE_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("AGENTPIPE_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("AGENTPIPE_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("AGENTPIPE_LLM_TIMEOUT_SECONDS", 120)
	p.LLMRPM = getEnvOrDefaultInt("AGENTPIPE_LLM_REQUESTS_PER_MINUTE", 0)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.EmbeddingModel = getEnvOrDefault("AGENTPIPE_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("AGENTPIPE_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("AGENTPIPE_EMBEDDING_BASE_URL", "")

	p.DSN = getEnvOrDefault("AGENTPIPE_DSN", "")
	p.RetrievalTable = getEnvOrDefault("AGENTPIPE_RETRIEVAL_TABLE", "")

	p.TokenBudget = getEnvOrDefaultInt("AGENTPIPE_TOKEN_BUDGET", 4096)
	p.RetrieveK = getEnvOrDefaultInt("AGENTPIPE_RETRIEVE_K", 5)
	p.MaxToolDepth = getEnvOrDefaultInt("AGENTPIPE_MAX_TOOL_DEPTH", 5)
	p.RetryAttempts = getEnvOrDefaultInt("AGENTPIPE_RETRY_ATTEMPTS", 3)
	p.RetryBackoffMS = getEnvOrDefaultInt("AGENTPIPE_RETRY_BACKOFF_MS", 200)
	p.StageTimeoutSeconds = getEnvOrDefaultInt("AGENTPIPE_STAGE_TIMEOUT_SECONDS", 60)
	p.RunDeadlineSeconds = getEnvOrDefaultInt("AGENTPIPE_RUN_DEADLINE_SECONDS", 300)
	p.MaxParallelRoles = getEnvOrDefaultInt("AGENTPIPE_MAX_PARALLEL_ROLES", 4)

	p.Workspace = getEnvOrDefault("AGENTPIPE_WORKSPACE", "")
}

// Validate normalizes the profile and rejects unusable values.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.LLMAPIKey == "" && p.LLMProvider != "ollama" {
		return errors.New("LLM API key is required")
	}
	if p.TokenBudget <= 0 {
		return errors.Errorf("token budget must be positive, got %d", p.TokenBudget)
	}
	if p.RetryAttempts <= 0 {
		return errors.Errorf("retry attempts must be positive, got %d", p.RetryAttempts)
	}
	if p.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "resolve working directory")
		}
		p.Workspace = wd
	}
	if _, err := os.Stat(p.Workspace); err != nil {
		return errors.Wrapf(err, "unable to access workspace %s", p.Workspace)
	}
	return nil
}
