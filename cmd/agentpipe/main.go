package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/agent/tools"
	"github.com/smartfold/agentpipe/core/llm"
	"github.com/smartfold/agentpipe/core/retrieval"
	"github.com/smartfold/agentpipe/internal/profile"
	"github.com/smartfold/agentpipe/internal/version"
	"github.com/smartfold/agentpipe/metrics"
	"github.com/smartfold/agentpipe/orchestrator"
	"github.com/smartfold/agentpipe/routing"
	"github.com/smartfold/agentpipe/server"
)

var rootCmd = &cobra.Command{
	Use:   "agentpipe",
	Short: "A multi-agent coding assistant pipeline with retrieval-augmented context.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// .env is optional; environment variables win.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode: viper.GetString("mode"),
			Addr: viper.GetString("addr"),
			Port: viper.GetInt("port"),
		}
		instanceProfile.FromEnv()
		instanceProfile.Version = version.GetCurrentVersion(instanceProfile.Mode)
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		setupLogger(instanceProfile)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		orch, err := buildOrchestrator(ctx, instanceProfile)
		if err != nil {
			return err
		}

		exporter := metrics.NewExporter(metrics.DefaultConfig())
		orch.SetRecorder(exporter)

		addr := fmt.Sprintf("%s:%d", instanceProfile.Addr, instanceProfile.Port)
		srv := server.New(addr, orch, exporter)

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers (systemd, kubernetes).
		signal.Notify(c, terminationSignals...)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		printGreetings(instanceProfile)

		select {
		case <-c:
			slog.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown failed", "error", err)
			}
			return nil
		case err := <-errCh:
			return err
		}
	},
}

// buildOrchestrator wires the provider client, classifier, retriever and
// tool registry from the profile.
func buildOrchestrator(ctx context.Context, p *profile.Profile) (*orchestrator.Orchestrator, error) {
	client, err := llm.NewClient(&llm.Config{
		Provider:          p.LLMProvider,
		Model:             p.LLMModel,
		APIKey:            p.LLMAPIKey,
		BaseURL:           p.LLMBaseURL,
		Timeout:           p.LLMTimeout,
		RequestsPerMinute: p.LLMRPM,
	})
	if err != nil {
		return nil, err
	}
	go client.Warmup(ctx)

	var retriever retrieval.Retriever
	if p.IsRetrievalEnabled() {
		embedder := llm.NewEmbeddingClient(&llm.EmbeddingConfig{
			APIKey:  p.EmbeddingAPIKey,
			BaseURL: p.EmbeddingBaseURL,
			Model:   p.EmbeddingModel,
		})
		store, err := retrieval.NewPgVectorStore(ctx, &retrieval.PgVectorConfig{
			DSN:      p.DSN,
			Embedder: embedder,
			Table:    p.RetrievalTable,
			Model:    p.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		retriever = store
	} else {
		slog.Warn("no DSN configured, running without retrieval")
	}

	registry := tools.NewRegistry()
	codeTool, err := tools.NewCodeExecutorTool(tools.ExecSandbox{}, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(codeTool); err != nil {
		return nil, err
	}
	readTool, err := tools.NewReadFileTool(p.Workspace)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(readTool); err != nil {
		return nil, err
	}
	searchTool, err := tools.NewWebSearchTool(tools.NewDuckDuckGoBackend())
	if err != nil {
		return nil, err
	}
	if err := registry.Register(searchTool); err != nil {
		return nil, err
	}

	classifier := routing.NewClassifier(routing.Config{Fallback: client})

	return orchestrator.New(client, classifier, retriever, registry, tools.NewExecutor(registry), orchestrator.Config{
		TokenBudget:      p.TokenBudget,
		RetrieveK:        p.RetrieveK,
		StageTimeout:     p.StageTimeout(),
		RunDeadline:      p.RunDeadline(),
		MaxParallelRoles: p.MaxParallelRoles,
		Agent: agent.Config{
			MaxToolDepth:  p.MaxToolDepth,
			RetryAttempts: p.RetryAttempts,
			RetryBackoff:  p.RetryBackoff(),
		},
	})
}

func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("agentpipe %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Provider: %s (%s)\n", p.LLMProvider, p.LLMModel)
	if p.IsRetrievalEnabled() {
		fmt.Println("Retrieval: enabled")
	} else {
		fmt.Println("Retrieval: disabled")
	}
	if p.Addr == "" {
		fmt.Printf("Listening on port %d\n", p.Port)
	} else {
		fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8095)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8095, "port of server")

	for _, flag := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("agentpipe")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
