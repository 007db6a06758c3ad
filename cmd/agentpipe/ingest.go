package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smartfold/agentpipe/core/llm"
	"github.com/smartfold/agentpipe/core/retrieval"
	"github.com/smartfold/agentpipe/internal/profile"
)

// chunkSize is the target chunk length in characters. Chunks are split on
// paragraph boundaries when possible.
const chunkSize = 1500

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Index reference documents into the vector store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		instanceProfile := &profile.Profile{Mode: "dev", Port: 8095}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		if !instanceProfile.IsRetrievalEnabled() {
			return fmt.Errorf("ingest requires AGENTPIPE_DSN to be set")
		}

		setupLogger(instanceProfile)
		ctx := context.Background()

		embedder := llm.NewEmbeddingClient(&llm.EmbeddingConfig{
			APIKey:  instanceProfile.EmbeddingAPIKey,
			BaseURL: instanceProfile.EmbeddingBaseURL,
			Model:   instanceProfile.EmbeddingModel,
		})
		store, err := retrieval.NewPgVectorStore(ctx, &retrieval.PgVectorConfig{
			DSN:      instanceProfile.DSN,
			Embedder: embedder,
			Table:    instanceProfile.RetrievalTable,
			Model:    instanceProfile.EmbeddingModel,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		return ingestDir(ctx, store, args[0])
	},
}

// ingestConcurrency caps concurrent embedding requests.
const ingestConcurrency = 4

func ingestDir(ctx context.Context, store *retrieval.PgVectorStore, dir string) error {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isTextFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var chunks atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				rel = path
			}

			for i, chunk := range splitChunks(string(data)) {
				if err := store.Upsert(gCtx, chunkUID(rel, i), chunk); err != nil {
					return err
				}
				chunks.Add(1)
			}
			slog.Info("ingest: indexed file", "path", rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest: completed", "files", len(paths), "chunks", chunks.Load())
	return nil
}

// chunkUID derives a stable identifier so re-ingesting a document updates
// its chunks in place instead of duplicating them.
func chunkUID(relPath string, index int) string {
	name := fmt.Sprintf("%s#%d", relPath, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".rst", ".go", ".py", ".js", ".ts", ".java", ".rb", ".sh":
		return true
	}
	return false
}

// splitChunks breaks the document on paragraph boundaries, packing
// paragraphs until the target chunk size is reached.
func splitChunks(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
