package retrieval

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/smartfold/agentpipe/core/llm"
)

// PgVectorStore retrieves reference chunks from a Postgres table with a
// pgvector embedding column. Document ingestion happens out of band; the
// pipeline only reads, plus Upsert for the ingestion CLI.
type PgVectorStore struct {
	db        *sql.DB
	embedder  llm.EmbeddingClient
	table     string
	model     string
	queryTime time.Duration
}

// PgVectorConfig configures the store.
type PgVectorConfig struct {
	DSN      string
	Embedder llm.EmbeddingClient
	// Table defaults to "reference_chunk".
	Table string
	// Model is recorded alongside upserted embeddings.
	Model string
	// QueryTimeout defaults to 10s.
	QueryTimeout time.Duration
}

// NewPgVectorStore opens the Postgres connection and verifies it.
func NewPgVectorStore(ctx context.Context, cfg *PgVectorConfig) (*PgVectorStore, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	table := cfg.Table
	if table == "" {
		table = "reference_chunk"
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}

	return &PgVectorStore{
		db:        db,
		embedder:  cfg.Embedder,
		table:     table,
		model:     cfg.Model,
		queryTime: queryTimeout,
	}, nil
}

// Search embeds the query and runs a cosine-distance nearest-neighbor scan.
func (s *PgVectorStore) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTime)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	stmt := `
		SELECT uid, content, 1 - (embedding <=> $1) AS score
		FROM ` + s.table + `
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, stmt, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reference chunks")
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		var snippet Snippet
		if err := rows.Scan(&snippet.SourceID, &snippet.Text, &snippet.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan reference chunk")
		}
		snippets = append(snippets, snippet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snippets, nil
}

// Upsert stores a reference chunk with its embedding.
func (s *PgVectorStore) Upsert(ctx context.Context, uid, content string) error {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return errors.Wrap(err, "failed to embed content")
	}

	stmt := `
		INSERT INTO ` + s.table + ` (uid, content, embedding, model, updated_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid)
		DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = EXCLUDED.updated_ts
	`
	_, err = s.db.ExecContext(ctx, stmt, uid, content, pgvector.NewVector(vector), s.model, time.Now().Unix())
	if err != nil {
		return errors.Wrap(err, "failed to upsert reference chunk")
	}
	return nil
}

// Close releases the database connection.
func (s *PgVectorStore) Close() error {
	return s.db.Close()
}
