// Package routing classifies incoming tasks into pipeline categories.
package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/smartfold/agentpipe/core/llm"
)

// Category selects the pipeline plan for a task. The set is closed.
type Category string

const (
	CategoryCodeGeneration Category = "code_generation"
	CategoryDebugging      Category = "debugging"
	CategoryOptimization   Category = "optimization"
	CategoryReview         Category = "review"
	CategoryGeneral        Category = "general"
)

// KnownCategories lists every valid category in a stable order.
func KnownCategories() []Category {
	return []Category{
		CategoryCodeGeneration,
		CategoryDebugging,
		CategoryOptimization,
		CategoryReview,
		CategoryGeneral,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryCodeGeneration, CategoryDebugging, CategoryOptimization,
		CategoryReview, CategoryGeneral:
		return true
	}
	return false
}

// DefaultConfidenceThreshold is the heuristic confidence below which the
// classifier consults the LLM fallback.
const DefaultConfidenceThreshold = 0.6

// Pre-compiled patterns for heuristic classification. Matching is done on
// the lowercased query.
var (
	debugPattern = regexp.MustCompile(
		`\b(debug|bug|fix|broken|crash|error|exception|traceback|stacktrace|fail(s|ing|ed)?)\b` +
			`|isn'?t\s+\w+ing|doesn'?t\s+work|not\s+working|why\s+(is|does|isn|doesn|won)`)
	optimizePattern = regexp.MustCompile(
		`\b(optimi[sz]e|optimi[sz]ation|faster|speed\s*up|slow|performance|latency|memory\s+usage|efficient)\b`)
	reviewPattern = regexp.MustCompile(
		`\b(review|critique|feedback|audit|assess|evaluate)\b|look\s+over|check\s+(my|this)`)
	generatePattern = regexp.MustCompile(
		`\b(create|write|implement|generate|build|make|add|test(s)?|function|class|script|code|program)\b`)
)

// heuristicWeight is the confidence contribution of each pattern hit.
const heuristicWeight = 0.25

// Heuristic scores the query against the category patterns and returns the
// best category with its confidence. It is a pure function of the query:
// identical input always yields identical output.
func Heuristic(query string) (Category, float32) {
	lower := strings.ToLower(query)

	type scored struct {
		category Category
		hits     int
	}
	// Checked in priority order so ties resolve deterministically.
	candidates := []scored{
		{CategoryDebugging, len(debugPattern.FindAllString(lower, -1))},
		{CategoryOptimization, len(optimizePattern.FindAllString(lower, -1))},
		{CategoryReview, len(reviewPattern.FindAllString(lower, -1))},
		{CategoryCodeGeneration, len(generatePattern.FindAllString(lower, -1))},
	}

	best := scored{category: CategoryGeneral}
	for _, c := range candidates {
		if c.hits > best.hits {
			best = c
		}
	}
	if best.hits == 0 {
		return CategoryGeneral, 0
	}

	confidence := 0.5 + heuristicWeight*float32(best.hits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return best.category, confidence
}

// Config configures a Classifier.
type Config struct {
	// ConfidenceThreshold below which the heuristic result is treated as
	// ambiguous. Defaults to DefaultConfidenceThreshold.
	ConfidenceThreshold float32
	// Fallback is consulted for ambiguous queries. Optional: when nil,
	// ambiguous queries resolve to the heuristic's best guess.
	Fallback llm.Client
	// FallbackTimeout bounds a single fallback call. Defaults to 10s.
	FallbackTimeout time.Duration
}

// Classifier maps raw queries to task categories. Layer 1 is a
// deterministic keyword heuristic; layer 2 is a best-effort LLM fallback
// whose result is advisory only.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier with the given config.
func NewClassifier(cfg Config) *Classifier {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 10 * time.Second
	}
	return &Classifier{cfg: cfg}
}

const fallbackSystemPrompt = `You are a task classifier. Given a user request, respond with exactly one of these labels and nothing else: code_generation, debugging, optimization, review, general.`

// Classify returns the category for the query. It never returns an error:
// classification must not abort the pipeline, so fallback failures degrade
// to CategoryGeneral.
func (c *Classifier) Classify(ctx context.Context, query string) Category {
	start := time.Now()

	category, confidence := Heuristic(query)
	if confidence >= c.cfg.ConfidenceThreshold {
		slog.Debug("task classified by heuristic",
			"query", truncate(query, 50),
			"category", category,
			"confidence", confidence,
			"latency_ms", time.Since(start).Milliseconds())
		return category
	}

	if c.cfg.Fallback == nil {
		slog.Debug("task classified by low-confidence heuristic",
			"query", truncate(query, 50),
			"category", category,
			"confidence", confidence)
		return category
	}

	fbCtx, cancel := context.WithTimeout(ctx, c.cfg.FallbackTimeout)
	defer cancel()

	completion, err := c.cfg.Fallback.Complete(fbCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemPrompt(fallbackSystemPrompt),
			llm.UserMessage(query),
		},
		MaxTokens: 8,
	})
	if err != nil {
		slog.Warn("classifier fallback failed, defaulting to general",
			"query", truncate(query, 50),
			"error", err)
		return CategoryGeneral
	}

	parsed := Category(strings.ToLower(strings.TrimSpace(completion.Content)))
	if !parsed.Valid() {
		slog.Warn("classifier fallback returned unknown label, defaulting to general",
			"label", truncate(completion.Content, 50))
		return CategoryGeneral
	}

	slog.Debug("task classified by llm fallback",
		"query", truncate(query, 50),
		"category", parsed,
		"latency_ms", time.Since(start).Milliseconds())
	return parsed
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
