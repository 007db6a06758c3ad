package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxReadBytes caps file reads so a stray request cannot blow the context
// budget downstream.
const maxReadBytes = 256 * 1024

// ReadFileTool reads files under a fixed workspace root.
type ReadFileTool struct {
	root string
}

// NewReadFileTool creates the read_file tool rooted at dir.
func NewReadFileTool(root string) (*ReadFileTool, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &ReadFileTool{root: abs}, nil
}

func (t *ReadFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read the contents of a file inside the workspace.",
		Timeout:     5 * time.Second,
		Arguments: Schema{
			Type: TypeObject,
			Properties: PropertyMap{
				"path": {
					Type:        TypeString,
					Description: "Path relative to the workspace root",
				},
			},
			Required: []string{"path"},
		},
	}
}

func (t *ReadFileTool) Run(_ context.Context, args map[string]any) (string, error) {
	rel, _ := args["path"].(string)
	if rel == "" {
		return "", fmt.Errorf("path is empty")
	}

	full := filepath.Join(t.root, rel)
	// Join cleans the path; anything escaping the root is rejected.
	if full != t.root && !strings.HasPrefix(full, t.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return string(data), nil
}
