package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemSink persists finished portraits to the local filesystem.
type FilesystemSink struct {
	baseDir string
}

// NewFilesystemSink creates a filesystem sink rooted at baseDir.
func NewFilesystemSink(baseDir string) (*FilesystemSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FilesystemSink{baseDir: baseDir}, nil
}

// PersistResult writes the encoded portrait under the base directory and
// returns the final path.
func (s *FilesystemSink) PersistResult(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if suggestedName == "" {
		return "", fmt.Errorf("suggested name is required")
	}
	path := filepath.Join(s.baseDir, suggestedName)

	// Security: prevent directory traversal
	if !filepath.HasPrefix(filepath.Clean(path), filepath.Clean(s.baseDir)) {
		return "", fmt.Errorf("invalid name: path traversal detected")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	return path, nil
}
