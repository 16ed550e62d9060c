package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes feed documents under a base directory on the filesystem.
type Local struct {
	baseDir string
}

// NewLocal creates a filesystem-backed archive, creating the base directory
// if it does not exist.
func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// Put writes data to baseDir/path and returns a file:// URI.
func (l *Local) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	clean := filepath.Clean(path)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid archive path %q", path)
	}
	full := filepath.Join(l.baseDir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return "file://" + full, nil
}

// Noop discards documents.
type Noop struct{}

// Put reports success without storing anything.
func (Noop) Put(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
