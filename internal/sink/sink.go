// Package sink delivers finished artifacts to the user.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mediadesk/internal/fileutil"
	"mediadesk/internal/logging"
	"mediadesk/internal/textutil"
)

// Sink stores content under a user-facing name and reports where it went.
type Sink interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
}

// LocalSink saves into a directory without ever overwriting existing files.
type LocalSink struct {
	dir    string
	logger *slog.Logger
}

// NewLocalSink returns a sink writing into dir.
func NewLocalSink(dir string, logger *slog.Logger) *LocalSink {
	return &LocalSink{dir: dir, logger: logging.NewComponentLogger(logger, "sink")}
}

// Dir returns the output directory.
func (s *LocalSink) Dir() string { return s.dir }

// Save writes content as name inside the output directory. When the name is
// taken a " (n)" suffix is added before the extension.
func (s *LocalSink) Save(ctx context.Context, name string, content []byte) (string, error) {
	name = textutil.SanitizeFileName(strings.TrimSpace(filepath.Base(name)))
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("save: invalid file name")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("save: ensure output dir: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path, err := fileutil.UniquePath(s.dir, name)
		if err != nil {
			return "", fmt.Errorf("save: %w", err)
		}
		_, err = fileutil.WriteExclusive(path, bytes.NewReader(content), 0o644)
		if errors.Is(err, os.ErrExist) {
			// Lost a race for this name; pick the next one.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save %s: %w", filepath.Base(path), err)
		}
		logging.WithContext(ctx, s.logger).Info("file saved",
			logging.String(logging.FieldEventType, "file_saved"),
			logging.String("path", path),
			logging.Int("bytes", len(content)),
		)
		return path, nil
	}
}
