package adapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"rplview/internal/codec"
	"rplview/internal/domain"
)

// FileAdapter reads a topology fragment from a JSON or YAML file. It is
// synced on demand, typically by a file watcher.
type FileAdapter struct {
	path   string
	codec  codec.Importer
	logger *zap.Logger
}

// NewFileAdapter creates a source for the file at path; the format follows
// the file extension
func NewFileAdapter(path string, logger *zap.Logger) (*FileAdapter, error) {
	c, err := codec.ForPath(path)
	if err != nil {
		return nil, fmt.Errorf("topology file %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileAdapter{path: path, codec: c, logger: logger}, nil
}

// Name returns the source identifier
func (f *FileAdapter) Name() string {
	return "file"
}

// Type returns the source type
func (f *FileAdapter) Type() SourceType {
	return SourceTypeOneShot
}

// Path returns the watched file
func (f *FileAdapter) Path() string {
	return f.path
}

// Start performs no setup
func (f *FileAdapter) Start(ctx context.Context) error {
	return nil
}

// Stop performs no teardown
func (f *FileAdapter) Stop() error {
	return nil
}

// Sync parses the file. A missing file is an empty topology.
func (f *FileAdapter) Sync(ctx context.Context) (*domain.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Info("topology file missing, treating as empty", zap.String("path", f.path))
		return domain.NewFragment(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open topology file: %w", err)
	}
	defer file.Close()

	fragment, err := f.codec.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("topology file %s: %w", f.path, err)
	}
	return fragment, nil
}
