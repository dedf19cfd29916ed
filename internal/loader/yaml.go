package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"rplview/internal/domain"
)

// LayoutYAML represents the layout file structure
type LayoutYAML struct {
	Background string               `yaml:"background,omitempty"`
	Nodes      map[string]*NodeYAML `yaml:"nodes"`
}

// NodeYAML is one node's saved view state, keyed by hex address in the file
type NodeYAML struct {
	X      *float64 `yaml:"x,omitempty"`
	Y      *float64 `yaml:"y,omitempty"`
	Locked *bool    `yaml:"locked,omitempty"`
	Name   string   `yaml:"name,omitempty"`
}

// LoadYAML loads a layout file. A missing file is an empty layout.
func LoadYAML(path string) (*domain.Layout, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewLayout(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML parses layout data. Entries with a malformed address are
// skipped; the layout of the remaining entries is returned together with an
// error listing every skipped key.
func ParseYAML(data []byte) (*domain.Layout, error) {
	var yamlData LayoutYAML
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return convertYAMLToLayout(&yamlData)
}

func convertYAMLToLayout(y *LayoutYAML) (*domain.Layout, error) {
	layout := domain.NewLayout()
	layout.Background = y.Background

	var errs error
	for key, node := range y.Nodes {
		addr, err := domain.ParseAddress(key)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("node %q: %w", key, err))
			continue
		}
		if node == nil {
			node = &NodeYAML{}
		}

		entry := domain.NodeLayout{
			Locked: node.Locked,
			Name:   node.Name,
		}
		// A half-specified position is ignored
		if node.X != nil && node.Y != nil {
			entry.Position = &domain.Position{X: *node.X, Y: *node.Y}
		}
		layout.Set(addr, entry)
	}

	return layout, errs
}

// ExportYAML renders a layout. Keys are written in sorted order.
func ExportYAML(layout *domain.Layout) ([]byte, error) {
	yamlData := LayoutYAML{Nodes: make(map[string]*NodeYAML)}
	if layout != nil {
		yamlData.Background = layout.Background
		for addr, entry := range layout.Nodes {
			node := &NodeYAML{Locked: entry.Locked, Name: entry.Name}
			if entry.Position != nil {
				x, y := entry.Position.X, entry.Position.Y
				node.X, node.Y = &x, &y
			}
			yamlData.Nodes[addr.String()] = node
		}
	}

	return yaml.Marshal(&yamlData)
}

// SaveYAML writes a layout file, replacing any previous one atomically
func SaveYAML(path string, layout *domain.Layout) error {
	data, err := ExportYAML(layout)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".layout-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write layout: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// FileStore is a repository.LayoutStore backed by a YAML file
type FileStore struct {
	path string
}

// NewFileStore creates a store for the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file
func (s *FileStore) Path() string { return s.path }

// LoadLayout reads the file
func (s *FileStore) LoadLayout(ctx context.Context) (*domain.Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadYAML(s.path)
}

// SaveLayout writes the file
func (s *FileStore) SaveLayout(ctx context.Context, layout *domain.Layout) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return SaveYAML(s.path, layout)
}

// Close is a no-op
func (s *FileStore) Close() error { return nil }
