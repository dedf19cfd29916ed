package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"rplview/internal/domain"
)

// Importer interface for importing topology fragments from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.Fragment, error)
	Format() string
}

// Exporter interface for exporting topology fragments to various formats
type Exporter interface {
	Export(fragment *domain.Fragment, w io.Writer) error
	Format() string
}

// Codec both imports and exports a format
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec for a format name ("json", "yaml" or "yml")
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ForPath picks a codec from a file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// normalize rebuilds a decoded fragment through the domain helpers so
// duplicates collapse and every link endpoint is listed as a node
func normalize(nodes []domain.Address, links []domain.FragmentLink) *domain.Fragment {
	fragment := domain.NewFragment()
	for _, addr := range nodes {
		fragment.AddNode(addr)
	}
	for _, l := range links {
		fragment.AddLink(l.Child, l.Parent, l.Weight)
	}
	return fragment
}
