package codec

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"rplview/internal/domain"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlFragment represents the YAML structure for topology data
type yamlFragment struct {
	Nodes []string   `yaml:"nodes,omitempty"`
	Links []yamlLink `yaml:"links,omitempty"`
}

type yamlLink struct {
	Child  string  `yaml:"child"`
	Parent string  `yaml:"parent"`
	Weight float64 `yaml:"weight"`
}

// Parse imports a topology fragment from YAML. Every malformed address is
// reported; nothing is returned unless all of them parse.
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Fragment, error) {
	var yf yamlFragment
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&yf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var errs error
	nodes := make([]domain.Address, 0, len(yf.Nodes))
	for i, raw := range yf.Nodes {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d]: %w", i, err))
			continue
		}
		nodes = append(nodes, addr)
	}

	links := make([]domain.FragmentLink, 0, len(yf.Links))
	for i, yl := range yf.Links {
		child, err := domain.ParseAddress(yl.Child)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("links[%d].child: %w", i, err))
			continue
		}
		parent, err := domain.ParseAddress(yl.Parent)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("links[%d].parent: %w", i, err))
			continue
		}
		links = append(links, domain.FragmentLink{Child: child, Parent: parent, Weight: yl.Weight})
	}

	if errs != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", errs)
	}
	return normalize(nodes, links), nil
}

// Export exports a topology fragment to YAML
func (c *YAMLCodec) Export(fragment *domain.Fragment, w io.Writer) error {
	if fragment == nil {
		fragment = domain.NewFragment()
	}

	yf := yamlFragment{
		Nodes: make([]string, 0, len(fragment.Nodes)),
		Links: make([]yamlLink, 0, len(fragment.Links)),
	}

	for _, addr := range fragment.Nodes {
		yf.Nodes = append(yf.Nodes, addr.String())
	}

	for _, l := range fragment.Links {
		yf.Links = append(yf.Links, yamlLink{
			Child:  l.Child.String(),
			Parent: l.Parent.String(),
			Weight: l.Weight,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yf); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
