package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"rplview/internal/domain"
)

// JSONCodec handles JSON import/export. Addresses are hex strings.
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a topology fragment from JSON
func (c *JSONCodec) Parse(r io.Reader) (*domain.Fragment, error) {
	var fragment domain.Fragment
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&fragment); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return normalize(fragment.Nodes, fragment.Links), nil
}

// Export exports a topology fragment to JSON
func (c *JSONCodec) Export(fragment *domain.Fragment, w io.Writer) error {
	if fragment == nil {
		fragment = domain.NewFragment()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(fragment); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
