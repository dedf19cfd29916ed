package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a device in the routing topology (16-bit short or
// 64-bit extended network address)
type Address uint64

// String returns the lower-case hex form used as the layout key
func (a Address) String() string {
	return strconv.FormatUint(uint64(a), 16)
}

// DefaultName is the label shown when no friendly name is set: the low byte in hex
func (a Address) DefaultName() string {
	return strconv.FormatUint(uint64(a)&0xFF, 16)
}

// MarshalText implements encoding.TextMarshaler so addresses can key JSON/YAML maps
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a hex address, with or without a 0x prefix
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// LinkKey identifies a link by its ordered (child, parent) endpoint pair
type LinkKey struct {
	Child  Address `json:"child" yaml:"child"`
	Parent Address `json:"parent" yaml:"parent"`
}

// String renders the key as "child->parent"
func (k LinkKey) String() string {
	return k.Child.String() + "->" + k.Parent.String()
}

// Has reports whether addr is one of the key's endpoints
func (k LinkKey) Has(addr Address) bool {
	return k.Child == addr || k.Parent == addr
}

// Compare orders keys by child, then parent
func (k LinkKey) Compare(o LinkKey) int {
	switch {
	case k.Child < o.Child:
		return -1
	case k.Child > o.Child:
		return 1
	case k.Parent < o.Parent:
		return -1
	case k.Parent > o.Parent:
		return 1
	}
	return 0
}
