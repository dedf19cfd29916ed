package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    Address
		wantErr bool
	}{
		{input: "1a2b", want: 0x1a2b},
		{input: "0x1A2B", want: 0x1a2b},
		{input: " ff ", want: 0xff},
		{input: "0212:4b00:0001:0203", wantErr: true},
		{input: "ffffffffffffffff", want: 0xffffffffffffffff},
		{input: "", wantErr: true},
		{input: "0x", wantErr: true},
		{input: "xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressText(t *testing.T) {
	addr := Address(0x212004b00010203)
	assert.Equal(t, "212004b00010203", addr.String())
	assert.Equal(t, "3", addr.DefaultName())

	text, err := addr.MarshalText()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, addr, decoded)
}

func TestLinkKey(t *testing.T) {
	k := LinkKey{Child: 0x2, Parent: 0x1}

	assert.Equal(t, "2->1", k.String())
	assert.True(t, k.Has(1))
	assert.True(t, k.Has(2))
	assert.False(t, k.Has(3))

	assert.Equal(t, 0, k.Compare(k))
	assert.Negative(t, k.Compare(LinkKey{Child: 3, Parent: 0}))
	assert.Positive(t, k.Compare(LinkKey{Child: 2, Parent: 0}))
}

func TestLinkRestLength(t *testing.T) {
	tests := []struct {
		weight float64
		want   float64
	}{
		{weight: 100, want: 10},
		{weight: 0, want: 0},
		{weight: 3000, want: 300},
		{weight: 50000, want: 300},
	}

	for _, tt := range tests {
		link := NewLink(2, 1, tt.weight)
		assert.Equal(t, tt.want, link.RestLength(300), "weight %v", tt.weight)
	}

	link := NewLink(2, 1, 100)
	link.SetWeight(2000)
	assert.Equal(t, 200.0, link.RestLength(300))
	assert.Equal(t, Address(2), link.Child())
	assert.Equal(t, Address(1), link.Parent())
}
