package repository

import (
	"context"

	"rplview/internal/domain"
)

// LayoutStore persists the saved view arrangement
type LayoutStore interface {
	// LoadLayout returns the stored layout; an empty store yields an empty layout
	LoadLayout(ctx context.Context) (*domain.Layout, error)
	// SaveLayout replaces the stored layout
	SaveLayout(ctx context.Context, layout *domain.Layout) error

	// Close releases resources
	Close() error
}

// NodeLayoutStore extends LayoutStore with per-node access
type NodeLayoutStore interface {
	LayoutStore

	// GetNodeLayout returns the entry for addr, or nil if none is stored
	GetNodeLayout(ctx context.Context, addr domain.Address) (*domain.NodeLayout, error)
	UpsertNodeLayout(ctx context.Context, addr domain.Address, entry domain.NodeLayout) error
	DeleteNodeLayout(ctx context.Context, addr domain.Address) error
	// ClearLayout removes every stored entry and the background
	ClearLayout(ctx context.Context) error
}
