package adapter

import (
	"context"
	"time"

	"rplview/internal/domain"
)

// SourceType defines how a source interacts with its data
type SourceType string

const (
	// SourceTypePolling - source is pulled on a schedule
	SourceTypePolling SourceType = "polling"
	// SourceTypeOneShot - manual trigger only (e.g., file import, file watcher)
	SourceTypeOneShot SourceType = "oneshot"
)

// SourceConfig holds configuration for a source instance
type SourceConfig struct {
	// Enabled determines if the source should run
	Enabled bool `json:"enabled"`
	// PollInterval for polling sources; zero uses one minute
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// Source produces observations of the network topology. Every Sync returns
// the source's complete current view, not a delta.
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// Type returns how this source is driven
	Type() SourceType

	// Start initializes the source (called once on startup)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the source
	Stop() error

	// Sync observes the topology and returns it as a fragment
	Sync(ctx context.Context) (*domain.Fragment, error)
}

// EventPublisher allows sources to publish progress events
type EventPublisher interface {
	PublishDiscoveryEvent(eventType string, payload interface{})
}

// ProgressSource extends Source with progress reporting
type ProgressSource interface {
	Source

	// SetEventPublisher sets the event publisher for progress updates
	SetEventPublisher(pub EventPublisher)
}
