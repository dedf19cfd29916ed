package adapter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rplview/internal/domain"
)

// ReconcileFunc is called when a source produces a fragment to be merged
type ReconcileFunc func(ctx context.Context, source string, fragment *domain.Fragment) error

// DiscoveryEventFunc is called when discovery events occur
type DiscoveryEventFunc func(eventType string, payload interface{})

// Registry manages all registered sources and their lifecycle
type Registry struct {
	mu             sync.RWMutex
	sources        map[string]Source
	configs        map[string]SourceConfig
	reconcile      ReconcileFunc
	discoveryEvent DiscoveryEventFunc
	clock          clock.Clock
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewRegistry creates a new source registry
func NewRegistry(reconcile ReconcileFunc, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sources:   make(map[string]Source),
		configs:   make(map[string]SourceConfig),
		reconcile: reconcile,
		clock:     clock.New(),
		logger:    logger,
	}
}

// SetClock replaces the clock driving polling loops. Call before Start.
func (r *Registry) SetClock(clk clock.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clk
}

// SetDiscoveryEventHandler sets the handler for discovery events
func (r *Registry) SetDiscoveryEventHandler(handler DiscoveryEventFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoveryEvent = handler
}

// PublishDiscoveryEvent implements EventPublisher interface
func (r *Registry) PublishDiscoveryEvent(eventType string, payload interface{}) {
	r.mu.RLock()
	handler := r.discoveryEvent
	r.mu.RUnlock()

	if handler != nil {
		handler(eventType, payload)
	}
}

// Register adds a source to the registry
func (r *Registry) Register(source Source, config SourceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := source.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}

	// Set event publisher if source supports it
	if progressSource, ok := source.(ProgressSource); ok {
		progressSource.SetEventPublisher(r)
	}

	r.sources[name] = source
	r.configs[name] = config
	r.logger.Info("registered source",
		zap.String("source", name),
		zap.String("type", string(source.Type())),
		zap.Bool("enabled", config.Enabled))

	return nil
}

// Start initializes all enabled sources and begins their sync cycles
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for _, name := range slices.Sorted(maps.Keys(r.sources)) {
		source := r.sources[name]
		config := r.configs[name]
		if !config.Enabled {
			r.logger.Info("source is disabled, skipping", zap.String("source", name))
			continue
		}

		// Initialize source
		if err := source.Start(r.ctx); err != nil {
			r.logger.Warn("failed to start source", zap.String("source", name), zap.Error(err))
			continue
		}

		// Start polling loop for polling sources
		if source.Type() == SourceTypePolling {
			r.startPollingLoop(name, source, config)
		}
	}

	return nil
}

// Stop gracefully shuts down all sources
func (r *Registry) Stop() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	// Wait for all polling loops to finish
	r.wg.Wait()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs error
	for name, source := range r.sources {
		if err := source.Stop(); err != nil {
			r.logger.Warn("error stopping source", zap.String("source", name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

// TriggerSync manually triggers a sync for a specific source
func (r *Registry) TriggerSync(ctx context.Context, name string) error {
	r.mu.RLock()
	source, exists := r.sources[name]
	config := r.configs[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("source %s not found", name)
	}

	if !config.Enabled {
		return fmt.Errorf("source %s is disabled", name)
	}

	return r.runSync(ctx, name, source)
}

// TriggerSyncAll manually triggers sync for all enabled sources
func (r *Registry) TriggerSyncAll(ctx context.Context) error {
	r.mu.RLock()
	names := slices.Sorted(maps.Keys(r.sources))
	r.mu.RUnlock()

	var errs error
	for _, name := range names {
		r.mu.RLock()
		source, config := r.sources[name], r.configs[name]
		r.mu.RUnlock()
		if !config.Enabled {
			continue
		}

		if err := r.runSync(ctx, name, source); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

// ListSources returns information about registered sources
func (r *Registry) ListSources() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(r.sources))
	for _, name := range slices.Sorted(maps.Keys(r.sources)) {
		config := r.configs[name]
		info := SourceInfo{
			Name:    name,
			Type:    r.sources[name].Type(),
			Enabled: config.Enabled,
		}
		if info.Type == SourceTypePolling {
			info.PollInterval = pollInterval(config).String()
		}
		infos = append(infos, info)
	}
	return infos
}

// SourceInfo provides read-only information about a source
type SourceInfo struct {
	Name         string     `json:"name"`
	Type         SourceType `json:"type"`
	Enabled      bool       `json:"enabled"`
	PollInterval string     `json:"poll_interval,omitempty"`
}

func pollInterval(config SourceConfig) time.Duration {
	if config.PollInterval <= 0 {
		return time.Minute
	}
	return config.PollInterval
}

// startPollingLoop starts a goroutine that polls the source on schedule.
// Called with r.mu held.
func (r *Registry) startPollingLoop(name string, source Source, config SourceConfig) {
	interval := pollInterval(config)
	ctx := r.ctx
	ticker := r.clock.Ticker(interval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()

		// Run initial sync
		if err := r.runSync(ctx, name, source); err != nil {
			r.logger.Warn("initial sync failed", zap.String("source", name), zap.Error(err))
		}

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("stopping polling loop", zap.String("source", name))
				return
			case <-ticker.C:
				if err := r.runSync(ctx, name, source); err != nil {
					r.logger.Warn("sync failed", zap.String("source", name), zap.Error(err))
				}
			}
		}
	}()

	r.logger.Info("started polling loop", zap.String("source", name), zap.Duration("interval", interval))
}

// runSync executes a sync operation and reconciles the result
func (r *Registry) runSync(ctx context.Context, name string, source Source) error {
	r.logger.Debug("running sync", zap.String("source", name))

	fragment, err := source.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if fragment == nil {
		fragment = domain.NewFragment()
	}

	// An empty fragment is a real observation and withdraws the source's nodes
	if err := r.reconcile(ctx, name, fragment); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	r.logger.Debug("sync complete",
		zap.String("source", name),
		zap.Int("nodes", len(fragment.Nodes)),
		zap.Int("links", len(fragment.Links)))

	return nil
}
