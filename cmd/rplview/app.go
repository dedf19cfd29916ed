package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rplview/internal/adapter"
	"rplview/internal/config"
	"rplview/internal/domain"
	"rplview/internal/layout"
	"rplview/internal/loader"
	"rplview/internal/metrics"
	"rplview/internal/repository"
	"rplview/internal/repository/sqlite"
	"rplview/internal/service"
)

// app is the wired viewer: scene, tick loop, sources and layout store
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	bus        *service.EventBus
	scene      *service.Scene
	scheduler  *service.Scheduler
	reconciler *service.Reconciler
	registry   *adapter.Registry
	metrics    *metrics.Collector
	store      repository.LayoutStore
	fileSource *adapter.FileAdapter
}

// newApp wires every component from cfg. rng may be nil for the global source.
func newApp(cfg *config.Config, logger *zap.Logger, rng layout.Rand) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		bus:     service.NewEventBus(),
		metrics: metrics.NewCollector("rplview"),
	}

	engine := layout.New(cfg.EngineParams(), rng)
	a.scene = service.NewScene(engine, a.bus, logger.Named("scene"))
	a.scene.SetRecorder(a.metrics)

	a.scheduler = service.NewScheduler(nil, cfg.Simulation.TickInterval.Duration(), a.scene.Tick, logger.Named("scheduler"))
	every := uint64(cfg.Server.SnapshotEvery)
	a.scheduler.OnTick(func(count uint64) {
		if count%every == 0 {
			a.scene.PublishSnapshot()
		}
	})

	a.reconciler = service.NewReconciler(a.scene, logger.Named("reconciler"))
	a.registry = adapter.NewRegistry(a.reconcile, logger.Named("sources"))
	a.registry.SetDiscoveryEventHandler(func(eventType string, payload interface{}) {
		a.bus.Publish(service.Event{
			Type:    service.EventDiscovery,
			Payload: map[string]interface{}{"event": eventType, "data": payload},
		})
	})

	if err := a.registerSources(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Layout)
	if err != nil {
		return nil, err
	}
	a.store = store

	return a, nil
}

// reconcile feeds a source's fragment into the scene
func (a *app) reconcile(ctx context.Context, source string, fragment *domain.Fragment) error {
	_, err := a.reconciler.ReconcileFragment(ctx, source, fragment)
	a.metrics.ObserveReconcile(source, err)
	return err
}

func (a *app) registerSources() error {
	d := a.cfg.Discovery

	if len(d.Targets) > 0 {
		nmapSource := adapter.NewNmapAdapter(d.Targets,
			adapter.WithInterval(d.Interval.Duration()),
			adapter.WithLinkWeight(d.LinkWeight),
			adapter.WithLogger(a.logger.Named("nmap")),
		)
		if err := a.registry.Register(nmapSource, adapter.SourceConfig{
			Enabled:      true,
			PollInterval: nmapSource.Interval(),
		}); err != nil {
			return err
		}
	}

	if br := d.BorderRouter; br.Host != "" {
		routeSource := adapter.NewSSHRouteAdapter(adapter.SSHRouteConfig{
			Host:           br.Host,
			Port:           br.Port,
			User:           br.User,
			KeyFile:        br.KeyFile,
			Passphrase:     br.Passphrase,
			Password:       br.Password,
			KnownHostsFile: br.KnownHosts,
			Command:        br.Command,
			Interval:       d.Interval.Duration(),
			LinkWeight:     d.LinkWeight,
		}, a.logger.Named("border-router"))
		if err := a.registry.Register(routeSource, adapter.SourceConfig{
			Enabled:      true,
			PollInterval: routeSource.Interval(),
		}); err != nil {
			return err
		}
	}

	if d.TopologyFile != "" {
		fileSource, err := adapter.NewFileAdapter(d.TopologyFile, a.logger.Named("file"))
		if err != nil {
			return err
		}
		if err := a.registry.Register(fileSource, adapter.SourceConfig{Enabled: true}); err != nil {
			return err
		}
		a.fileSource = fileSource
	}

	return nil
}

// openStore picks the layout store: the database wins over the YAML file
func openStore(cfg config.LayoutConfig) (repository.LayoutStore, error) {
	switch {
	case cfg.Database != "":
		repo, err := sqlite.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open layout database: %w", err)
		}
		return repo, nil
	case cfg.File != "":
		return loader.NewFileStore(cfg.File), nil
	default:
		return nil, nil
	}
}

// restoreLayout applies the stored layout so entries take effect as nodes appear
func (a *app) restoreLayout(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	l, err := a.store.LoadLayout(ctx)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	a.scene.ApplyLayout(l)
	return nil
}

// saveLayout persists the current arrangement and makes it the active layout.
// Entries of nodes that are not present are carried over.
func (a *app) saveLayout(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.SaveLayout(ctx, a.scene.CommitLayout())
}

// close stops the tick loop and sources and releases the store
func (a *app) close() error {
	a.scheduler.Stop()

	var errs error
	errs = multierr.Append(errs, a.registry.Stop())
	if a.store != nil {
		errs = multierr.Append(errs, a.store.Close())
	}
	return errs
}
