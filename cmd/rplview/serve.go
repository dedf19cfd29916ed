package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rplview/internal/handler"
	"rplview/internal/hub"
	"rplview/internal/service"
	"rplview/internal/watcher"
)

func (c *cli) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live viewer API",
		Long: `Run discovery sources, the layout simulation and the HTTP API.

Scene events stream to clients over SSE at /events; metrics are served at /metrics.
The current layout is saved to the configured store on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	logger := c.logger
	logger.Info("starting rplview", zap.String("addr", c.cfg.Server.Addr))

	a, err := newApp(c.cfg, logger, nil)
	if err != nil {
		return err
	}

	if err := a.restoreLayout(ctx); err != nil {
		logger.Warn("could not restore layout", zap.Error(err))
	}

	// SSE hub fed from the event bus
	sseHub := hub.New(logger.Named("hub"))
	go sseHub.Run(ctx)
	events := make(chan service.Event, 256)
	a.bus.Subscribe(events)
	go sseHub.Forward(ctx, events)

	if err := a.registry.Start(ctx); err != nil {
		logger.Warn("failed to start sources", zap.Error(err))
	}

	if a.fileSource != nil {
		if err := a.registry.TriggerSync(ctx, a.fileSource.Name()); err != nil {
			logger.Warn("initial topology file sync failed", zap.Error(err))
		}
		w := watcher.New(a.fileSource.Path(), func() {
			if err := a.registry.TriggerSync(ctx, a.fileSource.Name()); err != nil {
				logger.Warn("topology file sync failed", zap.Error(err))
			}
		}).WithLogger(logger.Named("watcher"))
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("topology file watcher stopped", zap.Error(err))
			}
		}()
	}

	if c.cfg.Autostart() {
		a.scheduler.Start(ctx)
	}

	h := handler.NewSceneHandler(a.scene, logger.Named("http"))
	h.SetSimulation(a.scheduler, ctx)
	h.SetSourceController(a.registry)
	h.SetReconciler(a.reconciler)
	h.SetLayoutStore(a.store)
	h.SetClickThreshold(c.cfg.Interaction.DragClickThreshold)

	server := &http.Server{
		Addr: c.cfg.Server.Addr,
		Handler: handler.NewRouter(h, handler.RouterConfig{
			Events:   sseHub,
			Metrics:  a.metrics.Handler(),
			Observer: a.metrics,
			Logger:   logger.Named("http"),
		}),
		ReadTimeout: 10 * time.Second,
		// No write timeout: SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			a.close()
			return fmt.Errorf("serve %s: %w", server.Addr, err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	if err := a.saveLayout(shutdownCtx); err != nil {
		logger.Warn("failed to save layout", zap.Error(err))
	}

	if err := a.close(); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}
