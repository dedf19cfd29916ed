package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the optional endpoints mounted beside the API
type RouterConfig struct {
	// Events serves the SSE stream at /events
	Events http.Handler
	// Metrics serves Prometheus metrics at /metrics
	Metrics http.Handler
	// Observer records every request
	Observer RequestObserver
	Logger   *zap.Logger
}

// NewRouter builds the HTTP routes for the viewer
func NewRouter(h *SceneHandler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(logger))
	if cfg.Observer != nil {
		router.Use(Observe(cfg.Observer))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)
		r.Delete("/topology", h.ResetTopology)

		r.Route("/nodes/{addr}", func(r chi.Router) {
			r.Get("/", h.GetNode)
			r.Put("/", h.UpdateNode)
			r.Post("/lock", h.ToggleLock)
			r.Post("/drag/begin", h.BeginDrag)
			r.Post("/drag/move", h.MoveDrag)
			r.Post("/drag/end", h.EndDrag)
			r.Get("/layout", h.GetNodeLayout)
			r.Post("/layout", h.SaveNodeLayout)
			r.Delete("/layout", h.DeleteNodeLayout)
		})

		r.Route("/layout", func(r chi.Router) {
			r.Get("/", h.GetLayout)
			r.Put("/", h.PutLayout)
			r.Delete("/", h.DeleteLayout)
			r.Post("/save", h.SaveLayout)
			r.Post("/load", h.LoadLayout)
		})

		r.Get("/simulation", h.GetSimulation)
		r.Post("/simulation/toggle", h.ToggleSimulation)

		r.Get("/sources", h.ListSources)
		r.Post("/sources/sync", h.SyncSources)
		r.Post("/sources/{name}/sync", h.SyncSource)
	})

	if cfg.Events != nil {
		router.Method(http.MethodGet, "/events", cfg.Events)
	}
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return router
}
