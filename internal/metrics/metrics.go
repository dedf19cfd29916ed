package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rplview/internal/service"
	"rplview/internal/topology"
)

// Collector holds the Prometheus metrics for the viewer. It implements
// service.Recorder so the scene can report into it directly.
type Collector struct {
	registry *prometheus.Registry

	// Simulation metrics
	TickDuration prometheus.Histogram
	Ticks        prometheus.Counter
	Nodes        prometheus.Gauge
	Links        prometheus.Gauge

	// Topology metrics
	IndexErrors *prometheus.CounterVec
	Reconciles  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	tickDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent computing one simulation tick",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)

	ticks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of simulation ticks",
		},
	)

	nodes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes currently in the scene",
		},
	)

	links := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "links",
			Help:      "Links currently in the scene",
		},
	)

	indexErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_errors_total",
			Help:      "Rejected topology changes by operation and reason",
		},
		[]string{"operation", "reason"},
	)

	reconciles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Source observations reconciled into the scene",
		},
		[]string{"source", "status"},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	registry.MustRegister(
		tickDuration,
		ticks,
		nodes,
		links,
		indexErrors,
		reconciles,
		httpRequests,
	)

	return &Collector{
		registry:     registry,
		TickDuration: tickDuration,
		Ticks:        ticks,
		Nodes:        nodes,
		Links:        links,
		IndexErrors:  indexErrors,
		Reconciles:   reconciles,
		HTTPRequests: httpRequests,
	}
}

var _ service.Recorder = (*Collector)(nil)

// ObserveTick records one simulation tick
func (c *Collector) ObserveTick(d time.Duration, nodes, links int) {
	c.TickDuration.Observe(d.Seconds())
	c.Ticks.Inc()
	c.Nodes.Set(float64(nodes))
	c.Links.Set(float64(links))
}

// IndexError records a rejected topology change
func (c *Collector) IndexError(op string, err error) {
	c.IndexErrors.WithLabelValues(op, reason(err)).Inc()
}

// ObserveReconcile records the outcome of reconciling one source observation
func (c *Collector) ObserveReconcile(source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Reconciles.WithLabelValues(source, status).Inc()
}

// ObserveRequest records a served HTTP request
func (c *Collector) ObserveRequest(method string, status int) {
	c.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func reason(err error) string {
	switch {
	case errors.Is(err, topology.ErrDuplicateKey):
		return "duplicate"
	case errors.Is(err, topology.ErrNotFound):
		return "not_found"
	case errors.Is(err, topology.ErrDanglingEndpoint):
		return "dangling_endpoint"
	default:
		return "other"
	}
}
