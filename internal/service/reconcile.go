package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rplview/internal/domain"
	"rplview/internal/topology"
)

// TopologySink receives network events in dependency order
type TopologySink interface {
	NodeAppeared(addr domain.Address) error
	NodeGone(addr domain.Address) error
	LinkAppeared(child, parent domain.Address, weight float64) error
	LinkGone(child, parent domain.Address) error
	LinkWeightChanged(child, parent domain.Address, weight float64) error
}

// ReconcileResult counts the network events a reconcile emitted
type ReconcileResult struct {
	NodesAdded   int `json:"nodes_added"`
	NodesRemoved int `json:"nodes_removed"`
	LinksAdded   int `json:"links_added"`
	LinksRemoved int `json:"links_removed"`
	LinksUpdated int `json:"links_updated"`
}

// Changed reports whether anything was emitted
func (r ReconcileResult) Changed() bool {
	return r.NodesAdded+r.NodesRemoved+r.LinksAdded+r.LinksRemoved+r.LinksUpdated > 0
}

// Reconciler turns full per-source observations into incremental network
// events. Each source's latest fragment replaces its previous one; the sink
// sees the union across all sources. When two sources report the same link,
// the source whose name sorts first decides the weight.
type Reconciler struct {
	mu      sync.Mutex
	sink    TopologySink
	logger  *zap.Logger
	sources map[string]*domain.Fragment

	nodes map[domain.Address]struct{}
	links map[domain.LinkKey]float64
}

// NewReconciler creates a reconciler feeding sink
func NewReconciler(sink TopologySink, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sink:    sink,
		logger:  logger,
		sources: make(map[string]*domain.Fragment),
		nodes:   make(map[domain.Address]struct{}),
		links:   make(map[domain.LinkKey]float64),
	}
}

// ReconcileFragment records source's latest observation and emits the
// difference. Additions go nodes first, removals go links first. Rejected
// events are aggregated into the returned error; the rest still apply.
func (r *Reconciler) ReconcileFragment(ctx context.Context, source string, fragment *domain.Fragment) (ReconcileResult, error) {
	if err := ctx.Err(); err != nil {
		return ReconcileResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fragment.IsEmpty() {
		delete(r.sources, source)
	} else {
		r.sources[source] = fragment
	}

	res, err := r.apply()
	if res.Changed() {
		r.logger.Info("reconciled fragment",
			zap.String("source", source),
			zap.Int("nodes_added", res.NodesAdded),
			zap.Int("nodes_removed", res.NodesRemoved),
			zap.Int("links_added", res.LinksAdded),
			zap.Int("links_removed", res.LinksRemoved),
			zap.Int("links_updated", res.LinksUpdated))
	}
	return res, err
}

// Forget drops everything source contributed
func (r *Reconciler) Forget(ctx context.Context, source string) (ReconcileResult, error) {
	return r.ReconcileFragment(ctx, source, nil)
}

// ResetSink runs clearSink and forgets every source under the reconcile lock,
// so no observation is applied between the two
func (r *Reconciler) ResetSink(clearSink func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clearSink()
	clear(r.sources)
	clear(r.nodes)
	clear(r.links)
}

// Sources returns the names of sources with a current observation
func (r *Reconciler) Sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.sources))
}

func (r *Reconciler) apply() (ReconcileResult, error) {
	nodes, links := r.merge()

	var (
		res  ReconcileResult
		errs error
	)

	for _, addr := range sortedAddresses(nodes) {
		if _, ok := r.nodes[addr]; ok {
			continue
		}
		if err := r.sink.NodeAppeared(addr); err != nil && !errors.Is(err, topology.ErrDuplicateKey) {
			errs = multierr.Append(errs, err)
			continue
		}
		r.nodes[addr] = struct{}{}
		res.NodesAdded++
	}

	for _, key := range sortedKeys(links) {
		weight := links[key]
		old, ok := r.links[key]
		switch {
		case !ok:
			if err := r.sink.LinkAppeared(key.Child, key.Parent, weight); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			res.LinksAdded++
		case old != weight:
			if err := r.sink.LinkWeightChanged(key.Child, key.Parent, weight); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			res.LinksUpdated++
		default:
			continue
		}
		r.links[key] = weight
	}

	for _, key := range sortedKeys(r.links) {
		if _, ok := links[key]; ok {
			continue
		}
		if err := r.sink.LinkGone(key.Child, key.Parent); err != nil {
			errs = multierr.Append(errs, err)
		}
		delete(r.links, key)
		res.LinksRemoved++
	}

	for _, addr := range sortedAddresses(r.nodes) {
		if _, ok := nodes[addr]; ok {
			continue
		}
		if err := r.sink.NodeGone(addr); err != nil && !errors.Is(err, topology.ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
		delete(r.nodes, addr)
		res.NodesRemoved++
	}

	return res, errs
}

// merge unions the current fragments of every source
func (r *Reconciler) merge() (map[domain.Address]struct{}, map[domain.LinkKey]float64) {
	nodes := make(map[domain.Address]struct{})
	links := make(map[domain.LinkKey]float64)

	for _, name := range slices.Sorted(maps.Keys(r.sources)) {
		frag := r.sources[name]
		for _, addr := range frag.Nodes {
			nodes[addr] = struct{}{}
		}
		for _, l := range frag.Links {
			nodes[l.Child] = struct{}{}
			nodes[l.Parent] = struct{}{}
			if _, ok := links[l.Key()]; !ok {
				links[l.Key()] = l.Weight
			}
		}
	}
	return nodes, links
}

func sortedAddresses[V any](m map[domain.Address]V) []domain.Address {
	return slices.Sorted(maps.Keys(m))
}

func sortedKeys[V any](m map[domain.LinkKey]V) []domain.LinkKey {
	return slices.SortedFunc(maps.Keys(m), domain.LinkKey.Compare)
}
