package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rplview/internal/domain"
	"rplview/internal/layout"
	"rplview/internal/topology"
)

// ErrNotDragging is returned when a drag update arrives for a node that is not being dragged
var ErrNotDragging = errors.New("node is not being dragged")

// Recorder receives simulation measurements
type Recorder interface {
	ObserveTick(d time.Duration, nodes, links int)
	IndexError(op string, err error)
}

// Scene owns the topology index and the layout engine. A single mutex
// serializes network events, interaction, layout operations, snapshots and
// ticks, so a tick never iterates a node or link that is being destroyed.
type Scene struct {
	mu       sync.Mutex
	index    *topology.Index
	engine   *layout.Engine
	events   *EventBus
	logger   *zap.Logger
	recorder Recorder

	layout *domain.Layout
	ticks  uint64
}

// NewScene creates a scene driven by engine. events may be nil.
func NewScene(engine *layout.Engine, events *EventBus, logger *zap.Logger) *Scene {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scene{
		index:  topology.New(),
		engine: engine,
		events: events,
		logger: logger,
	}
	s.index.SetObserver(sceneObserver{s})
	return s
}

// SetRecorder attaches a measurement sink
func (s *Scene) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// Tick advances the simulation by one step
func (s *Scene) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.engine.Step(s.index)
	s.ticks++
	if s.recorder != nil {
		s.recorder.ObserveTick(time.Since(start), s.index.Len(), s.index.LinkLen())
	}
}

// Ticks returns the number of ticks run so far
func (s *Scene) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Len returns the node and link counts
func (s *Scene) Len() (nodes, links int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len(), s.index.LinkLen()
}

// HasNode reports whether addr is in the topology
func (s *Scene) HasNode(addr domain.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index.Node(addr)
	return ok
}

// LinkWeight returns the weight of (child, parent), if present
func (s *Scene) LinkWeight(child, parent domain.Address) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.index.Link(child, parent)
	if !ok {
		return 0, false
	}
	return link.Weight(), true
}

// ============================================================================
// Network events
// ============================================================================

// NodeAppeared creates a node at a random point in the plane, then applies
// any saved layout entry for it
func (s *Scene) NodeAppeared(addr domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, y := s.randomPoint()
	node := domain.NewNode(addr, x, y)
	if entry, ok := s.layout.Lookup(addr); ok {
		applyEntry(node, entry, false)
	}

	if err := s.index.InsertNode(addr, node); err != nil {
		return s.indexError("insert_node", err)
	}

	s.logger.Debug("node appeared", zap.Stringer("address", addr))
	s.publish(EventNodeAppeared, domain.NewSnapshotNode(node))
	return nil
}

// NodeGone destroys the node and every link incident to it
func (s *Scene) NodeGone(addr domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.RemoveNode(addr); err != nil {
		return s.indexError("remove_node", err)
	}
	return nil
}

// LinkAppeared creates a child→parent link. Both endpoints must exist.
func (s *Scene) LinkAppeared(child, parent domain.Address, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.InsertLink(child, parent, domain.NewLink(child, parent, weight)); err != nil {
		return s.indexError("insert_link", err)
	}

	s.logger.Debug("link appeared",
		zap.Stringer("child", child), zap.Stringer("parent", parent), zap.Float64("weight", weight))
	s.publish(EventLinkAppeared, domain.FragmentLink{Child: child, Parent: parent, Weight: weight})
	return nil
}

// LinkGone destroys the child→parent link
func (s *Scene) LinkGone(child, parent domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.RemoveLink(child, parent); err != nil {
		return s.indexError("remove_link", err)
	}
	return nil
}

// LinkWeightChanged updates the weight used by the next tick's spring
func (s *Scene) LinkWeightChanged(child, parent domain.Address, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.index.Link(child, parent)
	if !ok {
		key := domain.LinkKey{Child: child, Parent: parent}
		return s.indexError("update_link", fmt.Errorf("link %s: %w", key, topology.ErrNotFound))
	}
	link.SetWeight(weight)

	s.publish(EventLinkWeightChanged, domain.FragmentLink{Child: child, Parent: parent, Weight: weight})
	return nil
}

// Clear destroys every link, then every node. The active layout is kept, so
// nodes that appear again get their saved state back.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Clear()
	s.publish(EventTopologyCleared, nil)
}

// ============================================================================
// Interaction gate
// ============================================================================

// BeginDrag hands control of the node to the user
func (s *Scene) BeginDrag(addr domain.Address) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.SetBeingMoved(true)
		return nil
	})
}

// DragTo moves a dragged node to (x, y). When elapsed is positive and the
// node is not locked, its velocity tracks the last movement so a later
// release can fling it.
func (s *Scene) DragTo(addr domain.Address, x, y float64, elapsed time.Duration) error {
	return s.withNode(addr, func(n *domain.Node) error {
		if !n.IsBeingMoved() {
			return fmt.Errorf("node %s: %w", addr, ErrNotDragging)
		}
		if !n.IsLocked() {
			px, py := n.Center()
			n.Fling(x-px, y-py, elapsed)
		}
		n.SetCenter(x, y)
		return nil
	})
}

// EndDrag returns the node to the simulation, handing it the velocity of the
// final (dx, dy) movement over elapsed
func (s *Scene) EndDrag(addr domain.Address, dx, dy float64, elapsed time.Duration) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.Fling(dx, dy, elapsed)
		n.SetBeingMoved(false)
		return nil
	})
}

// Select reports a click on the node to subscribers
func (s *Scene) Select(addr domain.Address) error {
	return s.withNode(addr, func(n *domain.Node) error {
		s.publish(EventNodeSelected, domain.NewSnapshotNode(n))
		return nil
	})
}

// SetLocked pins or releases the node
func (s *Scene) SetLocked(addr domain.Address, locked bool) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.SetLocked(locked)
		s.publish(EventNodeUpdated, domain.NewSnapshotNode(n))
		return nil
	})
}

// ToggleLocked flips the node's lock and returns the new state
func (s *Scene) ToggleLocked(addr domain.Address) (bool, error) {
	var locked bool
	err := s.withNode(addr, func(n *domain.Node) error {
		locked = !n.IsLocked()
		n.SetLocked(locked)
		s.publish(EventNodeUpdated, domain.NewSnapshotNode(n))
		return nil
	})
	return locked, err
}

// SetName sets the node's friendly name; empty restores the default
func (s *Scene) SetName(addr domain.Address, name string) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.SetName(name)
		s.publish(EventNodeUpdated, domain.NewSnapshotNode(n))
		return nil
	})
}

// SetInfoText sets the node's secondary label
func (s *Scene) SetInfoText(addr domain.Address, text string) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.SetInfoText(text)
		return nil
	})
}

// SetVelocity assigns the node's velocity directly
func (s *Scene) SetVelocity(addr domain.Address, dx, dy float64) error {
	return s.withNode(addr, func(n *domain.Node) error {
		n.SetVelocity(dx, dy)
		return nil
	})
}

// ============================================================================
// Layout persistence
// ============================================================================

// ApplyLayout makes l the active layout and applies it to every present
// node. A node without an explicit lock value in l ends up locked; nodes
// that appear later default to unlocked.
func (s *Scene) ApplyLayout(l *domain.Layout) {
	if l == nil {
		l = domain.NewLayout()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.layout = l
	for n := range s.index.Nodes() {
		entry, _ := l.Lookup(n.Address())
		applyEntry(n, entry, true)
	}

	s.logger.Info("layout applied", zap.Int("entries", len(l.Nodes)), zap.Int("nodes", s.index.Len()))
	s.publish(EventLayoutApplied, map[string]int{"entries": len(l.Nodes)})
}

// CaptureLayout returns the active layout updated with the current position,
// lock and name of every present node. Entries of absent nodes are kept.
func (s *Scene) CaptureLayout() *domain.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureLayout()
}

// CommitLayout captures the layout and makes the capture the active layout,
// so a node that leaves and returns comes back as it was when committed
func (s *Scene) CommitLayout() *domain.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.captureLayout()
	s.layout = out.Clone()
	return out
}

// CommitNodeLayout captures one present node into the active layout and
// returns its entry
func (s *Scene) CommitNodeLayout(addr domain.Address) (domain.NodeLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Node(addr)
	if !ok {
		return domain.NodeLayout{}, fmt.Errorf("node %s: %w", addr, topology.ErrNotFound)
	}
	if s.layout == nil {
		s.layout = domain.NewLayout()
	}
	entry := nodeEntry(n)
	s.layout.Set(addr, entry)
	return entry, nil
}

func (s *Scene) captureLayout() *domain.Layout {
	out := domain.NewLayout()
	if s.layout != nil {
		out = s.layout.Clone()
	}
	for n := range s.index.Nodes() {
		out.Set(n.Address(), nodeEntry(n))
	}
	return out
}

func nodeEntry(n *domain.Node) domain.NodeLayout {
	x, y := n.Center()
	entry := domain.NewNodeLayout(x, y, n.IsLocked())
	entry.Name = n.Name()
	return entry
}

// ClearLayout drops the active layout, unlocks every node and restores default names
func (s *Scene) ClearLayout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layout = nil
	for n := range s.index.Nodes() {
		n.SetLocked(false)
		n.SetName("")
	}
	s.publish(EventLayoutCleared, nil)
}

// ============================================================================
// Rendering
// ============================================================================

// Snapshot copies the current view
func (s *Scene) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.Snapshot{
		Tick:  s.ticks,
		Nodes: make([]domain.SnapshotNode, 0, s.index.Len()),
		Links: make([]domain.SnapshotLink, 0, s.index.LinkLen()),
	}
	for n := range s.index.Nodes() {
		snap.Nodes = append(snap.Nodes, domain.NewSnapshotNode(n))
	}
	for l := range s.index.Links() {
		from, _ := s.index.Node(l.Child())
		to, _ := s.index.Node(l.Parent())
		fx, fy := from.Center()
		tx, ty := to.Center()
		snap.Links = append(snap.Links, domain.SnapshotLink{
			Child:  l.Child(),
			Parent: l.Parent(),
			Weight: l.Weight(),
			From:   domain.Position{X: fx, Y: fy},
			To:     domain.Position{X: tx, Y: ty},
		})
	}
	return snap
}

// SimulationToggled tells subscribers the simulation was started or stopped
func (s *Scene) SimulationToggled(running bool) {
	s.publish(EventSimulationToggled, map[string]bool{"running": running})
}

// PublishSnapshot sends the current view to subscribers
func (s *Scene) PublishSnapshot() {
	snap := s.Snapshot()
	s.publish(EventSnapshot, snap)
}

// ============================================================================
// Internals
// ============================================================================

func (s *Scene) withNode(addr domain.Address, fn func(n *domain.Node) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Node(addr)
	if !ok {
		return fmt.Errorf("node %s: %w", addr, topology.ErrNotFound)
	}
	return fn(n)
}

func (s *Scene) randomPoint() (float64, float64) {
	p := s.engine.Params()
	r := s.engine.Rand()
	return p.Bounds.MinX + r.Float64()*(p.Bounds.MaxX-p.Bounds.MinX),
		p.Bounds.MinY + r.Float64()*(p.Bounds.MaxY-p.Bounds.MinY)
}

func (s *Scene) indexError(op string, err error) error {
	if s.recorder != nil {
		s.recorder.IndexError(op, err)
	}
	s.logger.Debug("topology change rejected", zap.String("op", op), zap.Error(err))
	return err
}

func (s *Scene) publish(t EventType, payload any) {
	if s.events != nil {
		s.events.Publish(Event{Type: t, Payload: payload})
	}
}

// applyEntry copies a saved entry onto a node. lockByDefault decides the
// lock state when the entry carries none.
func applyEntry(n *domain.Node, entry domain.NodeLayout, lockByDefault bool) {
	if entry.Position != nil {
		n.SetCenter(entry.Position.X, entry.Position.Y)
	}
	locked := lockByDefault
	if entry.Locked != nil {
		locked = *entry.Locked
	}
	n.SetLocked(locked)
	n.SetName(entry.Name)
}

// sceneObserver publishes removal events in the order the index removes entities
type sceneObserver struct {
	s *Scene
}

func (o sceneObserver) LinkRemoved(l *domain.Link) {
	o.s.logger.Debug("link gone", zap.Stringer("link", l.Key()))
	o.s.publish(EventLinkGone, domain.FragmentLink{Child: l.Child(), Parent: l.Parent(), Weight: l.Weight()})
}

func (o sceneObserver) NodeRemoved(n *domain.Node) {
	o.s.logger.Debug("node gone", zap.Stringer("address", n.Address()))
	o.s.publish(EventNodeGone, map[string]domain.Address{"address": n.Address()})
}
