package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rplview/internal/domain"
	"rplview/internal/layout"
	"rplview/internal/topology"
)

// constRand always returns the same value
type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func newTestScene(t *testing.T) (*Scene, chan Event) {
	t.Helper()
	bus := NewEventBus()
	ch := make(chan Event, 64)
	bus.Subscribe(ch)
	engine := layout.New(layout.DefaultParams(), constRand(0.5))
	return NewScene(engine, bus, zap.NewNop()), ch
}

// drain returns the types of every queued event
func drain(ch chan Event) []EventType {
	var types []EventType
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func center(t *testing.T, s *Scene, addr domain.Address) domain.Position {
	t.Helper()
	snap := s.Snapshot()
	n, ok := snap.Node(addr)
	require.True(t, ok, "node %s missing from snapshot", addr)
	return n.Center
}

func TestSceneNetworkEvents(t *testing.T) {
	t.Run("node appears inside the plane", func(t *testing.T) {
		s, ch := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))

		assert.True(t, s.HasNode(1))
		assert.Equal(t, domain.Position{X: 250, Y: 250}, center(t, s, 1))
		assert.Equal(t, []EventType{EventNodeAppeared}, drain(ch))
	})

	t.Run("duplicate node is rejected", func(t *testing.T) {
		s, ch := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.SetName(1, "root"))
		drain(ch)

		err := s.NodeAppeared(1)
		assert.ErrorIs(t, err, topology.ErrDuplicateKey)

		snap := s.Snapshot()
		n, _ := snap.Node(1)
		assert.Equal(t, "root", n.Label, "existing node must not be clobbered")
		assert.Empty(t, drain(ch))
	})

	t.Run("link needs both endpoints", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))

		err := s.LinkAppeared(2, 1, 100)
		assert.ErrorIs(t, err, topology.ErrDanglingEndpoint)

		require.NoError(t, s.NodeAppeared(2))
		require.NoError(t, s.LinkAppeared(2, 1, 100))
		_, links := s.Len()
		assert.Equal(t, 1, links)
	})

	t.Run("node gone removes incident links first", func(t *testing.T) {
		s, ch := newTestScene(t)
		for _, addr := range []domain.Address{1, 2, 3} {
			require.NoError(t, s.NodeAppeared(addr))
		}
		require.NoError(t, s.LinkAppeared(2, 1, 100))
		require.NoError(t, s.LinkAppeared(3, 2, 100))
		drain(ch)

		require.NoError(t, s.NodeGone(2))
		assert.Equal(t, []EventType{EventLinkGone, EventLinkGone, EventNodeGone}, drain(ch))

		nodes, links := s.Len()
		assert.Equal(t, 2, nodes)
		assert.Equal(t, 0, links)

		assert.ErrorIs(t, s.NodeGone(2), topology.ErrNotFound)
	})

	t.Run("link weight change", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.NodeAppeared(2))

		err := s.LinkWeightChanged(2, 1, 50)
		assert.ErrorIs(t, err, topology.ErrNotFound)

		require.NoError(t, s.LinkAppeared(2, 1, 100))
		require.NoError(t, s.LinkWeightChanged(2, 1, 50))
		w, ok := s.LinkWeight(2, 1)
		require.True(t, ok)
		assert.Equal(t, 50.0, w)

		require.NoError(t, s.LinkGone(2, 1))
		_, ok = s.LinkWeight(2, 1)
		assert.False(t, ok)
	})

	t.Run("clear removes links before nodes", func(t *testing.T) {
		s, ch := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.NodeAppeared(2))
		require.NoError(t, s.LinkAppeared(2, 1, 100))
		drain(ch)

		s.Clear()
		assert.Equal(t, []EventType{EventLinkGone, EventNodeGone, EventNodeGone, EventTopologyCleared}, drain(ch))
	})
}

func TestSceneDrag(t *testing.T) {
	t.Run("drag update without begin is rejected", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))

		err := s.DragTo(1, 10, 10, 10*time.Millisecond)
		assert.ErrorIs(t, err, ErrNotDragging)
	})

	t.Run("unknown node", func(t *testing.T) {
		s, _ := newTestScene(t)
		assert.ErrorIs(t, s.BeginDrag(9), topology.ErrNotFound)
	})

	t.Run("dragged node ignores the simulation", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.NodeAppeared(2))
		require.NoError(t, s.LinkAppeared(2, 1, 1000))

		require.NoError(t, s.BeginDrag(1))
		require.NoError(t, s.DragTo(1, 100, 100, 0))
		for range 10 {
			s.Tick()
		}

		assert.Equal(t, domain.Position{X: 100, Y: 100}, center(t, s, 1))
		assert.NotEqual(t, domain.Position{X: 250, Y: 250}, center(t, s, 2))
	})

	t.Run("movement tracks velocity unless locked", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.BeginDrag(1))

		require.NoError(t, s.DragTo(1, 260, 250, 20*time.Millisecond))
		snap := s.Snapshot()
		n, _ := snap.Node(1)
		assert.Equal(t, domain.Position{X: 500, Y: 0}, n.Velocity)
		assert.True(t, n.Moving)

		require.NoError(t, s.SetLocked(1, true))
		require.NoError(t, s.SetVelocity(1, 0, 0))
		require.NoError(t, s.DragTo(1, 300, 250, 20*time.Millisecond))
		snap = s.Snapshot()
		n, _ = snap.Node(1)
		assert.Equal(t, domain.Position{}, n.Velocity)
		assert.Equal(t, domain.Position{X: 300, Y: 250}, n.Center)
	})

	t.Run("release flings the node", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.BeginDrag(1))
		require.NoError(t, s.EndDrag(1, 10, -5, 100*time.Millisecond))

		snap := s.Snapshot()
		n, _ := snap.Node(1)
		assert.False(t, n.Moving)
		assert.Equal(t, domain.Position{X: 100, Y: -50}, n.Velocity)

		s.Tick()
		assert.Equal(t, domain.Position{X: 254, Y: 248}, center(t, s, 1))
	})
}

func TestSceneLocking(t *testing.T) {
	s, ch := newTestScene(t)
	require.NoError(t, s.NodeAppeared(1))
	drain(ch)

	locked, err := s.ToggleLocked(1)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, s.SetVelocity(1, 100, 100))
	s.Tick()
	assert.Equal(t, domain.Position{X: 250, Y: 250}, center(t, s, 1))

	locked, err = s.ToggleLocked(1)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, []EventType{EventNodeUpdated, EventNodeUpdated}, drain(ch))

	_, err = s.ToggleLocked(7)
	assert.True(t, errors.Is(err, topology.ErrNotFound))
}

func TestSceneLayout(t *testing.T) {
	t.Run("apply locks entries without a lock value", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.NodeAppeared(2))
		require.NoError(t, s.NodeAppeared(3))

		l := domain.NewLayout()
		l.Set(1, domain.NodeLayout{Position: &domain.Position{X: 10, Y: 20}, Name: "border"})
		l.Set(2, domain.NewNodeLayout(30, 40, false))
		s.ApplyLayout(l)

		snap := s.Snapshot()
		n1, _ := snap.Node(1)
		assert.Equal(t, domain.Position{X: 10, Y: 20}, n1.Center)
		assert.True(t, n1.Locked)
		assert.Equal(t, "border", n1.Label)

		n2, _ := snap.Node(2)
		assert.Equal(t, domain.Position{X: 30, Y: 40}, n2.Center)
		assert.False(t, n2.Locked)

		n3, _ := snap.Node(3)
		assert.Equal(t, domain.Position{X: 250, Y: 250}, n3.Center)
		assert.True(t, n3.Locked)
		assert.Equal(t, "3", n3.Label)
	})

	t.Run("nodes appearing later default to unlocked", func(t *testing.T) {
		s, _ := newTestScene(t)

		l := domain.NewLayout()
		l.Set(5, domain.NodeLayout{Position: &domain.Position{X: 1, Y: 2}})
		l.Set(6, domain.NewNodeLayout(3, 4, true))
		s.ApplyLayout(l)

		require.NoError(t, s.NodeAppeared(5))
		require.NoError(t, s.NodeAppeared(6))

		snap := s.Snapshot()
		n5, _ := snap.Node(5)
		assert.Equal(t, domain.Position{X: 1, Y: 2}, n5.Center)
		assert.False(t, n5.Locked)

		n6, _ := snap.Node(6)
		assert.True(t, n6.Locked)
	})

	t.Run("capture reflects current state", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		require.NoError(t, s.SetLocked(1, true))
		require.NoError(t, s.SetName(1, "gw"))

		l := s.CaptureLayout()
		entry, ok := l.Lookup(1)
		require.True(t, ok)
		require.NotNil(t, entry.Position)
		require.NotNil(t, entry.Locked)
		assert.Equal(t, domain.Position{X: 250, Y: 250}, *entry.Position)
		assert.True(t, *entry.Locked)
		assert.Equal(t, "gw", entry.Name)
	})

	t.Run("capture keeps entries of absent nodes", func(t *testing.T) {
		s, _ := newTestScene(t)
		l := domain.NewLayout()
		l.Set(0x99, domain.NewNodeLayout(7, 8, true))
		s.ApplyLayout(l)
		require.NoError(t, s.NodeAppeared(1))

		captured := s.CaptureLayout()
		assert.Len(t, captured.Nodes, 2)
		entry, ok := captured.Lookup(0x99)
		require.True(t, ok)
		assert.Equal(t, domain.Position{X: 7, Y: 8}, *entry.Position)
		assert.True(t, *entry.Locked)

		// The capture is a copy
		captured.Set(0x99, domain.NewNodeLayout(0, 0, false))
		entry, _ = s.CaptureLayout().Lookup(0x99)
		assert.Equal(t, domain.Position{X: 7, Y: 8}, *entry.Position)
	})

	t.Run("committed layout applies to returning nodes", func(t *testing.T) {
		s, _ := newTestScene(t)
		l := domain.NewLayout()
		l.Set(0xa, domain.NewNodeLayout(10, 10, false))
		s.ApplyLayout(l)
		require.NoError(t, s.NodeAppeared(0xa))

		require.NoError(t, s.BeginDrag(0xa))
		require.NoError(t, s.DragTo(0xa, 200, 200, 0))
		require.NoError(t, s.EndDrag(0xa, 0, 0, 0))
		require.NoError(t, s.SetLocked(0xa, true))

		committed := s.CommitLayout()
		entry, _ := committed.Lookup(0xa)
		assert.Equal(t, domain.Position{X: 200, Y: 200}, *entry.Position)

		require.NoError(t, s.NodeGone(0xa))
		require.NoError(t, s.NodeAppeared(0xa))

		snap := s.Snapshot()
		n, _ := snap.Node(0xa)
		assert.Equal(t, domain.Position{X: 200, Y: 200}, n.Center)
		assert.True(t, n.Locked)
	})

	t.Run("capture without commit leaves the active layout", func(t *testing.T) {
		s, _ := newTestScene(t)
		l := domain.NewLayout()
		l.Set(0xa, domain.NewNodeLayout(10, 10, false))
		s.ApplyLayout(l)
		require.NoError(t, s.NodeAppeared(0xa))
		require.NoError(t, s.SetLocked(0xa, true))

		s.CaptureLayout()
		require.NoError(t, s.NodeGone(0xa))
		require.NoError(t, s.NodeAppeared(0xa))

		snap := s.Snapshot()
		n, _ := snap.Node(0xa)
		assert.Equal(t, domain.Position{X: 10, Y: 10}, n.Center)
		assert.False(t, n.Locked)
	})

	t.Run("commit one node", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(3))
		require.NoError(t, s.SetName(3, "relay"))

		entry, err := s.CommitNodeLayout(3)
		require.NoError(t, err)
		assert.Equal(t, "relay", entry.Name)

		require.NoError(t, s.NodeGone(3))
		require.NoError(t, s.NodeAppeared(3))
		snap := s.Snapshot()
		n, _ := snap.Node(3)
		assert.Equal(t, "relay", n.Label)

		_, err = s.CommitNodeLayout(4)
		assert.ErrorIs(t, err, topology.ErrNotFound)
	})

	t.Run("clear unlocks and restores names", func(t *testing.T) {
		s, ch := newTestScene(t)
		require.NoError(t, s.NodeAppeared(0x1ab))

		l := domain.NewLayout()
		l.Set(0x1ab, domain.NodeLayout{Name: "sensor"})
		s.ApplyLayout(l)
		drain(ch)

		s.ClearLayout()
		snap := s.Snapshot()
		n, _ := snap.Node(0x1ab)
		assert.False(t, n.Locked)
		assert.Equal(t, "ab", n.Label)
		assert.Equal(t, []EventType{EventLayoutCleared}, drain(ch))

		require.NoError(t, s.NodeAppeared(0x2ab))
		snap = s.Snapshot()
		n, _ = snap.Node(0x2ab)
		assert.False(t, n.Locked)
	})

	t.Run("nil layout", func(t *testing.T) {
		s, _ := newTestScene(t)
		require.NoError(t, s.NodeAppeared(1))
		s.ApplyLayout(nil)

		snap := s.Snapshot()
		n, _ := snap.Node(1)
		assert.True(t, n.Locked)
	})
}

func TestSceneSnapshot(t *testing.T) {
	s, ch := newTestScene(t)
	require.NoError(t, s.NodeAppeared(1))
	require.NoError(t, s.NodeAppeared(2))
	require.NoError(t, s.LinkAppeared(2, 1, 100))

	l := domain.NewLayout()
	l.Set(1, domain.NewNodeLayout(100, 100, true))
	l.Set(2, domain.NewNodeLayout(200, 300, true))
	s.ApplyLayout(l)
	require.NoError(t, s.SetInfoText(2, "rank 512"))
	drain(ch)

	s.Tick()
	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.Tick)
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Links, 1)

	link := snap.Links[0]
	assert.Equal(t, domain.Address(2), link.Child)
	assert.Equal(t, domain.Address(1), link.Parent)
	assert.Equal(t, domain.Position{X: 200, Y: 300}, link.From)
	assert.Equal(t, domain.Position{X: 100, Y: 100}, link.To)

	n2, _ := snap.Node(2)
	assert.Equal(t, "rank 512", n2.Info)

	s.PublishSnapshot()
	ev := <-ch
	assert.Equal(t, EventSnapshot, ev.Type)
	published, ok := ev.Payload.(domain.Snapshot)
	require.True(t, ok)
	assert.Len(t, published.Nodes, 2)
}

type recordingRecorder struct {
	ticks  int
	errors []string
}

func (r *recordingRecorder) ObserveTick(time.Duration, int, int) { r.ticks++ }
func (r *recordingRecorder) IndexError(op string, _ error)      { r.errors = append(r.errors, op) }

func TestSceneRecorder(t *testing.T) {
	s, _ := newTestScene(t)
	rec := &recordingRecorder{}
	s.SetRecorder(rec)

	require.NoError(t, s.NodeAppeared(1))
	assert.Error(t, s.NodeAppeared(1))
	assert.Error(t, s.LinkGone(1, 2))
	s.Tick()
	s.Tick()

	assert.Equal(t, 2, rec.ticks)
	assert.Equal(t, []string{"insert_node", "remove_link"}, rec.errors)
	assert.Equal(t, uint64(2), s.Ticks())
}
