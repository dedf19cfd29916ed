package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rplview/internal/adapter"
	"rplview/internal/domain"
	"rplview/internal/layout"
	"rplview/internal/repository/sqlite"
	"rplview/internal/service"
)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

// memStore keeps a layout in memory
type memStore struct {
	layout  *domain.Layout
	saveErr error
}

func (m *memStore) LoadLayout(ctx context.Context) (*domain.Layout, error) {
	if m.layout == nil {
		return domain.NewLayout(), nil
	}
	return m.layout, nil
}

func (m *memStore) SaveLayout(ctx context.Context, l *domain.Layout) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.layout = l
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeSimulation struct {
	running bool
	ctx     context.Context
}

func (f *fakeSimulation) Toggle(ctx context.Context) bool {
	f.ctx = ctx
	f.running = !f.running
	return f.running
}
func (f *fakeSimulation) Running() bool           { return f.running }
func (f *fakeSimulation) Count() uint64           { return 0 }
func (f *fakeSimulation) Interval() time.Duration { return 40 * time.Millisecond }

type fakeSources struct {
	mu     sync.Mutex
	synced []string
	err    error
}

func (f *fakeSources) ListSources() []adapter.SourceInfo {
	return []adapter.SourceInfo{{Name: "nmap", Type: adapter.SourceTypePolling, Enabled: true, PollInterval: "5m0s"}}
}

func (f *fakeSources) TriggerSync(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, name)
	return f.err
}

func (f *fakeSources) TriggerSyncAll(ctx context.Context) error {
	return f.TriggerSync(ctx, "*")
}

type fixture struct {
	scene   *service.Scene
	events  chan service.Event
	handler *SceneHandler
	router  http.Handler
	clock   *clock.Mock
	store   *memStore
}

func newFixture(t *testing.T, addrs ...domain.Address) *fixture {
	t.Helper()

	bus := service.NewEventBus()
	events := make(chan service.Event, 64)
	bus.Subscribe(events)

	scene := service.NewScene(layout.New(layout.DefaultParams(), constRand(0.5)), bus, zap.NewNop())
	for _, addr := range addrs {
		require.NoError(t, scene.NodeAppeared(addr))
	}

	mock := clock.NewMock()
	store := &memStore{}
	h := NewSceneHandler(scene, zap.NewNop())
	h.SetClock(mock)
	h.SetLayoutStore(store)

	return &fixture{
		scene:   scene,
		events:  events,
		handler: h,
		router:  NewRouter(h, RouterConfig{}),
		clock:   mock,
		store:   store,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func (f *fixture) eventTypes() []service.EventType {
	var types []service.EventType
	for {
		select {
		case ev := <-f.events:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t, 1, 2)
	require.NoError(t, f.scene.LinkAppeared(2, 1, 100))

	rec := f.do(t, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	snap := decode[domain.Snapshot](t, rec)
	assert.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Links, 1)
	assert.Equal(t, domain.Address(2), snap.Links[0].Child)
}

func TestNodeEndpoints(t *testing.T) {
	f := newFixture(t, 0x1a)

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/nodes/0x1a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		node := decode[domain.SnapshotNode](t, rec)
		assert.Equal(t, domain.Address(0x1a), node.Address)
		assert.Equal(t, "1a", node.Label)
	})

	t.Run("bad address", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/nodes/zz", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid node address", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("missing node", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/nodes/ff", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		name := "gw"
		rec = f.do(t, http.MethodPut, "/api/nodes/ff", NodeUpdate{Name: &name})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		name, locked := "gateway", true
		rec := f.do(t, http.MethodPut, "/api/nodes/1a", NodeUpdate{Name: &name, Locked: &locked})
		require.Equal(t, http.StatusOK, rec.Code)

		node := decode[domain.SnapshotNode](t, rec)
		assert.Equal(t, "gateway", node.Label)
		assert.True(t, node.Locked)
	})

	t.Run("toggle lock", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/nodes/1a/lock", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]bool{"locked": false}, decode[map[string]bool](t, rec))
	})
}

func TestDragFling(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(t, http.MethodPost, "/api/nodes/1/drag/begin", PointerRequest{X: 250, Y: 250})
	require.Equal(t, http.StatusNoContent, rec.Code)

	f.clock.Add(100 * time.Millisecond)
	rec = f.do(t, http.MethodPost, "/api/nodes/1/drag/move", PointerRequest{X: 260, Y: 250})
	require.Equal(t, http.StatusNoContent, rec.Code)

	snap := f.scene.Snapshot()
	node, _ := snap.Node(1)
	assert.True(t, node.Moving)
	assert.Equal(t, domain.Position{X: 260, Y: 250}, node.Center)

	f.clock.Add(50 * time.Millisecond)
	rec = f.do(t, http.MethodPost, "/api/nodes/1/drag/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[DragResponse](t, rec)
	assert.False(t, resp.Click)
	assert.False(t, resp.Node.Moving)
	assert.Equal(t, domain.Position{X: 100, Y: 0}, resp.Velocity)
	assert.NotContains(t, f.eventTypes(), service.EventNodeSelected)
}

func TestDragClick(t *testing.T) {
	t.Run("small move selects", func(t *testing.T) {
		f := newFixture(t, 1)
		f.eventTypes()

		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/nodes/1/drag/begin", PointerRequest{X: 250, Y: 250}).Code)
		f.clock.Add(10 * time.Millisecond)
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/nodes/1/drag/move", PointerRequest{X: 251, Y: 251}).Code)

		rec := f.do(t, http.MethodPost, "/api/nodes/1/drag/end", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[DragResponse](t, rec)
		assert.True(t, resp.Click)
		assert.False(t, resp.Node.Moving)
		assert.Contains(t, f.eventTypes(), service.EventNodeSelected)
	})

	t.Run("click keeps a moving node moving", func(t *testing.T) {
		f := newFixture(t, 1)
		require.NoError(t, f.scene.SetVelocity(1, 30, -5))

		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/nodes/1/drag/begin", PointerRequest{X: 250, Y: 250}).Code)
		rec := f.do(t, http.MethodPost, "/api/nodes/1/drag/end", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[DragResponse](t, rec)
		assert.True(t, resp.Click)
		assert.Equal(t, domain.Position{X: 30, Y: -5}, resp.Velocity)
	})
}

func TestDragErrors(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(t, http.MethodPost, "/api/nodes/1/drag/move", PointerRequest{X: 1, Y: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/nodes/1/drag/end", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/nodes/9/drag/begin", PointerRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/nodes/1/drag/begin", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The node vanishing mid-drag ends the gesture
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/nodes/1/drag/begin", PointerRequest{}).Code)
	require.NoError(t, f.scene.NodeGone(1))
	rec = f.do(t, http.MethodPost, "/api/nodes/1/drag/move", PointerRequest{X: 5, Y: 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/nodes/1/drag/end", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLayoutEndpoints(t *testing.T) {
	f := newFixture(t, 1, 2)

	t.Run("put applies and persists", func(t *testing.T) {
		body := map[string]any{
			"nodes": map[string]any{
				"1": map[string]any{"position": map[string]float64{"x": 10, "y": 20}, "name": "root"},
			},
		}
		rec := f.do(t, http.MethodPut, "/api/layout", body)
		require.Equal(t, http.StatusOK, rec.Code)

		snap := f.scene.Snapshot()
		node, _ := snap.Node(1)
		assert.Equal(t, domain.Position{X: 10, Y: 20}, node.Center)
		assert.Equal(t, "root", node.Label)
		assert.True(t, node.Locked, "entries without a lock value lock existing nodes")

		require.NotNil(t, f.store.layout)
		assert.Contains(t, f.store.layout.Nodes, domain.Address(1))
	})

	t.Run("get captures every node", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/layout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		l := decode[domain.Layout](t, rec)
		assert.Len(t, l.Nodes, 2)
	})

	t.Run("save then load", func(t *testing.T) {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/layout/save", nil).Code)
		assert.Len(t, f.store.layout.Nodes, 2)

		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/layout/load", nil).Code)
	})

	t.Run("delete unlocks", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/layout", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		snap := f.scene.Snapshot()
		node, _ := snap.Node(1)
		assert.False(t, node.Locked)
		assert.Equal(t, "1", node.Label)
		assert.Empty(t, f.store.layout.Nodes)
	})

	t.Run("store failure", func(t *testing.T) {
		f.store.saveErr = errors.New("disk full")
		rec := f.do(t, http.MethodPost, "/api/layout/save", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "disk full", decode[ErrorResponse](t, rec).Details)
		f.store.saveErr = nil
	})

	t.Run("no store", func(t *testing.T) {
		f.handler.SetLayoutStore(nil)
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/layout/load", nil).Code)
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/layout", nil).Code)
	})
}

func TestNodeLayoutEndpoints(t *testing.T) {
	f := newFixture(t, 0x1a)

	t.Run("needs per-node store", func(t *testing.T) {
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/nodes/1a/layout", nil).Code)
	})

	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	f.handler.SetLayoutStore(repo)

	t.Run("nothing stored", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nodes/1a/layout", nil).Code)
	})

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, f.scene.SetLocked(0x1a, true))
		require.NoError(t, f.scene.SetName(0x1a, "gateway"))

		rec := f.do(t, http.MethodPost, "/api/nodes/1a/layout", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/nodes/1a/layout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entry := decode[domain.NodeLayout](t, rec)
		require.NotNil(t, entry.Locked)
		assert.True(t, *entry.Locked)
		assert.Equal(t, "gateway", entry.Name)
		require.NotNil(t, entry.Position)
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/nodes/ff/layout", nil).Code)
	})

	t.Run("delete keeps the view", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/nodes/1a/layout", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nodes/1a/layout", nil).Code)

		snap := f.scene.Snapshot()
		node, _ := snap.Node(0x1a)
		assert.True(t, node.Locked)
	})
}

func TestSaveLayoutBecomesActive(t *testing.T) {
	f := newFixture(t, 0xa)
	l := domain.NewLayout()
	l.Set(0xa, domain.NewNodeLayout(10, 10, false))
	l.Set(0x99, domain.NewNodeLayout(7, 8, true))
	f.scene.ApplyLayout(l)
	require.NoError(t, f.scene.SetLocked(0xa, true))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/layout/save", nil).Code)
	assert.Contains(t, f.store.layout.Nodes, domain.Address(0x99), "absent nodes keep their entries")

	require.NoError(t, f.scene.NodeGone(0xa))
	require.NoError(t, f.scene.NodeAppeared(0xa))
	snap := f.scene.Snapshot()
	node, _ := snap.Node(0xa)
	assert.True(t, node.Locked)
}

func TestResetTopology(t *testing.T) {
	f := newFixture(t)
	reconciler := service.NewReconciler(f.scene, nil)
	f.handler.SetReconciler(reconciler)

	fragment := domain.NewFragment()
	fragment.AddLink(2, 1, 100)
	_, err := reconciler.ReconcileFragment(context.Background(), "file", fragment)
	require.NoError(t, err)
	f.eventTypes()

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/topology", nil).Code)
	nodes, links := f.scene.Len()
	assert.Zero(t, nodes)
	assert.Zero(t, links)
	assert.Contains(t, f.eventTypes(), service.EventTopologyCleared)
	assert.Empty(t, reconciler.Sources())

	// The next observation rebuilds the view
	res, err := reconciler.ReconcileFragment(context.Background(), "file", fragment)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NodesAdded)
	assert.Equal(t, 1, res.LinksAdded)
}

func TestSimulationEndpoints(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/simulation", nil).Code)

	sim := &fakeSimulation{}
	ctx := context.WithValue(context.Background(), struct{}{}, "app")
	f.handler.SetSimulation(sim, ctx)
	f.eventTypes()

	rec := f.do(t, http.MethodPost, "/api/simulation/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SimulationStatus](t, rec)
	assert.True(t, status.Running)
	assert.Equal(t, "40ms", status.Interval)
	assert.Same(t, ctx, sim.ctx, "simulation must outlive the request")
	assert.Equal(t, []service.EventType{service.EventSimulationToggled}, f.eventTypes())

	rec = f.do(t, http.MethodGet, "/api/simulation", nil)
	assert.True(t, decode[SimulationStatus](t, rec).Running)
}

func TestSourceEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]adapter.SourceInfo](t, rec))
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/sources/sync", nil).Code)

	sources := &fakeSources{}
	f.handler.SetSourceController(sources)

	rec = f.do(t, http.MethodGet, "/api/sources", nil)
	assert.Equal(t, "nmap", decode[[]adapter.SourceInfo](t, rec)[0].Name)

	rec = f.do(t, http.MethodPost, "/api/sources/file/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sources/sync", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		sources.mu.Lock()
		defer sources.mu.Unlock()
		return len(sources.synced) == 2
	}, time.Second, 5*time.Millisecond)

	sources.err = errors.New("scan failed")
	rec = f.do(t, http.MethodPost, "/api/sources/nmap/sync", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type countingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (c *countingObserver) ObserveRequest(method string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
}

func TestRouterExtras(t *testing.T) {
	f := newFixture(t)
	obs := &countingObserver{}
	router := NewRouter(f.handler, RouterConfig{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
		Observer: obs,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusNotFound}, obs.statuses)
}
