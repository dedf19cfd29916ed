package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rplview/internal/adapter"
	"rplview/internal/domain"
	"rplview/internal/repository"
	"rplview/internal/service"
	"rplview/internal/topology"
)

// DefaultClickThreshold is the Manhattan distance below which a drag release
// counts as a click
const DefaultClickThreshold = 4

// Simulation starts and stops the tick loop
type Simulation interface {
	Toggle(ctx context.Context) bool
	Running() bool
	Count() uint64
	Interval() time.Duration
}

// SourceController lists and triggers topology sources
type SourceController interface {
	ListSources() []adapter.SourceInfo
	TriggerSync(ctx context.Context, name string) error
	TriggerSyncAll(ctx context.Context) error
}

// SceneHandler handles the viewer API
type SceneHandler struct {
	scene          *service.Scene
	simulation     Simulation
	simulationCtx  context.Context
	sources        SourceController
	reconciler     *service.Reconciler
	store          repository.LayoutStore
	clock          clock.Clock
	clickThreshold float64
	logger         *zap.Logger

	mu    sync.Mutex
	drags map[domain.Address]*dragState
}

// dragState tracks one pointer gesture between begin and release
type dragState struct {
	startX, startY float64
	lastX, lastY   float64
	dx, dy         float64
	lastAt         time.Time
	elapsed        time.Duration
}

// NewSceneHandler creates a new scene handler
func NewSceneHandler(scene *service.Scene, logger *zap.Logger) *SceneHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneHandler{
		scene:          scene,
		clock:          clock.New(),
		clickThreshold: DefaultClickThreshold,
		logger:         logger,
		drags:          make(map[domain.Address]*dragState),
	}
}

// SetSimulation sets the tick loop. A started simulation runs until ctx is done.
func (h *SceneHandler) SetSimulation(sim Simulation, ctx context.Context) {
	h.simulation = sim
	h.simulationCtx = ctx
}

// SetSourceController sets the source registry
func (h *SceneHandler) SetSourceController(s SourceController) {
	h.sources = s
}

// SetReconciler sets the reconciler that a topology reset must forget
func (h *SceneHandler) SetReconciler(r *service.Reconciler) {
	h.reconciler = r
}

// SetLayoutStore sets where layouts are saved
func (h *SceneHandler) SetLayoutStore(store repository.LayoutStore) {
	h.store = store
}

// SetClickThreshold sets the drag-click threshold
func (h *SceneHandler) SetClickThreshold(threshold float64) {
	h.clickThreshold = threshold
}

// SetClock replaces the clock used to time drag movements
func (h *SceneHandler) SetClock(clk clock.Clock) {
	h.clock = clk
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ResetTopology removes every node and link. Sources refill the view on
// their next sync; saved layout entries apply again as nodes reappear.
func (h *SceneHandler) ResetTopology(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	clear(h.drags)
	h.mu.Unlock()

	if h.reconciler != nil {
		h.reconciler.ResetSink(h.scene.Clear)
	} else {
		h.scene.Clear()
	}

	h.logger.Info("topology reset")
	w.WriteHeader(http.StatusNoContent)
}

// GetSnapshot returns the current view
func (h *SceneHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.scene.Snapshot(), http.StatusOK)
}

// GetNode returns a single node as the renderer sees it
func (h *SceneHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	snap := h.scene.Snapshot()
	node, found := snap.Node(addr)
	if !found {
		h.writeError(w, "Not found", "node "+addr.String()+" not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, node, http.StatusOK)
}

// NodeUpdate is the body of a node update; absent fields are left alone
type NodeUpdate struct {
	Name   *string `json:"name"`
	Info   *string `json:"info"`
	Locked *bool   `json:"locked"`
}

// UpdateNode sets a node's name, info text or lock
func (h *SceneHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	var req NodeUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	if req.Name != nil {
		err = h.scene.SetName(addr, *req.Name)
	}
	if err == nil && req.Info != nil {
		err = h.scene.SetInfoText(addr, *req.Info)
	}
	if err == nil && req.Locked != nil {
		err = h.scene.SetLocked(addr, *req.Locked)
	}
	if err != nil {
		h.writeSceneError(w, "Failed to update node", err)
		return
	}

	h.GetNode(w, r)
}

// ToggleLock flips a node's lock
func (h *SceneHandler) ToggleLock(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	locked, err := h.scene.ToggleLocked(addr)
	if err != nil {
		h.writeSceneError(w, "Failed to toggle lock", err)
		return
	}
	h.writeJSON(w, map[string]bool{"locked": locked}, http.StatusOK)
}

// PointerRequest carries a pointer position in scene coordinates
type PointerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DragResponse reports how a release was interpreted
type DragResponse struct {
	Click    bool                `json:"click"`
	Node     domain.SnapshotNode `json:"node"`
	Velocity domain.Position     `json:"velocity"`
}

// BeginDrag grabs a node at the pointer position
func (h *SceneHandler) BeginDrag(w http.ResponseWriter, r *http.Request) {
	addr, req, ok := h.pointerRequest(w, r)
	if !ok {
		return
	}

	if err := h.scene.BeginDrag(addr); err != nil {
		h.writeSceneError(w, "Failed to begin drag", err)
		return
	}

	h.mu.Lock()
	h.drags[addr] = &dragState{
		startX: req.X, startY: req.Y,
		lastX: req.X, lastY: req.Y,
		lastAt: h.clock.Now(),
	}
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// MoveDrag moves a grabbed node to the pointer position
func (h *SceneHandler) MoveDrag(w http.ResponseWriter, r *http.Request) {
	addr, req, ok := h.pointerRequest(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, dragging := h.drags[addr]
	if !dragging {
		h.writeSceneError(w, "Failed to move node", service.ErrNotDragging)
		return
	}

	now := h.clock.Now()
	elapsed := now.Sub(state.lastAt)
	if err := h.scene.DragTo(addr, req.X, req.Y, elapsed); err != nil {
		delete(h.drags, addr)
		h.writeSceneError(w, "Failed to move node", err)
		return
	}

	state.dx, state.dy = req.X-state.lastX, req.Y-state.lastY
	state.lastX, state.lastY = req.X, req.Y
	state.elapsed = elapsed
	state.lastAt = now

	w.WriteHeader(http.StatusNoContent)
}

// EndDrag releases a grabbed node. A release close to where the drag began is
// a click and selects the node; anything else flings the node with the
// velocity of the last movement.
func (h *SceneHandler) EndDrag(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	state, dragging := h.drags[addr]
	delete(h.drags, addr)
	h.mu.Unlock()

	if !dragging {
		h.writeSceneError(w, "Failed to release node", service.ErrNotDragging)
		return
	}

	click := math.Abs(state.lastX-state.startX)+math.Abs(state.lastY-state.startY) < h.clickThreshold

	// A click hands the node back with the velocity it already has
	var err error
	if click {
		err = h.scene.EndDrag(addr, 0, 0, 0)
		if err == nil {
			err = h.scene.Select(addr)
		}
	} else {
		err = h.scene.EndDrag(addr, state.dx, state.dy, state.elapsed)
	}
	if err != nil {
		h.writeSceneError(w, "Failed to release node", err)
		return
	}

	snap := h.scene.Snapshot()
	node, _ := snap.Node(addr)
	h.writeJSON(w, DragResponse{Click: click, Node: node, Velocity: node.Velocity}, http.StatusOK)
}

// SimulationStatus describes the tick loop
type SimulationStatus struct {
	Running  bool   `json:"running"`
	Ticks    uint64 `json:"ticks"`
	Interval string `json:"interval"`
}

// GetSimulation reports whether the simulation is running
func (h *SceneHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	if h.simulation == nil {
		h.writeError(w, "Simulation not configured", "", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, h.simulationStatus(), http.StatusOK)
}

// ToggleSimulation starts or stops the simulation
func (h *SceneHandler) ToggleSimulation(w http.ResponseWriter, r *http.Request) {
	if h.simulation == nil {
		h.writeError(w, "Simulation not configured", "", http.StatusServiceUnavailable)
		return
	}

	ctx := h.simulationCtx
	if ctx == nil {
		ctx = context.Background()
	}
	running := h.simulation.Toggle(ctx)
	h.scene.SimulationToggled(running)
	h.logger.Info("simulation toggled", zap.Bool("running", running))

	h.writeJSON(w, h.simulationStatus(), http.StatusOK)
}

func (h *SceneHandler) simulationStatus() SimulationStatus {
	return SimulationStatus{
		Running:  h.simulation.Running(),
		Ticks:    h.scene.Ticks(),
		Interval: h.simulation.Interval().String(),
	}
}

// ListSources returns the registered topology sources
func (h *SceneHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if h.sources == nil {
		h.writeJSON(w, []adapter.SourceInfo{}, http.StatusOK)
		return
	}
	h.writeJSON(w, h.sources.ListSources(), http.StatusOK)
}

// SyncSources triggers every enabled source
func (h *SceneHandler) SyncSources(w http.ResponseWriter, r *http.Request) {
	if h.sources == nil {
		h.writeError(w, "Discovery not configured", "No source registry is set", http.StatusServiceUnavailable)
		return
	}

	// Scans can outlive the request
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := h.sources.TriggerSyncAll(ctx); err != nil {
			h.logger.Warn("source sync failed", zap.Error(err))
		}
	}()

	h.writeJSON(w, map[string]string{"status": "started"}, http.StatusAccepted)
}

// SyncSource triggers one source and waits for it
func (h *SceneHandler) SyncSource(w http.ResponseWriter, r *http.Request) {
	if h.sources == nil {
		h.writeError(w, "Discovery not configured", "No source registry is set", http.StatusServiceUnavailable)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.sources.TriggerSync(r.Context(), name); err != nil {
		h.logger.Warn("source sync failed", zap.String("source", name), zap.Error(err))
		h.writeError(w, "Failed to sync source", err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, map[string]string{"status": "synced", "source": name}, http.StatusOK)
}

// Helper methods

func (h *SceneHandler) addressParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		h.writeError(w, "Invalid node address", err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return addr, true
}

func (h *SceneHandler) pointerRequest(w http.ResponseWriter, r *http.Request) (domain.Address, PointerRequest, bool) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return 0, PointerRequest{}, false
	}

	var req PointerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return 0, PointerRequest{}, false
	}
	return addr, req, true
}

// writeSceneError maps scene errors onto status codes
func (h *SceneHandler) writeSceneError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, topology.ErrNotFound):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrNotDragging):
		h.writeError(w, msg, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, zap.Error(err))
		h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

func (h *SceneHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

func (h *SceneHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Warn("failed to encode error response", zap.Error(err))
	}
}
