package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"rplview/internal/domain"
	"rplview/internal/repository"
)

// GetLayout returns the current arrangement of every node
func (h *SceneHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.scene.CaptureLayout(), http.StatusOK)
}

// PutLayout applies the layout in the body and persists it
func (h *SceneHandler) PutLayout(w http.ResponseWriter, r *http.Request) {
	var layout domain.Layout
	if err := json.NewDecoder(r.Body).Decode(&layout); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	h.scene.ApplyLayout(&layout)

	if h.store != nil {
		if err := h.store.SaveLayout(r.Context(), &layout); err != nil {
			h.logger.Error("failed to save layout", zap.Error(err))
			h.writeError(w, "Failed to save layout", err.Error(), http.StatusInternalServerError)
			return
		}
	}

	h.writeJSON(w, map[string]int{"applied": len(layout.Nodes)}, http.StatusOK)
}

// SaveLayout persists the current arrangement, keeping stored entries of
// absent nodes, and makes it the active layout
func (h *SceneHandler) SaveLayout(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	layout := h.scene.CommitLayout()
	if err := h.store.SaveLayout(r.Context(), layout); err != nil {
		h.logger.Error("failed to save layout", zap.Error(err))
		h.writeError(w, "Failed to save layout", err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("layout saved", zap.Int("nodes", len(layout.Nodes)))
	h.writeJSON(w, map[string]int{"saved": len(layout.Nodes)}, http.StatusOK)
}

// LoadLayout reads the persisted layout and applies it
func (h *SceneHandler) LoadLayout(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	layout, err := h.store.LoadLayout(r.Context())
	if err != nil {
		h.logger.Error("failed to load layout", zap.Error(err))
		h.writeError(w, "Failed to load layout", err.Error(), http.StatusInternalServerError)
		return
	}

	h.scene.ApplyLayout(layout)
	h.writeJSON(w, map[string]int{"applied": len(layout.Nodes)}, http.StatusOK)
}

// DeleteLayout unlocks every node, restores default names and empties the store
func (h *SceneHandler) DeleteLayout(w http.ResponseWriter, r *http.Request) {
	h.scene.ClearLayout()

	if h.store != nil {
		var err error
		if store, ok := h.store.(repository.NodeLayoutStore); ok {
			err = store.ClearLayout(r.Context())
		} else {
			err = h.store.SaveLayout(r.Context(), domain.NewLayout())
		}
		if err != nil {
			h.logger.Error("failed to clear layout", zap.Error(err))
			h.writeError(w, "Failed to clear layout", err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		h.writeError(w, "Layout store not configured", "Set layout.file or layout.database", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// GetNodeLayout returns the stored layout entry of one node
func (h *SceneHandler) GetNodeLayout(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	store, ok := h.requireNodeStore(w)
	if !ok {
		return
	}

	entry, err := store.GetNodeLayout(r.Context(), addr)
	if err != nil {
		h.writeError(w, "Failed to get node layout", err.Error(), http.StatusInternalServerError)
		return
	}
	if entry == nil {
		h.writeError(w, "Node layout not found", addr.String(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, entry, http.StatusOK)
}

// SaveNodeLayout stores the current position, lock and name of one node
func (h *SceneHandler) SaveNodeLayout(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	store, ok := h.requireNodeStore(w)
	if !ok {
		return
	}

	entry, err := h.scene.CommitNodeLayout(addr)
	if err != nil {
		h.writeSceneError(w, "Failed to save node layout", err)
		return
	}

	if err := store.UpsertNodeLayout(r.Context(), addr, entry); err != nil {
		h.logger.Error("failed to save node layout", zap.Stringer("address", addr), zap.Error(err))
		h.writeError(w, "Failed to save node layout", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, entry, http.StatusOK)
}

// DeleteNodeLayout forgets the stored entry of one node. The node's current
// state in the view is left alone.
func (h *SceneHandler) DeleteNodeLayout(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	store, ok := h.requireNodeStore(w)
	if !ok {
		return
	}

	if err := store.DeleteNodeLayout(r.Context(), addr); err != nil {
		h.writeError(w, "Failed to delete node layout", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) requireNodeStore(w http.ResponseWriter) (repository.NodeLayoutStore, bool) {
	store, ok := h.store.(repository.NodeLayoutStore)
	if !ok {
		h.writeError(w, "Per-node layout not supported", "Set layout.database", http.StatusServiceUnavailable)
		return nil, false
	}
	return store, true
}
