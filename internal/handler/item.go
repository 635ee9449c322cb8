package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskrunner/internal/store"
)

// ItemHandler records and reverts completions.
type ItemHandler struct {
	items  *store.ItemStore
	now    func() time.Time
	logger *slog.Logger
}

func NewItemHandler(items *store.ItemStore, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, now: time.Now, logger: logger}
}

// Get handles GET /api/items/{id}.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	item, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get item", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Complete handles POST /api/items/{id}/complete.
func (h *ItemHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.items.Complete(r.Context(), id, h.now())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("complete item", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UndoCompletion handles DELETE /api/items/{id}/completions/latest.
func (h *ItemHandler) UndoCompletion(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.items.UndoLastCompletion(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no completion to undo")
		return
	}
	if err != nil {
		h.logger.Error("undo completion", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to undo completion")
		return
	}
	writeJSON(w, http.StatusOK, item)
}
