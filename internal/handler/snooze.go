package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/taskrunner/internal/store"
	"github.com/dukerupert/taskrunner/internal/token"
)

// SnoozeHandler serves the snooze action button on reminder notifications.
type SnoozeHandler struct {
	items    *store.ItemStore
	tokens   *store.TokenStore
	issuer   *token.Issuer
	duration time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSnoozeHandler(items *store.ItemStore, tokens *store.TokenStore, issuer *token.Issuer, duration time.Duration, logger *slog.Logger) *SnoozeHandler {
	return &SnoozeHandler{
		items:    items,
		tokens:   tokens,
		issuer:   issuer,
		duration: duration,
		now:      time.Now,
		logger:   logger,
	}
}

type snoozeRequest struct {
	Token string `json:"token"`
}

type snoozeResponse struct {
	ItemID      int64     `json:"item_id"`
	SnoozeUntil time.Time `json:"snooze_until"`
}

// Snooze handles POST /api/reminders/snooze. The token is consumed before the
// item is touched, so a replay never extends the snooze.
func (h *SnoozeHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	claims, err := h.issuer.Consume(r.Context(), h.tokens, req.Token, token.ActionSnooze)
	switch {
	case errors.Is(err, token.ErrUsed):
		writeError(w, http.StatusConflict, "token already used")
		return
	case errors.Is(err, token.ErrExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	case errors.Is(err, token.ErrInvalid):
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	case err != nil:
		h.logger.Error("consume snooze token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to snooze")
		return
	}

	until := h.now().Add(h.duration)
	if err := h.items.SetSnoozeUntil(r.Context(), claims.ItemID, until); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.logger.Error("set snooze", "item_id", claims.ItemID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to snooze")
		return
	}

	h.logger.Info("item snoozed", "item_id", claims.ItemID, "until", until)
	writeJSON(w, http.StatusOK, snoozeResponse{ItemID: claims.ItemID, SnoozeUntil: until.UTC()})
}
