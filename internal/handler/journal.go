package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"medtrack/internal/auth"
	"medtrack/internal/model"
	"medtrack/internal/store"
	"medtrack/internal/websocket"
)

const defaultJournalLimit = 50

type JournalHandler struct {
	store  *store.JournalStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewJournalHandler(s *store.JournalStore, hub *websocket.Hub, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{store: s, hub: hub, logger: logger}
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := h.store.ListByUser(userID, limit)
	if err != nil {
		h.logger.Error("list journal entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list entries"})
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	entry, err := h.store.Create(userID, req.Content)
	if err != nil {
		h.logger.Error("create journal entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create entry"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("journal_entry", "created", strconv.FormatInt(entry.ID, 10), nil))
	writeJSON(w, http.StatusCreated, entry)
}

func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	entry, ok := h.ownedEntry(w, id, userID)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	updated, err := h.store.Update(entry.ID, userID, req.Content)
	if err != nil {
		h.logger.Error("update journal entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update entry"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("journal_entry", "updated", strconv.FormatInt(entry.ID, 10), nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	entry, ok := h.ownedEntry(w, id, userID)
	if !ok {
		return
	}

	if err := h.store.Delete(entry.ID, userID); err != nil {
		h.logger.Error("delete journal entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete entry"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("journal_entry", "deleted", strconv.FormatInt(entry.ID, 10), nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *JournalHandler) ownedEntry(w http.ResponseWriter, id, userID int64) (*model.JournalEntry, bool) {
	entry, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get journal entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get entry"})
		return nil, false
	}
	if entry == nil || entry.UserID != userID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return nil, false
	}
	return entry, true
}
