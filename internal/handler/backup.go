package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"medtrack/internal/backup"
	"medtrack/internal/model"
	"medtrack/internal/store"
)

type BackupHandler struct {
	manager  *backup.Manager
	backups  *store.BackupStore
	settings *store.SettingsStore
	logger   *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, ss *store.SettingsStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, backups: bs, settings: ss, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(50)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// RunNow starts a backup with the passphrase from the request. The passphrase
// is never persisted; it only derives the encryption key for this run.
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Passphrase == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passphrase is required"})
		return
	}

	id, err := h.manager.RunNow(r.Context(), req.Passphrase)
	if err != nil {
		h.logger.Error("run backup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	record, err := h.backups.GetByID(id)
	if err != nil || record == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backup record missing"})
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// Download streams the encrypted backup file. Decryption happens client-side
// with the passphrase.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	record, err := h.backups.GetByID(id)
	if err != nil {
		h.logger.Error("get backup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get backup"})
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup not found"})
		return
	}

	body, size, err := h.manager.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("download backup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to download backup"})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	io.Copy(w, body)
}

func (h *BackupHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetBackupSettings()
	if err != nil {
		h.logger.Error("get backup settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	// The passphrase stays server-side.
	delete(settings, "backup_encryption_passphrase")
	writeJSON(w, http.StatusOK, settings)
}

func (h *BackupHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	allowed := map[string]struct{}{
		"backup_enabled":               {},
		"backup_schedule":              {},
		"backup_retention_days":        {},
		"backup_encryption_passphrase": {},
	}
	for key, value := range req {
		if _, ok := allowed[key]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown setting " + key})
			return
		}
		if err := h.settings.Set(key, value); err != nil {
			h.logger.Error("set backup setting", "key", key, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update settings"})
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
