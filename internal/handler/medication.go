package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medtrack/internal/adherence"
	"medtrack/internal/auth"
	"medtrack/internal/model"
	"medtrack/internal/schedule"
	"medtrack/internal/store"
	"medtrack/internal/websocket"
)

type MedicationHandler struct {
	store   *store.MedicationStore
	toggler *adherence.Toggler
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewMedicationHandler(s *store.MedicationStore, t *adherence.Toggler, hub *websocket.Hub, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{store: s, toggler: t, hub: hub, logger: logger}
}

// doseView is one dose instant with its resolved taken state.
type doseView struct {
	Time  string    `json:"time"`
	At    time.Time `json:"at"`
	Taken bool      `json:"taken"`
}

// medicationDayView is one medication's doses on a given date.
type medicationDayView struct {
	Medication model.Medication `json:"medication"`
	Doses      []doseView       `json:"doses"`
	AllTaken   bool             `json:"all_taken"`
}

func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	meds, err := h.store.ListByUser(userID)
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list medications"})
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Name      string   `json:"name"`
		Dosage    string   `json:"dosage"`
		Frequency string   `json:"frequency"`
		TimeOfDay []string `json:"time_of_day"`
		Notes     string   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Frequency == "" {
		req.Frequency = model.FreqOnceDaily
	}
	if !model.ValidFrequency(req.Frequency) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown frequency"})
		return
	}
	if msg := validateTimes(req.TimeOfDay); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	med, err := h.store.Create(userID, req.Name, req.Dosage, req.Frequency, req.TimeOfDay, req.Notes)
	if err != nil {
		h.logger.Error("create medication", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create medication"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("medication", "created", med.ID, nil))
	writeJSON(w, http.StatusCreated, med)
}

func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	med, ok := h.ownedMedication(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		Name      string   `json:"name"`
		Dosage    string   `json:"dosage"`
		Frequency string   `json:"frequency"`
		TimeOfDay []string `json:"time_of_day"`
		Notes     string   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Frequency == "" {
		req.Frequency = med.Frequency
	}
	if !model.ValidFrequency(req.Frequency) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown frequency"})
		return
	}
	if msg := validateTimes(req.TimeOfDay); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	updated, err := h.store.Update(med.ID, req.Name, req.Dosage, req.Frequency, req.TimeOfDay, req.Notes)
	if err != nil {
		h.logger.Error("update medication", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update medication"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("medication", "updated", med.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	med, ok := h.ownedMedication(w, r, userID)
	if !ok {
		return
	}

	if err := h.store.Delete(med.ID, userID); err != nil {
		h.logger.Error("delete medication", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete medication"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("medication", "deleted", med.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Day returns every medication's dose instants for one date with their taken
// state resolved, plus whether the whole day is complete.
func (h *MedicationHandler) Day(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, err := parseDateParam(r, "date", time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	meds, err := h.store.ListByUser(userID)
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list medications"})
		return
	}

	dayStart, dayEnd := adherence.DayBounds(date)
	logs, err := h.store.ListLogsInRange(userID, dayStart, dayEnd)
	if err != nil {
		h.logger.Error("list logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list logs"})
		return
	}

	views := make([]medicationDayView, 0, len(meds))
	complete := true
	for _, med := range meds {
		instants, err := schedule.Expand(med, date)
		if err != nil {
			h.logger.Error("expand schedule", "medication_id", med.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "medication has an invalid schedule"})
			return
		}

		view := medicationDayView{Medication: med, Doses: make([]doseView, 0, len(instants)), AllTaken: true}
		for _, instant := range instants {
			taken := adherence.Resolve(instant, logs)
			if !taken {
				view.AllTaken = false
				complete = false
			}
			view.Doses = append(view.Doses, doseView{Time: instant.TimeOfDay, At: instant.At, Taken: taken})
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":        date.Format("2006-01-02"),
		"medications": views,
		"complete":    complete,
	})
}

// dayStatus is one calendar cell: the date and its completion summary.
type dayStatus struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Taken    int    `json:"taken"`
	Complete bool   `json:"complete"`
}

// Calendar returns per-day completion for a date range, inclusive.
func (h *MedicationHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	start, err := parseDateParam(r, "start", time.Time{})
	if err != nil || start.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := parseDateParam(r, "end", time.Time{})
	if err != nil || end.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be YYYY-MM-DD"})
		return
	}
	if end.Before(start) || end.Sub(start) > 366*24*time.Hour {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date range"})
		return
	}

	meds, err := h.store.ListByUser(userID)
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list medications"})
		return
	}

	rangeStart, _ := adherence.DayBounds(start)
	_, rangeEnd := adherence.DayBounds(end)
	logs, err := h.store.ListLogsInRange(userID, rangeStart, rangeEnd)
	if err != nil {
		h.logger.Error("list logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list logs"})
		return
	}

	var days []dayStatus
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		status := dayStatus{Date: d.Format("2006-01-02"), Complete: true}
		for _, med := range meds {
			instants, err := schedule.Expand(med, d)
			if err != nil {
				h.logger.Error("expand schedule", "medication_id", med.ID, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "medication has an invalid schedule"})
				return
			}
			for _, instant := range instants {
				status.Total++
				if adherence.Resolve(instant, logs) {
					status.Taken++
				} else {
					status.Complete = false
				}
			}
		}
		days = append(days, status)
	}

	writeJSON(w, http.StatusOK, days)
}

// Toggle records or removes today's log for one dose of a medication.
func (h *MedicationHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	med, ok := h.ownedMedication(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		ScheduledTime string `json:"scheduled_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	scheduled := false
	for _, tod := range med.TimeOfDay {
		if tod == req.ScheduledTime {
			scheduled = true
			break
		}
	}
	if !scheduled {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_time is not part of this medication's schedule"})
		return
	}

	ev, err := h.toggler.Toggle(userID, med.ID, req.ScheduledTime)
	if err != nil {
		if errors.Is(err, adherence.ErrDuplicateLogs) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "conflicting logs exist for this dose; resolve manually"})
			return
		}
		if errors.Is(err, schedule.ErrInvalidTimeOfDay) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_time must be HH:MM"})
			return
		}
		h.logger.Error("toggle dose", "medication_id", med.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to toggle dose"})
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("medication_log", string(ev.Action), med.ID,
		map[string]any{"scheduled_time": ev.ScheduledTime}))
	writeJSON(w, http.StatusOK, ev)
}

// Logs returns the user's raw logs in a taken_at range, for history views.
func (h *MedicationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	start, err := parseDateParam(r, "start", time.Now().AddDate(0, 0, -30))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := parseDateParam(r, "end", time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be YYYY-MM-DD"})
		return
	}

	rangeStart, _ := adherence.DayBounds(start)
	_, rangeEnd := adherence.DayBounds(end)
	logs, err := h.store.ListLogsInRange(userID, rangeStart, rangeEnd)
	if err != nil {
		h.logger.Error("list logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list logs"})
		return
	}
	if logs == nil {
		logs = []model.MedicationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ownedMedication loads the medication from the path id and checks ownership.
// Writes the error response itself when the medication is missing or foreign.
func (h *MedicationHandler) ownedMedication(w http.ResponseWriter, r *http.Request, userID int64) (*model.Medication, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	med, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get medication"})
		return nil, false
	}
	if med == nil || med.UserID != userID {
		// Same response for both cases so ids cannot be probed.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "medication not found"})
		return nil, false
	}
	return med, true
}

func validateTimes(times []string) string {
	if len(times) == 0 {
		return "time_of_day must have at least one entry"
	}
	seen := make(map[string]struct{}, len(times))
	for _, tod := range times {
		if _, _, err := schedule.ParseTimeOfDay(tod); err != nil {
			return "time_of_day entries must be 24-hour HH:MM"
		}
		if _, dup := seen[tod]; dup {
			return "time_of_day entries must be unique"
		}
		seen[tod] = struct{}{}
	}
	return ""
}

// parseDateParam reads a YYYY-MM-DD query parameter in local time, using
// fallback when the parameter is absent.
func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.Local)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
