package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medtrack/internal/adherence"
	"medtrack/internal/auth"
	"medtrack/internal/database"
	"medtrack/internal/model"
	"medtrack/internal/store"
	"medtrack/internal/websocket"
)

func setupMedicationHandlerTest(t *testing.T) (*MedicationHandler, *store.MedicationStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	us := store.NewUserStore(db)
	u, err := us.Create("alice@example.com", "Alice", "h")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	ms := store.NewMedicationStore(db)
	toggler := adherence.NewToggler(ms, logger)
	hub := websocket.NewHub(logger)
	return NewMedicationHandler(ms, toggler, hub, logger), ms, u.ID
}

func authedRequest(t *testing.T, userID int64, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	return r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID}))
}

func createMedication(t *testing.T, h *MedicationHandler, userID int64, times []string) model.Medication {
	t.Helper()
	w := httptest.NewRecorder()
	h.Create(w, authedRequest(t, userID, "POST", "/api/medications", map[string]any{
		"name":        "Metformin",
		"dosage":      "500mg",
		"frequency":   model.FreqTwiceDaily,
		"time_of_day": times,
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create medication status = %d, body %s", w.Code, w.Body.String())
	}
	var med model.Medication
	if err := json.NewDecoder(w.Body).Decode(&med); err != nil {
		t.Fatalf("decode medication: %v", err)
	}
	return med
}

func TestMedicationCreateAndList(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00", "20:00"})
	if med.ID == "" || med.UserID != uid {
		t.Errorf("medication = %+v", med)
	}

	w := httptest.NewRecorder()
	h.List(w, authedRequest(t, uid, "GET", "/api/medications", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var meds []model.Medication
	json.NewDecoder(w.Body).Decode(&meds)
	if len(meds) != 1 || meds[0].ID != med.ID {
		t.Errorf("list = %+v", meds)
	}
}

func TestMedicationCreateValidation(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"time_of_day": []string{"08:00"}}},
		{"no times", map[string]any{"name": "X", "time_of_day": []string{}}},
		{"bad time format", map[string]any{"name": "X", "time_of_day": []string{"8:00"}}},
		{"duplicate times", map[string]any{"name": "X", "time_of_day": []string{"08:00", "08:00"}}},
		{"unknown frequency", map[string]any{"name": "X", "frequency": "hourly", "time_of_day": []string{"08:00"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Create(w, authedRequest(t, uid, "POST", "/api/medications", tc.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestToggleAddThenRemove(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00", "20:00"})

	toggle := func() (*httptest.ResponseRecorder, adherence.LogChangeEvent) {
		r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
			map[string]string{"scheduled_time": "08:00"})
		r.SetPathValue("id", med.ID)
		w := httptest.NewRecorder()
		h.Toggle(w, r)
		var ev adherence.LogChangeEvent
		json.NewDecoder(w.Body).Decode(&ev)
		return w, ev
	}

	w, ev := toggle()
	if w.Code != http.StatusOK || ev.Action != adherence.ActionAdded {
		t.Fatalf("first toggle: status %d, action %q", w.Code, ev.Action)
	}
	if ev.Log == nil || ev.Log.ScheduledTime != "08:00" {
		t.Errorf("event log = %+v", ev.Log)
	}

	w, ev = toggle()
	if w.Code != http.StatusOK || ev.Action != adherence.ActionRemoved {
		t.Fatalf("second toggle: status %d, action %q", w.Code, ev.Action)
	}
}

func TestToggleTimeNotInSchedule(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00"})

	r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "12:00"})
	r.SetPathValue("id", med.ID)
	w := httptest.NewRecorder()
	h.Toggle(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestToggleForeignMedication(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00"})

	// A different user gets 404, indistinguishable from a missing id.
	r := authedRequest(t, uid+1, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "08:00"})
	r.SetPathValue("id", med.ID)
	w := httptest.NewRecorder()
	h.Toggle(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestToggleConflictingLogs(t *testing.T) {
	h, ms, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00"})

	// Two logs for the same dose day violate the one-log invariant; the
	// toggle must refuse rather than guess which one to delete.
	now := time.Now()
	if _, err := ms.InsertLog(med.ID, uid, "08:00", now); err != nil {
		t.Fatalf("insert log: %v", err)
	}
	if _, err := ms.InsertLog(med.ID, uid, "08:00", now.Add(time.Minute)); err != nil {
		t.Fatalf("insert log: %v", err)
	}

	r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "08:00"})
	r.SetPathValue("id", med.ID)
	w := httptest.NewRecorder()
	h.Toggle(w, r)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDayEmptyIsComplete(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)

	w := httptest.NewRecorder()
	h.Day(w, authedRequest(t, uid, "GET", "/api/medications/day", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("day status = %d", w.Code)
	}
	var resp struct {
		Complete    bool                `json:"complete"`
		Medications []medicationDayView `json:"medications"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Complete {
		t.Error("day with no medications should be complete")
	}
	if len(resp.Medications) != 0 {
		t.Errorf("medications = %+v", resp.Medications)
	}
}

func TestDayReflectsToggle(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00", "20:00"})

	r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "08:00"})
	r.SetPathValue("id", med.ID)
	h.Toggle(httptest.NewRecorder(), r)

	w := httptest.NewRecorder()
	h.Day(w, authedRequest(t, uid, "GET", "/api/medications/day", nil))
	var resp struct {
		Complete    bool                `json:"complete"`
		Medications []medicationDayView `json:"medications"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Complete {
		t.Error("day should not be complete with one dose untaken")
	}
	if len(resp.Medications) != 1 || len(resp.Medications[0].Doses) != 2 {
		t.Fatalf("medications = %+v", resp.Medications)
	}
	doses := resp.Medications[0].Doses
	if !doses[0].Taken || doses[0].Time != "08:00" {
		t.Errorf("first dose = %+v", doses[0])
	}
	if doses[1].Taken {
		t.Errorf("second dose = %+v", doses[1])
	}
}

func TestCalendarRange(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00"})

	r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "08:00"})
	r.SetPathValue("id", med.ID)
	h.Toggle(httptest.NewRecorder(), r)

	today := time.Now()
	start := today.AddDate(0, 0, -1).Format("2006-01-02")
	end := today.AddDate(0, 0, 1).Format("2006-01-02")
	target := fmt.Sprintf("/api/medications/calendar?start=%s&end=%s", start, end)

	w := httptest.NewRecorder()
	h.Calendar(w, authedRequest(t, uid, "GET", target, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("calendar status = %d, body %s", w.Code, w.Body.String())
	}
	var days []dayStatus
	json.NewDecoder(w.Body).Decode(&days)
	if len(days) != 3 {
		t.Fatalf("days = %d, want 3", len(days))
	}
	if days[0].Complete || days[0].Taken != 0 || days[0].Total != 1 {
		t.Errorf("yesterday = %+v", days[0])
	}
	if !days[1].Complete || days[1].Taken != 1 {
		t.Errorf("today = %+v", days[1])
	}
	if days[2].Complete {
		t.Errorf("tomorrow = %+v", days[2])
	}
}

func TestCalendarInvalidRange(t *testing.T) {
	h, _, uid := setupMedicationHandlerTest(t)

	w := httptest.NewRecorder()
	h.Calendar(w, authedRequest(t, uid, "GET", "/api/medications/calendar?start=2026-08-30&end=2026-08-01", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("reversed range status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	h.Calendar(w, authedRequest(t, uid, "GET", "/api/medications/calendar?start=2026-08-30", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing end status = %d, want 400", w.Code)
	}
}

func TestMedicationDeleteRemovesLogs(t *testing.T) {
	h, ms, uid := setupMedicationHandlerTest(t)
	med := createMedication(t, h, uid, []string{"08:00"})

	r := authedRequest(t, uid, "POST", "/api/medications/"+med.ID+"/toggle",
		map[string]string{"scheduled_time": "08:00"})
	r.SetPathValue("id", med.ID)
	h.Toggle(httptest.NewRecorder(), r)

	dr := authedRequest(t, uid, "DELETE", "/api/medications/"+med.ID, nil)
	dr.SetPathValue("id", med.ID)
	w := httptest.NewRecorder()
	h.Delete(w, dr)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	dayStart, dayEnd := adherence.DayBounds(time.Now())
	logs, err := ms.FindLogs(med.ID, "08:00", uid, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("find logs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("logs survived medication delete: %+v", logs)
	}
}
