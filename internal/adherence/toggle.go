package adherence

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"medtrack/internal/model"
	"medtrack/internal/schedule"
)

// ErrDuplicateLogs indicates more than one log was found for a single
// (medication, scheduled_time, day), a prior invariant violation. The toggle
// never picks one to act on.
var ErrDuplicateLogs = errors.New("multiple logs for one dose day")

// LogStore is the slice of the persistence layer the toggle needs.
type LogStore interface {
	FindLogs(medicationID, scheduledTime string, userID int64, dayStart, dayEnd time.Time) ([]model.MedicationLog, error)
	InsertLog(medicationID string, userID int64, scheduledTime string, takenAt time.Time) (*model.MedicationLog, error)
	DeleteLog(id string) error
}

type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// LogChangeEvent describes the effect of one toggle so callers can reconcile
// a cached log collection without re-fetching.
type LogChangeEvent struct {
	Action        Action               `json:"action"`
	MedicationID  string               `json:"medication_id"`
	ScheduledTime string               `json:"scheduled_time"`
	Log           *model.MedicationLog `json:"log,omitempty"`
}

// Toggler records and undoes dose take-events. Toggles on the same
// (user, medication, scheduled_time) key are serialized so two concurrent
// calls cannot both observe "absent" and both insert; different keys proceed
// independently.
type Toggler struct {
	store  LogStore
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]*keyLock
}

// keyLock is a mutex with a waiter count so the key can be evicted from the
// map once nobody holds or wants it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewToggler(store LogStore, logger *slog.Logger) *Toggler {
	return &Toggler{
		store:  store,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]*keyLock),
	}
}

// Toggle creates a log for (medication, scheduledTime) on the current local
// day if none exists, or deletes the existing one. Only today's doses are
// loggable; the day window is never caller-supplied.
func (t *Toggler) Toggle(userID int64, medicationID, scheduledTime string) (LogChangeEvent, error) {
	if _, _, err := schedule.ParseTimeOfDay(scheduledTime); err != nil {
		return LogChangeEvent{}, err
	}

	unlock := t.lock(fmt.Sprintf("%d/%s/%s", userID, medicationID, scheduledTime))
	defer unlock()

	now := t.now()
	dayStart, dayEnd := DayBounds(now)

	logs, err := t.store.FindLogs(medicationID, scheduledTime, userID, dayStart, dayEnd)
	if err != nil {
		return LogChangeEvent{}, fmt.Errorf("find logs: %w", err)
	}

	switch len(logs) {
	case 0:
		created, err := t.store.InsertLog(medicationID, userID, scheduledTime, now)
		if err != nil {
			return LogChangeEvent{}, fmt.Errorf("insert log: %w", err)
		}
		t.logger.Info("dose logged", "medication_id", medicationID, "scheduled_time", scheduledTime)
		return LogChangeEvent{
			Action:        ActionAdded,
			MedicationID:  medicationID,
			ScheduledTime: scheduledTime,
			Log:           created,
		}, nil
	case 1:
		if err := t.store.DeleteLog(logs[0].ID); err != nil {
			return LogChangeEvent{}, fmt.Errorf("delete log: %w", err)
		}
		t.logger.Info("dose unlogged", "medication_id", medicationID, "scheduled_time", scheduledTime)
		return LogChangeEvent{
			Action:        ActionRemoved,
			MedicationID:  medicationID,
			ScheduledTime: scheduledTime,
		}, nil
	default:
		return LogChangeEvent{}, fmt.Errorf("medication %s at %s on %s: %w",
			medicationID, scheduledTime, dayStart.Format("2006-01-02"), ErrDuplicateLogs)
	}
}

func (t *Toggler) lock(key string) func() {
	t.mu.Lock()
	l, ok := t.keys[key]
	if !ok {
		l = &keyLock{}
		t.keys[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.keys, key)
		}
		t.mu.Unlock()
	}
}

// Apply reconciles a cached log collection with a change event: append the
// new record on Added, drop the matching triple for today's calendar day on
// Removed. The input slice is not modified.
func Apply(logs []model.MedicationLog, ev LogChangeEvent, today time.Time) []model.MedicationLog {
	switch ev.Action {
	case ActionAdded:
		out := make([]model.MedicationLog, 0, len(logs)+1)
		out = append(out, logs...)
		if ev.Log != nil {
			out = append(out, *ev.Log)
		}
		return out
	case ActionRemoved:
		out := make([]model.MedicationLog, 0, len(logs))
		for _, l := range logs {
			if l.MedicationID == ev.MedicationID &&
				l.ScheduledTime == ev.ScheduledTime &&
				sameLocalDay(l.TakenAt, today) {
				continue
			}
			out = append(out, l)
		}
		return out
	}
	return logs
}
