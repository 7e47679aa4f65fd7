package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"medtrack/internal/model"
)

var (
	// ErrEmptySchedule indicates a medication with no scheduled times.
	ErrEmptySchedule = errors.New("medication has no scheduled times")
	// ErrInvalidTimeOfDay indicates a time_of_day entry that is not a
	// 24-hour HH:MM string.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)

// DoseInstant is one concrete occurrence of a scheduled dose on a calendar
// date. Derived from the schedule, never persisted.
type DoseInstant struct {
	MedicationID string    `json:"medication_id"`
	TimeOfDay    string    `json:"time"`
	At           time.Time `json:"at"`
}

// Expand produces the dose instants for a medication on the given date, one
// per time_of_day entry, in ascending time order. A malformed entry is a
// data-integrity error, not something to skip. The frequency label plays no
// part here.
func Expand(med model.Medication, date time.Time) ([]DoseInstant, error) {
	if len(med.TimeOfDay) == 0 {
		return nil, fmt.Errorf("medication %s: %w", med.ID, ErrEmptySchedule)
	}

	// Lexicographic order of HH:MM strings is chronological order.
	times := append([]string(nil), med.TimeOfDay...)
	sort.Strings(times)

	instants := make([]DoseInstant, 0, len(times))
	for _, tod := range times {
		hour, minute, err := ParseTimeOfDay(tod)
		if err != nil {
			return nil, fmt.Errorf("medication %s: %w", med.ID, err)
		}
		instants = append(instants, DoseInstant{
			MedicationID: med.ID,
			TimeOfDay:    tod,
			At: time.Date(date.Year(), date.Month(), date.Day(),
				hour, minute, 0, 0, date.Location()),
		})
	}
	return instants, nil
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string into its hour and minute.
// Only the zero-padded canonical form is accepted; "8:00" would sort after
// "12:00" lexicographically, breaking the ordering Expand relies on.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", s)
	if perr != nil || t.Format("15:04") != s {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return t.Hour(), t.Minute(), nil
}
