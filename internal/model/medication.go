package model

import "time"

// Frequency labels accepted for a medication. The label is informational;
// dose instants are derived from TimeOfDay only.
const (
	FreqOnceDaily     = "once_daily"
	FreqTwiceDaily    = "twice_daily"
	FreqThreeTimes    = "three_times_daily"
	FreqFourTimes     = "four_times_daily"
	FreqEveryOtherDay = "every_other_day"
	FreqWeekly        = "weekly"
	FreqAsNeeded      = "as_needed"
)

// ValidFrequency reports whether s is a known frequency label.
func ValidFrequency(s string) bool {
	switch s {
	case FreqOnceDaily, FreqTwiceDaily, FreqThreeTimes, FreqFourTimes,
		FreqEveryOtherDay, FreqWeekly, FreqAsNeeded:
		return true
	}
	return false
}

type Medication struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency string    `json:"frequency"`
	TimeOfDay []string  `json:"time_of_day"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MedicationLog records one take-event. At most one log exists per
// (medication, scheduled_time, local calendar day); the toggle maintains
// this, logs are never updated in place.
type MedicationLog struct {
	ID            string    `json:"id"`
	MedicationID  string    `json:"medication_id"`
	UserID        int64     `json:"user_id"`
	ScheduledTime string    `json:"scheduled_time"`
	TakenAt       time.Time `json:"taken_at"`
}
