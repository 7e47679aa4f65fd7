package adherence

import (
	"time"

	"medtrack/internal/model"
	"medtrack/internal/schedule"
)

// Resolve reports whether the dose instant has been taken: a log must match
// the medication, the exact scheduled-time string, and fall on the same local
// calendar day as the instant. A log recorded at any time during the day
// satisfies the instant.
func Resolve(instant schedule.DoseInstant, logs []model.MedicationLog) bool {
	for _, l := range logs {
		if l.MedicationID == instant.MedicationID &&
			l.ScheduledTime == instant.TimeOfDay &&
			sameLocalDay(l.TakenAt, instant.At) {
			return true
		}
	}
	return false
}

// IsDayComplete reports whether every dose instant of every medication on the
// given date resolves to taken. An empty medication list is complete.
func IsDayComplete(meds []model.Medication, logs []model.MedicationLog, date time.Time) (bool, error) {
	for _, med := range meds {
		instants, err := schedule.Expand(med, date)
		if err != nil {
			return false, err
		}
		for _, instant := range instants {
			if !Resolve(instant, logs) {
				return false, nil
			}
		}
	}
	return true, nil
}

// AllTakenToday reports whether every dose of one medication has been taken
// on the calendar day of now. Used to flag fully-adhered rows in list views.
func AllTakenToday(med model.Medication, logs []model.MedicationLog, now time.Time) (bool, error) {
	return IsDayComplete([]model.Medication{med}, logs, now)
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// DayBounds returns the inclusive local-day window [00:00:00.000,
// 23:59:59.999] containing t.
func DayBounds(t time.Time) (start, end time.Time) {
	t = t.Local()
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.Add(24*time.Hour - time.Millisecond)
	return start, end
}
