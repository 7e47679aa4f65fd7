package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medtrack/internal/model"
)

type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

// --- Medication methods ---

func scanMedication(scanner interface{ Scan(...any) error }) (*model.Medication, error) {
	var m model.Medication
	var times string
	err := scanner.Scan(
		&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency,
		&times, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(times), &m.TimeOfDay); err != nil {
		return nil, fmt.Errorf("decode time_of_day: %w", err)
	}
	return &m, nil
}

const medicationCols = `id, user_id, name, dosage, frequency, time_of_day, notes, created_at, updated_at`

func (s *MedicationStore) Create(userID int64, name, dosage, frequency string, timeOfDay []string, notes string) (*model.Medication, error) {
	times, err := json.Marshal(timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("encode time_of_day: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO medications (id, user_id, name, dosage, frequency, time_of_day, notes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, name, dosage, frequency, string(times), notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	return s.GetByID(id)
}

func (s *MedicationStore) GetByID(id string) (*model.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (s *MedicationStore) ListByUser(userID int64) ([]model.Medication, error) {
	rows, err := s.db.Query(
		`SELECT `+medicationCols+` FROM medications WHERE user_id = ? ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}

func (s *MedicationStore) Update(id string, name, dosage, frequency string, timeOfDay []string, notes string) (*model.Medication, error) {
	times, err := json.Marshal(timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("encode time_of_day: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE medications SET name = ?, dosage = ?, frequency = ?, time_of_day = ?, notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, dosage, frequency, string(times), notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a medication owned by the user. Logs go with it via the
// foreign key cascade.
func (s *MedicationStore) Delete(id string, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM medications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	return nil
}

// --- Log methods ---

func scanLog(scanner interface{ Scan(...any) error }) (*model.MedicationLog, error) {
	var l model.MedicationLog
	err := scanner.Scan(&l.ID, &l.MedicationID, &l.UserID, &l.ScheduledTime, &l.TakenAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const logCols = `id, medication_id, user_id, scheduled_time, taken_at`

// FindLogs returns logs for one dose of one medication whose taken_at falls
// within [dayStart, dayEnd].
func (s *MedicationStore) FindLogs(medicationID, scheduledTime string, userID int64, dayStart, dayEnd time.Time) ([]model.MedicationLog, error) {
	rows, err := s.db.Query(
		`SELECT `+logCols+` FROM medication_logs
		 WHERE medication_id = ? AND scheduled_time = ? AND user_id = ? AND taken_at >= ? AND taken_at <= ?`,
		medicationID, scheduledTime, userID, dayStart.UTC(), dayEnd.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	defer rows.Close()

	var logs []model.MedicationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func (s *MedicationStore) InsertLog(medicationID string, userID int64, scheduledTime string, takenAt time.Time) (*model.MedicationLog, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO medication_logs (id, medication_id, user_id, scheduled_time, taken_at) VALUES (?, ?, ?, ?, ?)`,
		id, medicationID, userID, scheduledTime, takenAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert log: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+logCols+` FROM medication_logs WHERE id = ?`, id)
	l, err := scanLog(row)
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	return l, nil
}

func (s *MedicationStore) DeleteLog(id string) error {
	_, err := s.db.Exec(`DELETE FROM medication_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete log: %w", err)
	}
	return nil
}

// ListLogsInRange returns a user's logs with taken_at in [start, end], oldest
// first. Feeds the day view and the calendar.
func (s *MedicationStore) ListLogsInRange(userID int64, start, end time.Time) ([]model.MedicationLog, error) {
	rows, err := s.db.Query(
		`SELECT `+logCols+` FROM medication_logs
		 WHERE user_id = ? AND taken_at >= ? AND taken_at <= ?
		 ORDER BY taken_at ASC`,
		userID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list logs in range: %w", err)
	}
	defer rows.Close()

	var logs []model.MedicationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
