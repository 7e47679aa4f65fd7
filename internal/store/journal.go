package store

import (
	"database/sql"
	"fmt"

	"medtrack/internal/model"
)

type JournalStore struct {
	db *sql.DB
}

func NewJournalStore(db *sql.DB) *JournalStore {
	return &JournalStore{db: db}
}

func scanEntry(scanner interface{ Scan(...any) error }) (*model.JournalEntry, error) {
	var e model.JournalEntry
	err := scanner.Scan(&e.ID, &e.UserID, &e.Content, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const entryCols = `id, user_id, content, created_at`

func (s *JournalStore) Create(userID int64, content string) (*model.JournalEntry, error) {
	result, err := s.db.Exec(
		`INSERT INTO journal_entries (user_id, content) VALUES (?, ?)`,
		userID, content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *JournalStore) GetByID(id int64) (*model.JournalEntry, error) {
	row := s.db.QueryRow(`SELECT `+entryCols+` FROM journal_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListByUser returns a user's entries newest first.
func (s *JournalStore) ListByUser(userID int64, limit int) ([]model.JournalEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryCols+` FROM journal_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *JournalStore) Update(id, userID int64, content string) (*model.JournalEntry, error) {
	_, err := s.db.Exec(
		`UPDATE journal_entries SET content = ? WHERE id = ? AND user_id = ?`,
		content, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return s.GetByID(id)
}

func (s *JournalStore) Delete(id, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM journal_entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}
