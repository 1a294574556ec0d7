package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/reflector/internal/model"
)

// PutArchive persists an export record. The id and archive time are assigned
// when empty.
func (s *Store) PutArchive(a model.Archive) (model.Archive, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now()
	}
	a.ArchivedAt = a.ArchivedAt.UTC()

	data, err := json.Marshal(a.Record)
	if err != nil {
		return model.Archive{}, fmt.Errorf("encode export data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO archives (id, session_id, user_id, archived_at, export_data) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, string(a.UserID), a.ArchivedAt, string(data),
	)
	if err != nil {
		return model.Archive{}, fmt.Errorf("insert archive: %w", err)
	}
	return a, nil
}

// GetArchive returns an archive by id.
func (s *Store) GetArchive(id string) (model.Archive, error) {
	a, err := scanArchive(s.db.QueryRow(
		`SELECT id, session_id, user_id, archived_at, export_data FROM archives WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Archive{}, fmt.Errorf("archive %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ListArchives returns all archives, newest first.
func (s *Store) ListArchives() ([]model.Archive, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, archived_at, export_data FROM archives ORDER BY archived_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	archives := []model.Archive{}
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArchive(row scanner) (model.Archive, error) {
	var a model.Archive
	var userID, data string
	if err := row.Scan(&a.ID, &a.SessionID, &userID, &a.ArchivedAt, &data); err != nil {
		return model.Archive{}, err
	}
	a.UserID = model.LearnerID(userID)
	a.ArchivedAt = a.ArchivedAt.UTC()
	if err := json.Unmarshal([]byte(data), &a.Record); err != nil {
		return model.Archive{}, fmt.Errorf("decode archive %s: %w", a.ID, err)
	}
	return a, nil
}
