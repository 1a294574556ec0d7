package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/reflector/internal/model"
)

// CreateSession starts a new session for a learner.
func (s *Store) CreateSession(userID model.LearnerID, week int) (model.Session, error) {
	if week < 1 {
		week = 1
	}
	now := time.Now().UTC()
	sess := model.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CurrentWeek: week,
		ChatHistory: []model.Turn{},
		CreatedAt:   now,
		LastActive:  now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, current_week, created_at, last_active, archived) VALUES (?, ?, ?, ?, ?, 0)`,
		sess.ID, string(sess.UserID), sess.CurrentWeek, sess.CreatedAt, sess.LastActive,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession returns a session with its full transcript in turn order.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	var userID string
	err := s.db.QueryRow(
		`SELECT id, user_id, current_week, created_at, last_active, archived FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &userID, &sess.CurrentWeek, &sess.CreatedAt, &sess.LastActive, &sess.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, err
	}
	sess.UserID = model.LearnerID(userID)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastActive = sess.LastActive.UTC()

	sess.ChatHistory, err = s.turns(id)
	if err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *Store) turns(sessionID string) ([]model.Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, sender, content, prompt_id, response, feedback, created_at
		 FROM turns WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	turns := []model.Turn{}
	for rows.Next() {
		var t model.Turn
		var sender string
		if err := rows.Scan(&t.ID, &sender, &t.Content, &t.PromptID, &t.Response, &t.Feedback, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Sender = model.Sender(sender)
		t.Timestamp = t.Timestamp.UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions() ([]model.SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.user_id, s.current_week, s.created_at, s.last_active, s.archived,
		        (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
		 FROM sessions s ORDER BY s.last_active DESC, s.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []model.SessionSummary{}
	for rows.Next() {
		var sum model.SessionSummary
		var userID string
		if err := rows.Scan(&sum.ID, &userID, &sum.CurrentWeek, &sum.CreatedAt, &sum.LastActive, &sum.Archived, &sum.Messages); err != nil {
			return nil, err
		}
		sum.UserID = model.LearnerID(userID)
		sum.CreatedAt = sum.CreatedAt.UTC()
		sum.LastActive = sum.LastActive.UTC()
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// AppendTurn adds a turn to the end of a session transcript and bumps the
// session's last-active time. Missing ids and timestamps are filled in.
func (s *Store) AppendTurn(sessionID string, t model.Turn) (model.Turn, error) {
	turns, err := s.AppendTurns(sessionID, t)
	if err != nil {
		return model.Turn{}, err
	}
	return turns[0], nil
}

// AppendTurns adds turns in order within one transaction: either all of them
// land in the transcript or none do.
func (s *Store) AppendTurns(sessionID string, turns ...model.Turn) ([]model.Turn, error) {
	if len(turns) == 0 {
		return nil, errors.New("no turns to append")
	}
	now := time.Now()
	out := make([]model.Turn, len(turns))
	for i, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		t.Timestamp = t.Timestamp.UTC()
		out[i] = t
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var archived bool
	err = tx.QueryRow(`SELECT archived FROM sessions WHERE id = ?`, sessionID).Scan(&archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if archived {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionArchived)
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return nil, err
	}
	for _, t := range out {
		seq++
		_, err = tx.Exec(
			`INSERT INTO turns (session_id, seq, id, sender, content, prompt_id, response, feedback, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, seq, t.ID, string(t.Sender), t.Content, t.PromptID, t.Response, t.Feedback, t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("insert turn: %w", err)
		}
	}
	last := out[len(out)-1].Timestamp
	if _, err := tx.Exec(`UPDATE sessions SET last_active = ? WHERE id = ?`, last, sessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetCurrentWeek moves a session to another course week.
func (s *Store) SetCurrentWeek(sessionID string, week int) error {
	res, err := s.db.Exec(`UPDATE sessions SET current_week = ? WHERE id = ?`, week, sessionID)
	if err != nil {
		return err
	}
	return affected(res, "session "+sessionID)
}

// MarkArchived flags a session as archived. Archived sessions accept no new turns.
func (s *Store) MarkArchived(sessionID string) error {
	res, err := s.db.Exec(`UPDATE sessions SET archived = 1 WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	return affected(res, "session "+sessionID)
}
