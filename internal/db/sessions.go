package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"
)

// SessionRepository stores import sessions as JSON documents ordered by run
// time.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save writes the session, replacing an earlier copy with the same ID.
func (r *SessionRepository) Save(ctx context.Context, session *model.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM import_sessions WHERE id = ?`, session.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO import_sessions (id, run_at, sandbox, payload) VALUES (?, ?, ?, ?)`,
		session.ID, session.RunAt.UnixNano(), session.Sandbox, string(payload))
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM import_sessions WHERE id = ?`, id).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

// Recent returns up to limit sessions, newest first.
func (r *SessionRepository) Recent(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payload FROM import_sessions ORDER BY run_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var session model.Session
		if err := json.Unmarshal([]byte(payload), &session); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// Trim deletes every session older than the keep most recent ones and
// reports how many were removed.
func (r *SessionRepository) Trim(ctx context.Context, keep int) (int64, error) {
	// The derived table lets MySQL select from the table it deletes from.
	query := `DELETE FROM import_sessions WHERE id NOT IN (
		SELECT id FROM (
			SELECT id FROM import_sessions ORDER BY run_at DESC, id DESC LIMIT ?
		) AS kept
	)`

	res, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
