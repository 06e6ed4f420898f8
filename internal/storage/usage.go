package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// LogUsage appends a usage row for userID at the given time.
func (s *Store) LogUsage(userID, action string, at time.Time) (UsageLog, error) {
	u := UsageLog{ID: ulid.Make().String(), UserID: userID, ActionType: action, CreatedAt: at.UTC().Truncate(time.Second)}
	_, err := s.db.Exec(`INSERT INTO usage_logs (id, user_id, action_type, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.UserID, u.ActionType, formatTime(u.CreatedAt))
	if err != nil {
		return UsageLog{}, err
	}
	return u, nil
}

// CountUsageSince counts userID's actions of the given type at or after since.
func (s *Store) CountUsageSince(userID, action string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM usage_logs
		WHERE user_id = ? AND action_type = ? AND created_at >= ?`,
		userID, action, formatTime(since),
	).Scan(&n)
	return n, err
}

// LogUsageIfUnder appends a usage row only while the count since the given
// time is below limit. The check and the insert run in one transaction.
// It returns ErrLimitReached when the row was not written.
func (s *Store) LogUsageIfUnder(userID, action string, limit int, since, at time.Time) (UsageLog, error) {
	u := UsageLog{ID: ulid.Make().String(), UserID: userID, ActionType: action, CreatedAt: at.UTC().Truncate(time.Second)}
	err := s.withTx(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM usage_logs
			WHERE user_id = ? AND action_type = ? AND created_at >= ?`,
			userID, action, formatTime(since),
		).Scan(&n); err != nil {
			return fmt.Errorf("counting usage: %w", err)
		}
		if n >= limit {
			return ErrLimitReached
		}
		if _, err := tx.Exec(`INSERT INTO usage_logs (id, user_id, action_type, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.UserID, u.ActionType, formatTime(u.CreatedAt)); err != nil {
			return fmt.Errorf("inserting usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return UsageLog{}, err
	}
	return u, nil
}

// ListUsage returns userID's usage rows since the given time, newest first.
func (s *Store) ListUsage(userID string, since time.Time) ([]UsageLog, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, action_type, created_at FROM usage_logs
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC`, userID, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageLog
	for rows.Next() {
		var u UsageLog
		var createdAt string
		if err := rows.Scan(&u.ID, &u.UserID, &u.ActionType, &createdAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
