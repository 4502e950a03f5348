package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// now is a hook for tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

// EnsureUser records a user on first reference and bumps last_seen on
// every later one.
func (s *DB) EnsureUser(userID int64, seenAt time.Time) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, first_seen, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_seen = excluded.last_seen`,
		userID, seenAt, seenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", userID, err)
	}
	return nil
}

// UserSeen returns the first/last seen timestamps for a user, or ok=false
// when the user has never been recorded.
func (s *DB) UserSeen(userID int64) (first, last time.Time, ok bool, err error) {
	err = s.db.QueryRow(`SELECT first_seen, last_seen FROM users WHERE user_id = ?`, userID).
		Scan(&first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return first, last, true, nil
}
