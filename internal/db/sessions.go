package db

import (
	"fmt"
	"time"
)

// UpsertSession records a live connection for a user. The session ID is
// the relay connection ID, so one user may hold several rows at once.
func (adb *AppDB) UpsertSession(id, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := adb.Exec(`
		INSERT INTO user_sessions (id, user_id, is_online, last_seen, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_online = 1, last_seen = excluded.last_seen
	`, id, userID, now, now)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", id, err)
	}
	return nil
}

// MarkSessionOffline flips a session to offline when the connection closes.
func (adb *AppDB) MarkSessionOffline(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := adb.Exec(`
		UPDATE user_sessions SET is_online = 0, last_seen = ? WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("mark session offline %s: %w", id, err)
	}
	return nil
}

// SweepStaleSessions removes offline session rows older than the cutoff.
// Called periodically by the serve loop to keep the table bounded.
func (adb *AppDB) SweepStaleSessions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := adb.Exec(`
		DELETE FROM user_sessions WHERE is_online = 0 AND last_seen < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}
