package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEntry is one row of the project activity feed.
type ActivityEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Username  string         `json:"username,omitempty"` // joined, not stored
	ProjectID string         `json:"project_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// AppendActivity records an action in the activity feed.
func (adb *AppDB) AppendActivity(id, userID, projectID, action string, details map[string]any) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}

	var project any
	if projectID != "" {
		project = projectID
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = adb.Exec(`
		INSERT INTO activity_logs (id, user_id, project_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, project, action, string(detailsJSON), now)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest activity entries for a project.
func (adb *AppDB) ListActivity(projectID string, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT al.id, al.user_id, u.username, al.project_id, al.action, al.details, al.created_at
		FROM activity_logs al
		JOIN users u ON al.user_id = u.id
		WHERE al.project_id = ?
		ORDER BY al.created_at DESC
		LIMIT ?
	`

	rows, err := adb.Query(query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var projectID, detailsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &projectID, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal activity details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
