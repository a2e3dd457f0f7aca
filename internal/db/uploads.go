package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Upload is the stored metadata for one uploaded file.
type Upload struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Path         string `json:"path"`
	UploadedBy   string `json:"uploaded_by"`
	ProjectID    string `json:"project_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// CreateUpload inserts an upload metadata row.
func (adb *AppDB) CreateUpload(u *Upload) error {
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	var projectID any
	if u.ProjectID != "" {
		projectID = u.ProjectID
	}

	_, err := adb.Exec(`
		INSERT INTO file_uploads (id, filename, original_name, mime_type, size, path, uploaded_by, project_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Filename, u.OriginalName, u.MimeType, u.Size, u.Path, u.UploadedBy, projectID, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create upload %s: %w", u.ID, err)
	}
	return nil
}

// GetUpload retrieves upload metadata by ID. Returns nil if not found.
func (adb *AppDB) GetUpload(id string) (*Upload, error) {
	query := `
		SELECT id, filename, original_name, mime_type, size, path, uploaded_by, project_id, created_at
		FROM file_uploads
		WHERE id = ?
	`

	var u Upload
	var projectID sql.NullString
	err := adb.QueryRow(query, id).Scan(
		&u.ID, &u.Filename, &u.OriginalName, &u.MimeType, &u.Size,
		&u.Path, &u.UploadedBy, &projectID, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload %s: %w", id, err)
	}

	if projectID.Valid {
		u.ProjectID = projectID.String
	}
	return &u, nil
}

// ListProjectUploads returns all uploads attached to a project, newest first.
func (adb *AppDB) ListProjectUploads(projectID string) ([]*Upload, error) {
	query := `
		SELECT id, filename, original_name, mime_type, size, path, uploaded_by, project_id, created_at
		FROM file_uploads
		WHERE project_id = ?
		ORDER BY created_at DESC
	`

	rows, err := adb.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var uploads []*Upload
	for rows.Next() {
		var u Upload
		var project sql.NullString
		if err := rows.Scan(
			&u.ID, &u.Filename, &u.OriginalName, &u.MimeType, &u.Size,
			&u.Path, &u.UploadedBy, &project, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if project.Valid {
			u.ProjectID = project.String
		}
		uploads = append(uploads, &u)
	}
	return uploads, rows.Err()
}

// DeleteUpload removes an upload metadata row.
func (adb *AppDB) DeleteUpload(id string) error {
	_, err := adb.Exec("DELETE FROM file_uploads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete upload %s: %w", id, err)
	}
	return nil
}
