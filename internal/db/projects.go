package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Project represents a collaborative project owned by one user.
type Project struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	OwnerID     string         `json:"owner_id"`
	OwnerName   string         `json:"owner_name,omitempty"` // joined, not stored
	Status      string         `json:"status"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`

	Collaborators []*Collaborator `json:"collaborators,omitempty"`
}

// Collaborator represents a project membership row joined with user info.
type Collaborator struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`
	JoinedAt  string `json:"joined_at"`
}

// CreateProject inserts a new project row.
func (adb *AppDB) CreateProject(p *Project) error {
	settingsJSON, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("marshal project settings: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = "active"
	}

	_, err = adb.Exec(`
		INSERT INTO projects (id, name, description, owner_id, status, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.OwnerID, p.Status, string(settingsJSON), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject retrieves a project by ID with owner name. Returns nil if not found.
func (adb *AppDB) GetProject(id string) (*Project, error) {
	query := `
		SELECT p.id, p.name, p.description, p.owner_id, u.username, p.status, p.settings, p.created_at, p.updated_at
		FROM projects p
		JOIN users u ON p.owner_id = u.id
		WHERE p.id = ?
	`

	var p Project
	var description, settingsJSON sql.NullString
	err := adb.QueryRow(query, id).Scan(
		&p.ID, &p.Name, &description, &p.OwnerID, &p.OwnerName,
		&p.Status, &settingsJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}

	if description.Valid {
		p.Description = description.String
	}
	if settingsJSON.Valid && settingsJSON.String != "" {
		if err := json.Unmarshal([]byte(settingsJSON.String), &p.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal project settings: %w", err)
		}
	}
	return &p, nil
}

// ListProjectsForUser returns all projects the user owns or collaborates on,
// newest first.
func (adb *AppDB) ListProjectsForUser(userID string) ([]*Project, error) {
	query := `
		SELECT p.id, p.name, p.description, p.owner_id, u.username, p.status, p.settings, p.created_at, p.updated_at
		FROM projects p
		JOIN users u ON p.owner_id = u.id
		WHERE p.owner_id = ? OR p.id IN (
			SELECT project_id FROM project_collaborators WHERE user_id = ?
		)
		ORDER BY p.updated_at DESC
	`

	rows, err := adb.Query(query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		var p Project
		var description, settingsJSON sql.NullString
		if err := rows.Scan(
			&p.ID, &p.Name, &description, &p.OwnerID, &p.OwnerName,
			&p.Status, &settingsJSON, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if description.Valid {
			p.Description = description.String
		}
		if settingsJSON.Valid && settingsJSON.String != "" {
			if err := json.Unmarshal([]byte(settingsJSON.String), &p.Settings); err != nil {
				return nil, fmt.Errorf("unmarshal project settings: %w", err)
			}
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// AddCollaborator adds a membership row for the given project and user.
func (adb *AppDB) AddCollaborator(id, projectID, userID, role string) error {
	if role == "" {
		role = "collaborator"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := adb.Exec(`
		INSERT INTO project_collaborators (id, project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, projectID, userID, role, now)
	if err != nil {
		return fmt.Errorf("add collaborator %s to project %s: %w", userID, projectID, err)
	}
	return nil
}

// ListCollaborators returns all collaborators of a project with user info.
func (adb *AppDB) ListCollaborators(projectID string) ([]*Collaborator, error) {
	query := `
		SELECT u.id, u.username, u.email, u.avatar_url, pc.role, pc.joined_at
		FROM project_collaborators pc
		JOIN users u ON pc.user_id = u.id
		WHERE pc.project_id = ?
		ORDER BY pc.joined_at ASC
	`

	rows, err := adb.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var collabs []*Collaborator
	for rows.Next() {
		var c Collaborator
		var avatarURL sql.NullString
		if err := rows.Scan(&c.UserID, &c.Username, &c.Email, &avatarURL, &c.Role, &c.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		if avatarURL.Valid {
			c.AvatarURL = avatarURL.String
		}
		collabs = append(collabs, &c)
	}
	return collabs, rows.Err()
}

// ProjectAccess reports the role the user holds on the project: "owner",
// the collaborator role, or "" when the user has no access. The same
// check backs both the REST middleware and the relay join path.
func (adb *AppDB) ProjectAccess(userID, projectID string) (string, error) {
	query := `
		SELECT p.owner_id, pc.role
		FROM projects p
		LEFT JOIN project_collaborators pc ON p.id = pc.project_id AND pc.user_id = ?
		WHERE p.id = ?
	`

	var ownerID string
	var collabRole sql.NullString
	err := adb.QueryRow(query, userID, projectID).Scan(&ownerID, &collabRole)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check project access: %w", err)
	}

	if ownerID == userID {
		return "owner", nil
	}
	if collabRole.Valid {
		return collabRole.String, nil
	}
	return "", nil
}
