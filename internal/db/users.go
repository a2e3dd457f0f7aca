package db

import (
	"database/sql"
	"fmt"
	"time"
)

// User represents a registered platform user.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Role         string `json:"role"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CreateUser inserts a new user row.
func (adb *AppDB) CreateUser(u *User) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if u.CreatedAt == "" {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = "user"
	}

	_, err := adb.Exec(`
		INSERT INTO users (id, username, email, password_hash, avatar_url, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.AvatarURL, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil if not found.
func (adb *AppDB) GetUser(id string) (*User, error) {
	return adb.getUserWhere("id = ?", id)
}

// GetActiveUser retrieves an active user by ID. Returns nil if the user
// does not exist or has been deactivated.
func (adb *AppDB) GetActiveUser(id string) (*User, error) {
	return adb.getUserWhere("id = ? AND is_active = 1", id)
}

// GetUserByUsername retrieves an active user by username.
func (adb *AppDB) GetUserByUsername(username string) (*User, error) {
	return adb.getUserWhere("username = ? AND is_active = 1", username)
}

// UserExists reports whether a user with the given username or email exists.
func (adb *AppDB) UserExists(username, email string) (bool, error) {
	var id string
	err := adb.QueryRow("SELECT id FROM users WHERE username = ? OR email = ?", username, email).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return true, nil
}

// CountUsers returns the number of users.
func (adb *AppDB) CountUsers() (int, error) {
	var count int
	if err := adb.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (adb *AppDB) getUserWhere(where string, args ...any) (*User, error) {
	query := `
		SELECT id, username, email, password_hash, avatar_url, role, is_active, created_at, updated_at
		FROM users
		WHERE ` + where

	var u User
	var avatarURL sql.NullString
	err := adb.QueryRow(query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &avatarURL,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if avatarURL.Valid {
		u.AvatarURL = avatarURL.String
	}
	return &u, nil
}
