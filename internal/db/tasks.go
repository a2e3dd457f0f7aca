package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Task represents a unit of work within a project.
type Task struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	AssigneeID   string   `json:"assignee_id,omitempty"`
	AssigneeName string   `json:"assignee_name,omitempty"` // joined, not stored
	CreatedBy    string   `json:"created_by"`
	CreatorName  string   `json:"created_by_name,omitempty"` // joined, not stored
	DueDate      string   `json:"due_date,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// TaskFieldUpdate carries the allow-listed updatable task fields. Nil
// pointers mean "leave unchanged". Client-supplied keys outside this
// set never reach SQL.
type TaskFieldUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	AssigneeID  *string   `json:"assignee_id,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u *TaskFieldUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.AssigneeID == nil && u.DueDate == nil && u.Tags == nil
}

// CreateTask inserts a new task row.
func (adb *AppDB) CreateTask(t *Task) error {
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal task tags: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}

	var assignee any
	if t.AssigneeID != "" {
		assignee = t.AssigneeID
	}
	var dueDate any
	if t.DueDate != "" {
		dueDate = t.DueDate
	}

	_, err = adb.Exec(`
		INSERT INTO tasks (id, project_id, title, description, status, priority, assignee_id, created_by, due_date, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority, assignee, t.CreatedBy, dueDate, string(tagsJSON), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (adb *AppDB) GetTask(id string) (*Task, error) {
	query := `
		SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority,
		       t.assignee_id, u1.username, t.created_by, u2.username,
		       t.due_date, t.tags, t.created_at, t.updated_at
		FROM tasks t
		LEFT JOIN users u1 ON t.assignee_id = u1.id
		LEFT JOIN users u2 ON t.created_by = u2.id
		WHERE t.id = ?
	`

	t, err := scanTask(adb.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns all tasks in a project, newest first.
func (adb *AppDB) ListTasks(projectID string) ([]*Task, error) {
	query := `
		SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority,
		       t.assignee_id, u1.username, t.created_by, u2.username,
		       t.due_date, t.tags, t.created_at, t.updated_at
		FROM tasks t
		LEFT JOIN users u1 ON t.assignee_id = u1.id
		LEFT JOIN users u2 ON t.created_by = u2.id
		WHERE t.project_id = ?
		ORDER BY t.created_at DESC
	`

	rows, err := adb.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskFields applies an allow-listed field update as one UPDATE
// statement, so concurrent updates of different fields cannot clobber
// each other. The SET list is assembled only from the fixed column
// names below. Returns false if the task does not exist.
func (adb *AppDB) UpdateTaskFields(id string, u *TaskFieldUpdate) (bool, error) {
	if u.Empty() {
		return false, fmt.Errorf("update task %s: no fields to update", id)
	}

	set := make([]string, 0, 8)
	args := make([]any, 0, 9)

	if u.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Priority != nil {
		set = append(set, "priority = ?")
		args = append(args, *u.Priority)
	}
	if u.AssigneeID != nil {
		var assignee any
		if *u.AssigneeID != "" {
			assignee = *u.AssigneeID
		}
		set = append(set, "assignee_id = ?")
		args = append(args, assignee)
	}
	if u.DueDate != nil {
		var dueDate any
		if *u.DueDate != "" {
			dueDate = *u.DueDate
		}
		set = append(set, "due_date = ?")
		args = append(args, dueDate)
	}
	if u.Tags != nil {
		tagsJSON, err := json.Marshal(*u.Tags)
		if err != nil {
			return false, fmt.Errorf("marshal task tags: %w", err)
		}
		set = append(set, "tags = ?")
		args = append(args, string(tagsJSON))
	}

	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	query := "UPDATE tasks SET " + strings.Join(set, ", ") + " WHERE id = ?"
	res, err := adb.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("update task %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task %s: %w", id, err)
	}
	return n > 0, nil
}

// DeleteTask deletes a task by ID.
func (adb *AppDB) DeleteTask(id string) error {
	_, err := adb.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var description, assigneeID, assigneeName, creatorName, dueDate, tagsJSON sql.NullString

	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &description, &t.Status, &t.Priority,
		&assigneeID, &assigneeName, &t.CreatedBy, &creatorName,
		&dueDate, &tagsJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = description.String
	}
	if assigneeID.Valid {
		t.AssigneeID = assigneeID.String
	}
	if assigneeName.Valid {
		t.AssigneeName = assigneeName.String
	}
	if creatorName.Valid {
		t.CreatorName = creatorName.String
	}
	if dueDate.Valid {
		t.DueDate = dueDate.String
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal task tags: %w", err)
		}
	}
	return &t, nil
}
