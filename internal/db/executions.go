package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Execution statuses.
const (
	ExecutionPending   = "pending"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution records one AI agent run from request to result.
type Execution struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name,omitempty"` // joined, not stored
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id,omitempty"`
	Task        string `json:"task"`
	Context     string `json:"context,omitempty"`
	Result      string `json:"result,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// CreateExecution inserts a pending execution row.
func (adb *AppDB) CreateExecution(e *Execution) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if e.CreatedAt == "" {
		e.CreatedAt = now
	}
	if e.Status == "" {
		e.Status = ExecutionPending
	}

	var projectID any
	if e.ProjectID != "" {
		projectID = e.ProjectID
	}

	_, err := adb.Exec(`
		INSERT INTO ai_executions (id, agent_id, user_id, project_id, task, context, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AgentID, e.UserID, projectID, e.Task, e.Context, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create execution %s: %w", e.ID, err)
	}
	return nil
}

// CompleteExecution records the outcome of an execution and stamps
// completed_at. Status should be ExecutionCompleted or ExecutionFailed.
func (adb *AppDB) CompleteExecution(id, status, result string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := adb.Exec(`
		UPDATE ai_executions
		SET status = ?, result = ?, completed_at = ?
		WHERE id = ?
	`, status, result, now, id)
	if err != nil {
		return fmt.Errorf("complete execution %s: %w", id, err)
	}
	return nil
}

// GetExecution retrieves an execution by ID. Returns nil if not found.
func (adb *AppDB) GetExecution(id string) (*Execution, error) {
	query := `
		SELECT e.id, e.agent_id, a.name, e.user_id, e.project_id, e.task,
		       e.context, e.result, e.status, e.created_at, e.completed_at
		FROM ai_executions e
		JOIN ai_agents a ON e.agent_id = a.id
		WHERE e.id = ?
	`

	e, err := scanExecution(adb.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return e, nil
}

// ListExecutions returns a user's execution history, newest first,
// optionally filtered to one project. Limit caps the result size.
func (adb *AppDB) ListExecutions(userID, projectID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT e.id, e.agent_id, a.name, e.user_id, e.project_id, e.task,
		       e.context, e.result, e.status, e.created_at, e.completed_at
		FROM ai_executions e
		JOIN ai_agents a ON e.agent_id = a.id
		WHERE e.user_id = ?
	`
	args := []any{userID}
	if projectID != "" {
		query += " AND e.project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY e.created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := adb.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// AgentStats summarizes an agent's execution history.
type AgentStats struct {
	AgentID   string `json:"agent_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// GetAgentStats returns execution counts for the given agent.
func (adb *AppDB) GetAgentStats(agentID string) (*AgentStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM ai_executions
		WHERE agent_id = ?
	`

	stats := AgentStats{AgentID: agentID}
	err := adb.QueryRow(query, agentID).Scan(&stats.Total, &stats.Completed, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get agent stats %s: %w", agentID, err)
	}
	return &stats, nil
}

func scanExecution(row rowScanner) (*Execution, error) {
	var e Execution
	var projectID, ctx, result, completedAt sql.NullString

	err := row.Scan(
		&e.ID, &e.AgentID, &e.AgentName, &e.UserID, &projectID, &e.Task,
		&ctx, &result, &e.Status, &e.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if projectID.Valid {
		e.ProjectID = projectID.String
	}
	if ctx.Valid {
		e.Context = ctx.String
	}
	if result.Valid {
		e.Result = result.String
	}
	if completedAt.Valid {
		e.CompletedAt = completedAt.String
	}
	return &e, nil
}
