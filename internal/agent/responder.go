// Package agent implements the mocked AI responder. Every request runs
// through the same Begin/Complete lifecycle whether it arrives over
// REST or the realtime relay, so execution records and response text
// never diverge between the two surfaces. The relay delays the Complete
// half to mimic processing time; REST runs both back to back.
package agent

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

// Result is the outcome of one agent execution.
type Result struct {
	ExecutionID string    `json:"executionId"`
	Agent       *db.Agent `json:"agent"`
	Result      string    `json:"result"`
	Status      string    `json:"status"`
	Timestamp   string    `json:"timestamp"`
}

// Responder resolves agents and records executions around the canned
// response tables.
type Responder struct {
	db     *db.AppDB
	logger *slog.Logger
}

// NewResponder builds a responder over the given store.
func NewResponder(adb *db.AppDB, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{db: adb, logger: logger}
}

// Begin validates the agent and records a pending execution row.
// Unknown or inactive agents fail before any row is written.
func (r *Responder) Begin(agentID, task string, context map[string]any, userID, projectID string) (*db.Execution, *db.Agent, error) {
	a, err := r.db.GetAgent(agentID)
	if err != nil {
		return nil, nil, platformerrors.ErrInternal("load agent", err)
	}
	if a == nil || a.Status != "active" {
		return nil, nil, platformerrors.ErrAgentNotFound(agentID)
	}

	contextJSON, err := json.Marshal(context)
	if err != nil {
		return nil, nil, platformerrors.ErrInternal("marshal execution context", err)
	}

	exec := &db.Execution{
		ID:        uuid.NewString(),
		AgentID:   a.ID,
		UserID:    userID,
		ProjectID: projectID,
		Task:      task,
		Context:   string(contextJSON),
	}
	if err := r.db.CreateExecution(exec); err != nil {
		return nil, nil, platformerrors.ErrInternal("record execution", err)
	}
	return exec, a, nil
}

// Complete composes the canned response for a pending execution and
// marks the row completed.
func (r *Responder) Complete(exec *db.Execution, a *db.Agent) (*Result, error) {
	response := Compose(a, exec.Task)

	if err := r.db.CompleteExecution(exec.ID, db.ExecutionCompleted, response); err != nil {
		return nil, platformerrors.ErrInternal("complete execution", err)
	}

	r.logger.Debug("agent execution completed",
		"agent", a.Name, "execution_id", exec.ID, "user_id", exec.UserID)

	return &Result{
		ExecutionID: exec.ID,
		Agent:       a,
		Result:      response,
		Status:      db.ExecutionCompleted,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Cancel marks a pending execution failed. Used when the requester
// disconnects before a delayed response fires.
func (r *Responder) Cancel(executionID string) error {
	if err := r.db.CompleteExecution(executionID, db.ExecutionFailed, "cancelled: requester disconnected"); err != nil {
		return platformerrors.ErrInternal("cancel execution", err)
	}
	return nil
}

// Execute runs Begin and Complete back to back: a pending execution row
// is written first, then the canned response is composed and the row is
// completed.
func (r *Responder) Execute(agentID, task string, context map[string]any, userID, projectID string) (*Result, error) {
	exec, a, err := r.Begin(agentID, task, context, userID, projectID)
	if err != nil {
		return nil, err
	}
	return r.Complete(exec, a)
}

// History returns a user's recent executions, optionally scoped to a project.
func (r *Responder) History(userID, projectID string, limit int) ([]*db.Execution, error) {
	execs, err := r.db.ListExecutions(userID, projectID, limit)
	if err != nil {
		return nil, platformerrors.ErrInternal("list executions", err)
	}
	return execs, nil
}

// Agents lists the active agents clients may address.
func (r *Responder) Agents() ([]*db.Agent, error) {
	agents, err := r.db.ListActiveAgents()
	if err != nil {
		return nil, platformerrors.ErrInternal("list agents", err)
	}
	return agents, nil
}
