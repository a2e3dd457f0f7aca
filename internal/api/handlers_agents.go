package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
	"github.com/collabhq/collabd/internal/events"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.responder.Agents()
	if err != nil {
		HandleError(w, err)
		return
	}
	if agents == nil {
		agents = []*db.Agent{}
	}
	JSONResponse(w, map[string]any{"success": true, "agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")

	agent, err := s.db.GetAgent(agentID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load agent", err))
		return
	}
	if agent == nil {
		HandleError(w, platformerrors.ErrAgentNotFound(agentID))
		return
	}
	JSONResponse(w, map[string]any{"success": true, "agent": agent})
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")

	agent, err := s.db.GetAgent(agentID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load agent", err))
		return
	}
	if agent == nil {
		HandleError(w, platformerrors.ErrAgentNotFound(agentID))
		return
	}

	stats, err := s.db.GetAgentStats(agentID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load agent stats", err))
		return
	}
	JSONResponse(w, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	agentID := r.PathValue("agentId")

	var req struct {
		Task      string         `json:"task"`
		Context   map[string]any `json:"context"`
		ProjectID string         `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.Task == "" {
		HandleError(w, platformerrors.ErrValidation("task is required"))
		return
	}

	if req.ProjectID != "" {
		role, err := s.db.ProjectAccess(user.ID, req.ProjectID)
		if err != nil {
			HandleError(w, platformerrors.ErrInternal("check project access", err))
			return
		}
		if role == "" {
			HandleError(w, platformerrors.ErrAccessDenied(req.ProjectID))
			return
		}
	}

	result, err := s.responder.Execute(agentID, req.Task, req.Context, user.ID, req.ProjectID)
	if err != nil {
		HandleError(w, err)
		return
	}

	// Room members see the execution the same way relay-initiated ones
	// are announced.
	if req.ProjectID != "" {
		s.publisher.Publish(events.Event{
			Type:      events.TypeAgentActivity,
			ProjectID: req.ProjectID,
			Data: map[string]any{
				"user":   publicUser(user),
				"agent":  result.Agent,
				"task":   req.Task,
				"result": result.Result,
			},
		})
	}

	JSONResponse(w, map[string]any{"success": true, "result": result})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	execs, err := s.responder.History(user.ID, r.URL.Query().Get("projectId"), limit)
	if err != nil {
		HandleError(w, err)
		return
	}
	if execs == nil {
		execs = []*db.Execution{}
	}
	JSONResponse(w, map[string]any{"success": true, "executions": execs})
}
