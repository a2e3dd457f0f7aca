package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	projects, err := s.db.ListProjectsForUser(user.ID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list projects", err))
		return
	}
	if projects == nil {
		projects = []*db.Project{}
	}
	JSONResponse(w, map[string]any{"success": true, "projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Settings    map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.Name == "" {
		HandleError(w, platformerrors.ErrValidation("project name is required"))
		return
	}

	project := &db.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     user.ID,
		Settings:    req.Settings,
	}
	if err := s.db.CreateProject(project); err != nil {
		HandleError(w, platformerrors.ErrInternal("create project", err))
		return
	}
	project.OwnerName = user.Username

	JSONResponseStatus(w, map[string]any{"success": true, "project": project}, http.StatusCreated)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	project, err := s.db.GetProject(projectID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load project", err))
		return
	}
	if project == nil {
		HandleError(w, platformerrors.ErrProjectNotFound(projectID))
		return
	}

	collaborators, err := s.db.ListCollaborators(projectID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list collaborators", err))
		return
	}
	project.Collaborators = collaborators

	JSONResponse(w, map[string]any{"success": true, "project": project})
}

func (s *Server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	collaborators, err := s.db.ListCollaborators(r.PathValue("id"))
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list collaborators", err))
		return
	}
	if collaborators == nil {
		collaborators = []*db.Collaborator{}
	}
	JSONResponse(w, map[string]any{"success": true, "collaborators": collaborators})
}

// handleAddCollaborator adds a user to the project. Only the owner can
// grant access.
func (s *Server) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	projectID := r.PathValue("id")

	role, err := s.db.ProjectAccess(user.ID, projectID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("check project access", err))
		return
	}
	if role != "owner" {
		HandleError(w, platformerrors.ErrAccessDenied(projectID))
		return
	}

	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.UserID == "" {
		HandleError(w, platformerrors.ErrValidation("userId is required"))
		return
	}

	member, err := s.db.GetActiveUser(req.UserID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load user", err))
		return
	}
	if member == nil {
		HandleError(w, platformerrors.ErrUserNotFound(req.UserID))
		return
	}

	if err := s.db.AddCollaborator(uuid.NewString(), projectID, req.UserID, req.Role); err != nil {
		HandleError(w, platformerrors.ErrInternal("add collaborator", err))
		return
	}

	collaborators, err := s.db.ListCollaborators(projectID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list collaborators", err))
		return
	}
	JSONResponseStatus(w, map[string]any{"success": true, "collaborators": collaborators}, http.StatusCreated)
}

// handleProjectUsers reports who is currently connected to the project
// room over the relay.
func (s *Server) handleProjectUsers(w http.ResponseWriter, r *http.Request) {
	users := s.relay.Registry().RoomMembers(r.PathValue("id"))
	JSONResponse(w, map[string]any{"success": true, "users": users})
}

func (s *Server) handleProjectActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListActivity(r.PathValue("id"), 50)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list activity", err))
		return
	}
	if entries == nil {
		entries = []*db.ActivityEntry{}
	}
	JSONResponse(w, map[string]any{"success": true, "activities": entries})
}

func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.db.ListProjectUploads(r.PathValue("id"))
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list files", err))
		return
	}
	if files == nil {
		files = []*db.Upload{}
	}
	JSONResponse(w, map[string]any{"success": true, "files": files})
}
