package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
	"github.com/collabhq/collabd/internal/events"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.db.ListTasks(r.PathValue("id"))
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("list tasks", err))
		return
	}
	if tasks == nil {
		tasks = []*db.Task{}
	}
	JSONResponse(w, map[string]any{"success": true, "tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	projectID := r.PathValue("id")

	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Priority    string   `json:"priority"`
		AssigneeID  string   `json:"assignee_id"`
		DueDate     string   `json:"due_date"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.Title == "" {
		HandleError(w, platformerrors.ErrValidation("task title is required"))
		return
	}

	task := &db.Task{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   user.ID,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
	}
	if err := s.db.CreateTask(task); err != nil {
		HandleError(w, platformerrors.ErrInternal("create task", err))
		return
	}

	s.publisher.Publish(events.Event{
		Type:      events.TypeTaskCreated,
		ProjectID: projectID,
		Data:      task,
	})

	JSONResponseStatus(w, map[string]any{"success": true, "task": task}, http.StatusCreated)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	taskID := r.PathValue("id")

	task, err := s.taskWithAccess(user, taskID)
	if err != nil {
		HandleError(w, err)
		return
	}

	var update db.TaskFieldUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if update.Empty() {
		HandleError(w, platformerrors.ErrValidation("no updatable task fields"))
		return
	}

	found, err := s.db.UpdateTaskFields(taskID, &update)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("update task", err))
		return
	}
	if !found {
		HandleError(w, platformerrors.ErrTaskNotFound(taskID))
		return
	}

	updated, err := s.db.GetTask(taskID)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load task", err))
		return
	}

	details := map[string]any{"taskId": taskID, "updates": update}
	if err := s.db.AppendActivity(uuid.NewString(), user.ID, task.ProjectID, "task_updated", details); err != nil {
		s.logger.Warn("record task activity", "task", taskID, "error", err)
	}

	s.publisher.Publish(events.Event{
		Type:      events.TypeTaskUpdated,
		ProjectID: task.ProjectID,
		Data:      updated,
	})

	JSONResponse(w, map[string]any{"success": true, "task": updated})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	taskID := r.PathValue("id")

	task, err := s.taskWithAccess(user, taskID)
	if err != nil {
		HandleError(w, err)
		return
	}

	if err := s.db.DeleteTask(taskID); err != nil {
		HandleError(w, platformerrors.ErrInternal("delete task", err))
		return
	}

	s.publisher.Publish(events.Event{
		Type:      events.TypeTaskDeleted,
		ProjectID: task.ProjectID,
		Data:      map[string]any{"taskId": taskID},
	})

	NoContent(w)
}

// taskWithAccess loads a task and verifies the user can reach its project.
func (s *Server) taskWithAccess(user *db.User, taskID string) (*db.Task, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, platformerrors.ErrInternal("load task", err)
	}
	if task == nil {
		return nil, platformerrors.ErrTaskNotFound(taskID)
	}

	role, err := s.db.ProjectAccess(user.ID, task.ProjectID)
	if err != nil {
		return nil, platformerrors.ErrInternal("check project access", err)
	}
	if role == "" {
		return nil, platformerrors.ErrAccessDenied(task.ProjectID)
	}
	return task, nil
}
