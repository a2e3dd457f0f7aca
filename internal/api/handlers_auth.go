package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/auth"
	platformerrors "github.com/collabhq/collabd/internal/errors"

	"github.com/collabhq/collabd/internal/db"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]any{
		"success":   true,
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"services": map[string]string{
			"database":   "connected",
			"websocket":  "active",
			"fileUpload": "ready",
			"aiService":  "ready",
		},
	})
}

// publicUser is the user shape returned by auth endpoints.
func publicUser(u *db.User) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		HandleError(w, platformerrors.ErrValidation("Username, email, and password are required"))
		return
	}

	exists, err := s.db.UserExists(req.Username, req.Email)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("check user", err))
		return
	}
	if exists {
		HandleError(w, platformerrors.ErrDuplicate("user"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		HandleError(w, err)
		return
	}

	user := &db.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         "user",
		IsActive:     true,
	}
	if err := s.db.CreateUser(user); err != nil {
		HandleError(w, platformerrors.ErrInternal("create user", err))
		return
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSONResponse(w, map[string]any{
		"success": true,
		"token":   token,
		"user":    publicUser(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		HandleError(w, platformerrors.ErrValidation("Username and password are required"))
		return
	}

	user, err := s.db.GetUserByUsername(req.Username)
	if err != nil {
		HandleError(w, platformerrors.ErrInternal("load user", err))
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		JSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSONResponse(w, map[string]any{
		"success": true,
		"token":   token,
		"user":    publicUser(user),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	JSONResponse(w, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":         user.ID,
			"username":   user.Username,
			"email":      user.Email,
			"role":       user.Role,
			"avatar_url": user.AvatarURL,
			"created_at": user.CreatedAt,
		},
	})
}
