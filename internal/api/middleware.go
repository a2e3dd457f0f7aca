package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

type contextKey string

const userContextKey contextKey = "user"

// requireAuth verifies the bearer token, loads the active user, and
// injects it into the request context.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			HandleError(w, platformerrors.ErrAuthRequired())
			return
		}

		identity, err := s.tokens.VerifyToken(token)
		if err != nil {
			HandleError(w, err)
			return
		}

		user, err := s.db.GetActiveUser(identity.UserID)
		if err != nil {
			HandleError(w, platformerrors.ErrInternal("load user", err))
			return
		}
		if user == nil {
			HandleError(w, platformerrors.ErrTokenInvalid())
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		h(w, r.WithContext(ctx))
	}
}

// requireProjectAccess checks membership for the project named by the
// "id" path value. Must be stacked inside requireAuth.
func (s *Server) requireProjectAccess(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		projectID := r.PathValue("id")

		role, err := s.db.ProjectAccess(user.ID, projectID)
		if err != nil {
			HandleError(w, platformerrors.ErrInternal("check project access", err))
			return
		}
		if role == "" {
			HandleError(w, platformerrors.ErrAccessDenied(projectID))
			return
		}
		h(w, r)
	}
}

// logRequests logs every request with method, path, status, and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack delegates to the wrapped writer so the WebSocket upgrade works
// through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// currentUser returns the authenticated user set by requireAuth.
func currentUser(r *http.Request) *db.User {
	user, _ := r.Context().Value(userContextKey).(*db.User)
	return user
}
