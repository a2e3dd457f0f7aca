package api

import (
	"io"
	"net/http"
	"strconv"

	platformerrors "github.com/collabhq/collabd/internal/errors"
	"github.com/collabhq/collabd/internal/events"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	// Parse with headroom above the per-file cap; per-file sizes are
	// enforced by the store.
	maxMemory := s.uploads.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxMemory*int64(s.uploads.MaxFiles())+1<<20)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		HandleError(w, platformerrors.ErrValidation("invalid multipart request"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	files := r.MultipartForm.File["files"]
	projectID := r.FormValue("projectId")

	if projectID != "" {
		role, err := s.db.ProjectAccess(user.ID, projectID)
		if err != nil {
			HandleError(w, platformerrors.ErrInternal("check project access", err))
			return
		}
		if role == "" {
			HandleError(w, platformerrors.ErrAccessDenied(projectID))
			return
		}
	}

	stored, err := s.uploads.SaveAll(files, user.ID, projectID)
	if err != nil {
		HandleError(w, err)
		return
	}

	if projectID != "" {
		s.publisher.Publish(events.Event{
			Type:      events.TypeFileUploaded,
			ProjectID: projectID,
			Data:      map[string]any{"files": stored, "uploadedBy": publicUser(user)},
		})
	}

	JSONResponse(w, map[string]any{"success": true, "files": stored})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, rc, err := s.uploads.Open(r.PathValue("fileId"))
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.OriginalName+`"`)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := s.uploads.Delete(r.PathValue("fileId"), user.ID); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}
