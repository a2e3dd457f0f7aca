// Package upload saves multipart file uploads to disk and records their
// metadata. Files land in a subdirectory chosen by MIME type (images,
// documents, or temp) under a unique generated name.
package upload

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

// Limits matching the upload surface contract.
const (
	DefaultMaxFileSize = 10 << 20 // 10MB per file
	DefaultMaxFiles    = 5
)

var allowedTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
	"application/pdf":  {},
	"text/plain":       {},
	"text/csv":         {},
	"application/json": {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/zip":              {},
	"application/x-zip-compressed": {},
}

// Allowed reports whether a MIME type is accepted for upload.
func Allowed(mimeType string) bool {
	_, ok := allowedTypes[mimeType]
	return ok
}

// Stored describes one saved file, shaped for API responses.
type Stored struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	UploadedAt   string `json:"uploadedAt"`
}

// Store writes uploaded files under a base directory and records them.
type Store struct {
	db          *db.AppDB
	baseDir     string
	maxFileSize int64
	maxFiles    int
	logger      *slog.Logger
}

// NewStore creates the upload store and its directory layout.
func NewStore(adb *db.AppDB, baseDir string, maxFileSize int64, maxFiles int, logger *slog.Logger) (*Store, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, sub := range []string{"", "images", "documents", "temp"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}

	return &Store{
		db:          adb,
		baseDir:     baseDir,
		maxFileSize: maxFileSize,
		maxFiles:    maxFiles,
		logger:      logger,
	}, nil
}

// MaxFileSize returns the per-file size limit in bytes.
func (s *Store) MaxFileSize() int64 { return s.maxFileSize }

// MaxFiles returns the per-request file count limit.
func (s *Store) MaxFiles() int { return s.maxFiles }

// SaveAll validates and persists a batch of multipart files for one
// request. The whole batch is validated up front so a bad file rejects
// the request before anything touches disk.
func (s *Store) SaveAll(files []*multipart.FileHeader, userID, projectID string) ([]*Stored, error) {
	if len(files) == 0 {
		return nil, platformerrors.ErrValidation("no files provided")
	}
	if len(files) > s.maxFiles {
		return nil, platformerrors.ErrValidation(fmt.Sprintf("at most %d files per request", s.maxFiles))
	}
	for _, fh := range files {
		mimeType := fh.Header.Get("Content-Type")
		if !Allowed(mimeType) {
			return nil, platformerrors.ErrFileTypeDenied(mimeType)
		}
		if fh.Size > s.maxFileSize {
			return nil, platformerrors.ErrFileTooLarge(s.maxFileSize)
		}
	}

	stored := make([]*Stored, 0, len(files))
	for _, fh := range files {
		st, err := s.saveOne(fh, userID, projectID)
		if err != nil {
			return nil, err
		}
		stored = append(stored, st)
	}
	return stored, nil
}

func (s *Store) saveOne(fh *multipart.FileHeader, userID, projectID string) (*Stored, error) {
	mimeType := fh.Header.Get("Content-Type")

	src, err := fh.Open()
	if err != nil {
		return nil, platformerrors.ErrInternal("open uploaded file", err)
	}
	defer func() { _ = src.Close() }()

	filename := fmt.Sprintf("%s_%d%s", uuid.NewString(), time.Now().UnixMilli(), filepath.Ext(fh.Filename))
	path := filepath.Join(s.baseDir, subdirFor(mimeType), filename)

	dst, err := os.Create(path)
	if err != nil {
		return nil, platformerrors.ErrInternal("create file", err)
	}

	size, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, platformerrors.ErrInternal("write file", err)
	}

	rec := &db.Upload{
		ID:           uuid.NewString(),
		Filename:     filename,
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		Size:         size,
		Path:         path,
		UploadedBy:   userID,
		ProjectID:    projectID,
	}
	if err := s.db.CreateUpload(rec); err != nil {
		_ = os.Remove(path)
		return nil, platformerrors.ErrInternal("record upload", err)
	}

	return &Stored{
		ID:           rec.ID,
		Filename:     rec.Filename,
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		Size:         rec.Size,
		URL:          "/api/files/" + rec.ID,
		UploadedAt:   rec.CreatedAt,
	}, nil
}

// Open returns the metadata and a reader for a stored file.
func (s *Store) Open(id string) (*db.Upload, io.ReadCloser, error) {
	rec, err := s.db.GetUpload(id)
	if err != nil {
		return nil, nil, platformerrors.ErrInternal("load upload", err)
	}
	if rec == nil {
		return nil, nil, platformerrors.ErrFileNotFound(id)
	}

	f, err := os.Open(rec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, platformerrors.ErrFileNotFound(id)
		}
		return nil, nil, platformerrors.ErrInternal("open file", err)
	}
	return rec, f, nil
}

// Delete removes a file and its metadata. Only the uploader may delete.
func (s *Store) Delete(id, userID string) error {
	rec, err := s.db.GetUpload(id)
	if err != nil {
		return platformerrors.ErrInternal("load upload", err)
	}
	if rec == nil || rec.UploadedBy != userID {
		return platformerrors.ErrFileNotFound(id)
	}

	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return platformerrors.ErrInternal("remove file", err)
	}
	if err := s.db.DeleteUpload(id); err != nil {
		return platformerrors.ErrInternal("delete upload", err)
	}
	return nil
}

// CleanupTemp deletes temp files older than the cutoff.
func (s *Store) CleanupTemp(maxAge time.Duration) error {
	tempDir := filepath.Join(s.baseDir, "temp")
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return fmt.Errorf("read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(tempDir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn("remove temp file", "path", path, "error", err)
			}
		}
	}
	return nil
}

func subdirFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "images"
	case strings.Contains(mimeType, "pdf"),
		strings.Contains(mimeType, "text"),
		strings.Contains(mimeType, "document"),
		strings.Contains(mimeType, "word"),
		strings.Contains(mimeType, "excel"),
		strings.Contains(mimeType, "powerpoint"):
		return "documents"
	default:
		return "temp"
	}
}
