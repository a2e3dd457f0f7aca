package upload

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/collabhq/collabd/internal/db"
	platformerrors "github.com/collabhq/collabd/internal/errors"
)

func newStore(t *testing.T) (*Store, *db.AppDB, *db.User) {
	t.Helper()

	adb := db.NewTestDB(t)
	u := &db.User{ID: uuid.NewString(), Username: "up", Email: "up@example.com", PasswordHash: "x", IsActive: true}
	if err := adb.CreateUser(u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	s, err := NewStore(adb, t.TempDir(), 1024, 2, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, adb, u
}

// fileHeader builds a multipart.FileHeader the way a real request would.
func fileHeader(t *testing.T, name, mimeType string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	reader := multipart.NewReader(&buf, w.Boundary())
	form, err := reader.ReadForm(10 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"][0]
}

func TestSaveAllStoresFileAndMetadata(t *testing.T) {
	s, adb, u := newStore(t)

	fh := fileHeader(t, "mockup.png", "image/png", []byte("png-bytes"))
	stored, err := s.SaveAll([]*multipart.FileHeader{fh}, u.ID, "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("got %d stored files, want 1", len(stored))
	}
	st := stored[0]
	if st.OriginalName != "mockup.png" || st.MimeType != "image/png" {
		t.Errorf("unexpected stored file: %+v", st)
	}
	if st.URL != "/api/files/"+st.ID {
		t.Errorf("url = %q", st.URL)
	}

	rec, err := adb.GetUpload(st.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if rec == nil {
		t.Fatal("metadata row missing")
	}
	if filepath.Base(filepath.Dir(rec.Path)) != "images" {
		t.Errorf("image not routed to images dir: %s", rec.Path)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Errorf("file missing on disk: %v", err)
	}
}

func TestSaveAllRejectsDisallowedType(t *testing.T) {
	s, _, u := newStore(t)

	fh := fileHeader(t, "app.exe", "application/x-msdownload", []byte("mz"))
	_, err := s.SaveAll([]*multipart.FileHeader{fh}, u.ID, "")
	if err == nil {
		t.Fatal("expected rejection")
	}
	var perr *platformerrors.PlatformError
	if !errors.As(err, &perr) || perr.Code != platformerrors.CodeFileTypeDenied {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSaveAllRejectsOversizedFile(t *testing.T) {
	s, _, u := newStore(t)

	fh := fileHeader(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 2048))
	_, err := s.SaveAll([]*multipart.FileHeader{fh}, u.ID, "")
	if err == nil {
		t.Fatal("expected rejection")
	}
	var perr *platformerrors.PlatformError
	if !errors.As(err, &perr) || perr.Code != platformerrors.CodeFileTooLarge {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSaveAllRejectsTooManyFiles(t *testing.T) {
	s, _, u := newStore(t)

	files := []*multipart.FileHeader{
		fileHeader(t, "a.txt", "text/plain", []byte("a")),
		fileHeader(t, "b.txt", "text/plain", []byte("b")),
		fileHeader(t, "c.txt", "text/plain", []byte("c")),
	}
	if _, err := s.SaveAll(files, u.ID, ""); err == nil {
		t.Fatal("expected rejection for too many files")
	}
}

func TestOpenAndDelete(t *testing.T) {
	s, _, u := newStore(t)

	fh := fileHeader(t, "notes.txt", "text/plain", []byte("hello"))
	stored, err := s.SaveAll([]*multipart.FileHeader{fh}, u.ID, "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id := stored[0].ID

	rec, rc, err := s.Open(id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	content, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("content = %q", content)
	}

	// Someone else cannot delete the file.
	if err := s.Delete(id, "other-user"); err == nil {
		t.Fatal("expected delete by non-owner to fail")
	}

	if err := s.Delete(id, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
		t.Error("file still on disk after delete")
	}
	if _, _, err := s.Open(id); err == nil {
		t.Error("expected open after delete to fail")
	}
}
