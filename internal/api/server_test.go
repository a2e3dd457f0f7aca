package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/collabd/internal/config"
	"github.com/collabhq/collabd/internal/db"
	"github.com/collabhq/collabd/internal/events"
)

type apiEnv struct {
	server *Server
	db     *db.AppDB
	http   *httptest.Server
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Upload.Dir = t.TempDir()
	cfg.Upload.MaxFileSize = 1 << 20
	cfg.AIDelay = time.Millisecond

	adb := db.NewTestDB(t)
	s, err := New(cfg, adb, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return &apiEnv{server: s, db: adb, http: srv}
}

func (e *apiEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (e *apiEnv) register(t *testing.T, username string) (string, string) {
	t.Helper()

	resp, body := e.request(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)
	userID := body["user"].(map[string]any)["id"].(string)
	return token, userID
}

func (e *apiEnv) createProject(t *testing.T, token, name string) string {
	t.Helper()

	resp, body := e.request(t, http.MethodPost, "/api/projects", token, map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["project"].(map[string]any)["id"].(string)
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.Equal(t, "healthy", body["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	env := newAPIEnv(t)

	token, _ := env.register(t, "alice")
	require.NotEmpty(t, token)

	// Duplicate registration is rejected.
	resp, body := env.request(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "alice", "email": "other@example.com", "password": "x",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, false, body["success"])

	// Login with the right password.
	resp, body = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "alice", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])

	// Wrong password.
	resp, _ = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "alice", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileRequiresAuth(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.request(t, http.MethodGet, "/api/users/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _ := env.register(t, "bob")
	resp, body := env.request(t, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "bob", body["user"].(map[string]any)["username"])
}

func TestProjectLifecycleAndAccess(t *testing.T) {
	env := newAPIEnv(t)

	ownerToken, _ := env.register(t, "owner")
	outsiderToken, _ := env.register(t, "outsider")

	projectID := env.createProject(t, ownerToken, "Site Redesign")

	resp, body := env.request(t, http.MethodGet, "/api/projects", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["projects"].([]any), 1)

	resp, body = env.request(t, http.MethodGet, "/api/projects/"+projectID, ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Site Redesign", body["project"].(map[string]any)["name"])

	// Outsiders cannot read the project.
	resp, _ = env.request(t, http.MethodGet, "/api/projects/"+projectID, outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Outsider's own project list stays empty.
	resp, body = env.request(t, http.MethodGet, "/api/projects", outsiderToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, body["projects"].([]any))
}

func TestTaskCRUD(t *testing.T) {
	env := newAPIEnv(t)

	token, _ := env.register(t, "owner")
	outsiderToken, _ := env.register(t, "outsider")
	projectID := env.createProject(t, token, "p")

	resp, body := env.request(t, http.MethodPost, "/api/projects/"+projectID+"/tasks", token, map[string]any{
		"title": "Ship it", "priority": "high", "tags": []string{"launch"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := body["task"].(map[string]any)["id"].(string)

	resp, body = env.request(t, http.MethodGet, "/api/projects/"+projectID+"/tasks", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["tasks"].([]any), 1)

	// Allow-listed update; unknown fields are ignored.
	resp, body = env.request(t, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]any{
		"status": "completed", "created_by": "evil",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := body["task"].(map[string]any)
	require.Equal(t, "completed", updated["status"])
	require.NotEqual(t, "evil", updated["created_by"])

	// Outsiders cannot touch the task.
	resp, _ = env.request(t, http.MethodPatch, "/api/tasks/"+taskID, outsiderToken, map[string]any{"status": "pending"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Empty update is a validation error.
	resp, _ = env.request(t, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]any{"created_by": "evil"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.request(t, http.MethodDelete, "/api/tasks/"+taskID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]any{"status": "pending"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskCreatePublishesEvent(t *testing.T) {
	env := newAPIEnv(t)

	token, _ := env.register(t, "owner")
	projectID := env.createProject(t, token, "p")

	ch := env.server.Publisher().Subscribe(projectID)
	defer env.server.Publisher().Unsubscribe(projectID, ch)

	resp, _ := env.request(t, http.MethodPost, "/api/projects/"+projectID+"/tasks", token, map[string]any{"title": "t"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case ev := <-ch:
		require.Equal(t, events.TypeTaskCreated, ev.Type)
		require.Equal(t, projectID, ev.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("no event published for task creation")
	}
}

func TestAgentExecuteOverREST(t *testing.T) {
	env := newAPIEnv(t)

	token, _ := env.register(t, "owner")

	a := &db.Agent{
		ID:           uuid.NewString(),
		Name:         "Design Assistant",
		Type:         db.AgentTypeDesign,
		Capabilities: []string{"color_schemes"},
	}
	require.NoError(t, env.db.SaveAgent(a))

	resp, body := env.request(t, http.MethodGet, "/api/agents", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["agents"].([]any), 1)

	resp, body = env.request(t, http.MethodPost, "/api/agents/"+a.ID+"/execute", token, map[string]any{
		"task": "pick color schemes for the dashboard",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Contains(t, result["result"].(string), "#3B82F6")

	resp, body = env.request(t, http.MethodGet, "/api/executions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["executions"].([]any), 1)
}

func TestAgentExecuteUnknownAgent(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.register(t, "owner")

	resp, _ := env.request(t, http.MethodPost, "/api/agents/missing/execute", token, map[string]any{"task": "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadAndDownload(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.register(t, "owner")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="notes.txt"`)
	h.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("upload me"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	files := body["files"].([]any)
	require.Len(t, files, 1)
	fileID := files[0].(map[string]any)["id"].(string)

	// Download is public, matching the static file serving contract.
	dlResp, err := http.Get(env.http.URL + "/api/files/" + fileID)
	require.NoError(t, err)
	defer func() { _ = dlResp.Body.Close() }()
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	content, err := io.ReadAll(dlResp.Body)
	require.NoError(t, err)
	require.Equal(t, "upload me", string(content))
}

func TestFigmaProxyEndpoints(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files/key/nodes":
			_, _ = w.Write([]byte(`{"nodes":{"1:2":{"document":{"children":[{"id":"1:3","name":"Frame","type":"FRAME"}]}}}}`))
		case r.URL.Path == "/images/key":
			_, _ = w.Write([]byte(`{"images":{"1:2":"https://cdn.example/x.png"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Upload.Dir = t.TempDir()
	cfg.FigmaBaseURL = upstream.URL

	adb := db.NewTestDB(t)
	s, err := New(cfg, adb, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	env := &apiEnv{server: s, db: adb, http: srv}
	token, _ := env.register(t, "owner")

	resp, body := env.request(t, http.MethodPost, "/api/figma/layers", token, map[string]any{
		"fileKey": "key", "nodeId": "1:2", "accessToken": "tok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["layers"].([]any), 1)

	resp, body = env.request(t, http.MethodPost, "/api/figma/image", token, map[string]any{
		"fileKey": "key", "nodeId": "1:2", "accessToken": "tok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://cdn.example/x.png", body["imageUrl"])
}

func TestCollaboratorEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	ownerToken, _ := env.register(t, "owner")
	friendToken, friendID := env.register(t, "friend")
	projectID := env.createProject(t, ownerToken, "shared")

	resp, _ := env.request(t, http.MethodPost, "/api/projects/"+projectID+"/collaborators", ownerToken, map[string]any{
		"userId": friendID, "role": "editor",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.request(t, http.MethodGet, "/api/projects/"+projectID+"/collaborators", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	collabs := body["collaborators"].([]any)
	require.Len(t, collabs, 1)
	require.Equal(t, "friend", collabs[0].(map[string]any)["username"])

	// The new collaborator can read the project but not grant access.
	resp, _ = env.request(t, http.MethodGet, "/api/projects/"+projectID, friendToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, strangerID := env.register(t, "stranger")
	resp, _ = env.request(t, http.MethodPost, "/api/projects/"+projectID+"/collaborators", friendToken, map[string]any{
		"userId": strangerID,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown users are rejected.
	resp, _ = env.request(t, http.MethodPost, "/api/projects/"+projectID+"/collaborators", ownerToken, map[string]any{
		"userId": "nope",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgentStatsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.register(t, "owner")

	a := &db.Agent{
		ID:           uuid.NewString(),
		Name:         "Design Assistant",
		Type:         db.AgentTypeDesign,
		Capabilities: []string{"color_schemes"},
	}
	require.NoError(t, env.db.SaveAgent(a))

	resp, body := env.request(t, http.MethodGet, "/api/agents/"+a.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Design Assistant", body["agent"].(map[string]any)["name"])

	resp, _ = env.request(t, http.MethodPost, "/api/agents/"+a.ID+"/execute", token, map[string]any{
		"task": "pick color schemes",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.request(t, http.MethodGet, "/api/agents/"+a.ID+"/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["stats"].(map[string]any)
	require.Equal(t, float64(1), stats["total"])
	require.Equal(t, float64(1), stats["completed"])
	require.Equal(t, float64(0), stats["failed"])

	resp, _ = env.request(t, http.MethodGet, "/api/agents/missing/stats", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskUpdateRecordsActivity(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.register(t, "owner")
	projectID := env.createProject(t, token, "p")

	resp, body := env.request(t, http.MethodPost, "/api/projects/"+projectID+"/tasks", token, map[string]any{"title": "t"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := body["task"].(map[string]any)["id"].(string)

	resp, _ = env.request(t, http.MethodPatch, "/api/tasks/"+taskID, token, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.request(t, http.MethodGet, "/api/projects/"+projectID+"/activity", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	activities := body["activities"].([]any)
	require.Len(t, activities, 1)
	require.Equal(t, "task_updated", activities[0].(map[string]any)["action"])
}

func TestFigmaProxyValidation(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.register(t, "owner")

	resp, _ := env.request(t, http.MethodPost, "/api/figma/layers", token, map[string]any{"fileKey": "k"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
