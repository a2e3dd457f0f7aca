package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/collabhq/collabd/internal/agent"
	"github.com/collabhq/collabd/internal/auth"
	"github.com/collabhq/collabd/internal/db"
	"github.com/collabhq/collabd/internal/events"
)

type testEnv struct {
	db        *db.AppDB
	tokens    *auth.Manager
	relay     *Relay
	publisher *events.MemoryPublisher
	server    *httptest.Server
}

func newTestEnv(t *testing.T, aiDelay time.Duration) *testEnv {
	t.Helper()

	adb := db.NewTestDB(t)
	tokens := auth.NewManager("test-secret", time.Hour)
	publisher := events.NewMemoryPublisher()
	responder := agent.NewResponder(adb, nil)
	r := NewRelay(adb, tokens, responder, publisher, nil, aiDelay)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		r.Close()
		publisher.Close()
	})

	return &testEnv{db: adb, tokens: tokens, relay: r, publisher: publisher, server: srv}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (e *testEnv) newUser(t *testing.T, username string) (*db.User, string) {
	t.Helper()

	u := &db.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
	}
	require.NoError(t, e.db.CreateUser(u))

	token, err := e.tokens.IssueToken(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) newProject(t *testing.T, owner *db.User, collaborators ...*db.User) *db.Project {
	t.Helper()

	p := &db.Project{ID: uuid.NewString(), Name: "proj", OwnerID: owner.ID}
	require.NoError(t, e.db.CreateProject(p))
	for _, c := range collaborators {
		require.NoError(t, e.db.AddCollaborator(uuid.NewString(), p.ID, c.ID, "collaborator"))
	}
	return p
}

func send(t *testing.T, ws *websocket.Conn, payload map[string]any) {
	t.Helper()

	msg, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, msg))
}

// readUntil reads messages until one with the wanted type arrives,
// skipping unrelated traffic.
func readUntil(t *testing.T, ws *websocket.Conn, wantType string) gjson.Result {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, ws.SetReadDeadline(deadline))
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)

		parsed := gjson.ParseBytes(msg)
		if parsed.Get("type").String() == wantType {
			return parsed
		}
	}
	t.Fatalf("no %q message within deadline", wantType)
	return gjson.Result{}
}

// expectSilence asserts no data message arrives within the window.
func expectSilence(t *testing.T, ws *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(window)))
	_, msg, err := ws.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected message: %s", msg)
	}
}

func authenticate(t *testing.T, ws *websocket.Conn, token string) {
	t.Helper()

	send(t, ws, map[string]any{"type": "authenticate", "token": token})
	readUntil(t, ws, "authenticated")
}

func joinProject(t *testing.T, ws *websocket.Conn, projectID string) {
	t.Helper()

	send(t, ws, map[string]any{"type": "join_project", "projectId": projectID})
	readUntil(t, ws, "project_users")
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	_, token := env.newUser(t, "alice")

	ws := env.dial(t)
	send(t, ws, map[string]any{"type": "authenticate", "token": token})

	msg := readUntil(t, ws, "authenticated")
	require.Equal(t, "alice", msg.Get("user.username").String())
}

func TestAuthenticateBadToken(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)

	ws := env.dial(t)
	send(t, ws, map[string]any{"type": "authenticate", "token": "garbage"})

	msg := readUntil(t, ws, "auth_error")
	require.Equal(t, "Invalid token", msg.Get("message").String())
}

func TestJoinRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, _ := env.newUser(t, "owner")
	p := env.newProject(t, owner)

	ws := env.dial(t)
	send(t, ws, map[string]any{"type": "join_project", "projectId": p.ID})

	msg := readUntil(t, ws, "error")
	require.Equal(t, "Not authenticated", msg.Get("message").String())
}

func TestJoinDeniedForOutsider(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, _ := env.newUser(t, "owner")
	_, token := env.newUser(t, "outsider")
	p := env.newProject(t, owner)

	ws := env.dial(t)
	authenticate(t, ws, token)
	send(t, ws, map[string]any{"type": "join_project", "projectId": p.ID})

	msg := readUntil(t, ws, "error")
	require.Equal(t, "Access denied to project", msg.Get("message").String())
}

func TestJoinNotifiesRoomAndListsUsers(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	first := env.dial(t)
	authenticate(t, first, ownerToken)
	joinProject(t, first, p.ID)

	second := env.dial(t)
	authenticate(t, second, collabToken)
	send(t, second, map[string]any{"type": "join_project", "projectId": p.ID})

	joined := readUntil(t, first, "user_joined")
	require.Equal(t, "collab", joined.Get("user.username").String())

	users := readUntil(t, second, "project_users")
	require.Len(t, users.Get("users").Array(), 2)
}

func TestCursorUpdateDoesNotEchoToSender(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	b := env.dial(t)
	authenticate(t, b, collabToken)
	joinProject(t, b, p.ID)
	readUntil(t, a, "user_joined")

	send(t, a, map[string]any{
		"type":      "cursor_update",
		"projectId": p.ID,
		"position":  map[string]any{"x": 10, "y": 20},
	})

	moved := readUntil(t, b, "cursor_moved")
	require.Equal(t, "owner", moved.Get("user.username").String())
	require.Equal(t, int64(10), moved.Get("position.x").Int())

	expectSilence(t, a, 200*time.Millisecond)
}

func TestLeaveThenEditNotDelivered(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	b := env.dial(t)
	authenticate(t, b, collabToken)
	joinProject(t, b, p.ID)
	readUntil(t, a, "user_joined")

	send(t, a, map[string]any{"type": "leave_project", "projectId": p.ID})
	left := readUntil(t, b, "user_left")
	require.Equal(t, "owner", left.Get("user.username").String())

	send(t, a, map[string]any{
		"type":      "document_edit",
		"projectId": p.ID,
		"changes":   map[string]any{"op": "insert"},
	})
	expectSilence(t, b, 200*time.Millisecond)
}

func TestTaskUpdateBroadcastsAndPersists(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	task := &db.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "t", CreatedBy: owner.ID}
	require.NoError(t, env.db.CreateTask(task))

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	b := env.dial(t)
	authenticate(t, b, collabToken)
	joinProject(t, b, p.ID)
	readUntil(t, a, "user_joined")

	send(t, a, map[string]any{
		"type":      "task_update",
		"projectId": p.ID,
		"taskId":    task.ID,
		"updates":   map[string]any{"status": "completed", "created_by": "evil"},
	})

	// Sender and room both receive the update.
	updA := readUntil(t, a, "task_updated")
	require.Equal(t, "completed", updA.Get("updates.status").String())
	readUntil(t, b, "task_updated")

	stored, err := env.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", stored.Status)
	require.Equal(t, owner.ID, stored.CreatedBy, "non-allow-listed field must not change")

	entries, err := env.db.ListActivity(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "task_updated", entries[0].Action)
}

func TestTaskUpdateRejectsUnknownFieldsOnly(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	p := env.newProject(t, owner)

	task := &db.Task{ID: uuid.NewString(), ProjectID: p.ID, Title: "t", CreatedBy: owner.ID}
	require.NoError(t, env.db.CreateTask(task))

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	send(t, a, map[string]any{
		"type":      "task_update",
		"projectId": p.ID,
		"taskId":    task.ID,
		"updates":   map[string]any{"created_by": "evil"},
	})

	msg := readUntil(t, a, "error")
	require.Equal(t, "No updatable task fields", msg.Get("message").String())
}

func TestAIRequestDelayedResponse(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	designAgent := &db.Agent{
		ID:           uuid.NewString(),
		Name:         "Design Assistant",
		Type:         db.AgentTypeDesign,
		Capabilities: []string{"color_schemes"},
	}
	require.NoError(t, env.db.SaveAgent(designAgent))

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	b := env.dial(t)
	authenticate(t, b, collabToken)
	joinProject(t, b, p.ID)
	readUntil(t, a, "user_joined")

	send(t, a, map[string]any{
		"type":      "ai_request",
		"projectId": p.ID,
		"agentId":   designAgent.ID,
		"task":      "suggest color schemes for the hero",
	})

	res := readUntil(t, a, "ai_response")
	require.Contains(t, res.Get("result").String(), "#3B82F6")
	require.NotEmpty(t, res.Get("executionId").String())

	activity := readUntil(t, b, "ai_activity")
	require.Equal(t, "owner", activity.Get("user.username").String())
	require.Contains(t, activity.Get("result").String(), "#3B82F6")

	exec, err := env.db.GetExecution(res.Get("executionId").String())
	require.NoError(t, err)
	require.NotNil(t, exec)
	require.Equal(t, db.ExecutionCompleted, exec.Status)
}

func TestAIRequestUnknownAgent(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	_, token := env.newUser(t, "owner")

	ws := env.dial(t)
	authenticate(t, ws, token)

	send(t, ws, map[string]any{"type": "ai_request", "agentId": "missing", "task": "help"})

	msg := readUntil(t, ws, "ai_error")
	require.Equal(t, "Agent not found", msg.Get("message").String())
}

func TestAIRequestPendingRowVisibleDuringDelay(t *testing.T) {
	env := newTestEnv(t, 500*time.Millisecond)
	owner, token := env.newUser(t, "owner")

	analysisAgent := &db.Agent{ID: uuid.NewString(), Name: "A", Type: db.AgentTypeAnalysis, Capabilities: []string{"analysis"}}
	require.NoError(t, env.db.SaveAgent(analysisAgent))

	ws := env.dial(t)
	authenticate(t, ws, token)
	send(t, ws, map[string]any{"type": "ai_request", "agentId": analysisAgent.ID, "task": "analyze"})

	// The pending row exists before the delayed response fires.
	require.Eventually(t, func() bool {
		execs, err := env.db.ListExecutions(owner.ID, "", 10)
		require.NoError(t, err)
		return len(execs) == 1 && execs[0].Status == db.ExecutionPending
	}, 400*time.Millisecond, 10*time.Millisecond)
}

func TestAIRequestCancelledOnDisconnect(t *testing.T) {
	env := newTestEnv(t, 300*time.Millisecond)
	owner, token := env.newUser(t, "owner")

	analysisAgent := &db.Agent{ID: uuid.NewString(), Name: "A", Type: db.AgentTypeAnalysis, Capabilities: []string{"analysis"}}
	require.NoError(t, env.db.SaveAgent(analysisAgent))

	ws := env.dial(t)
	authenticate(t, ws, token)
	send(t, ws, map[string]any{"type": "ai_request", "agentId": analysisAgent.ID, "task": "analyze"})

	// Let the pending row land before dropping the connection.
	require.Eventually(t, func() bool {
		execs, err := env.db.ListExecutions(owner.ID, "", 10)
		require.NoError(t, err)
		return len(execs) == 1
	}, 200*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	// Wait past the delay; the timer must have been cancelled and the
	// row marked failed, never completed.
	time.Sleep(600 * time.Millisecond)

	execs, err := env.db.ListExecutions(owner.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, db.ExecutionFailed, execs[0].Status)
	require.Contains(t, execs[0].Result, "cancelled")
}

func TestDisconnectNotifiesRooms(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, ownerToken := env.newUser(t, "owner")
	collab, collabToken := env.newUser(t, "collab")
	p := env.newProject(t, owner, collab)

	a := env.dial(t)
	authenticate(t, a, ownerToken)
	joinProject(t, a, p.ID)

	b := env.dial(t)
	authenticate(t, b, collabToken)
	joinProject(t, b, p.ID)
	readUntil(t, a, "user_joined")

	require.NoError(t, a.Close())

	left := readUntil(t, b, "user_left")
	require.Equal(t, "owner", left.Get("user.username").String())
}

func TestPublishedEventsReachRoom(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	owner, token := env.newUser(t, "owner")
	p := env.newProject(t, owner)

	ws := env.dial(t)
	authenticate(t, ws, token)
	joinProject(t, ws, p.ID)

	env.publisher.Publish(events.Event{
		Type:      events.TypeTaskCreated,
		ProjectID: p.ID,
		Data:      map[string]any{"title": "from rest"},
	})

	msg := readUntil(t, ws, events.TypeTaskCreated)
	require.Equal(t, "from rest", msg.Get("data.title").String())
}
