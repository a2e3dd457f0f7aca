// Package relay is the realtime surface: it upgrades WebSocket
// connections, authenticates them, tracks project room occupancy in a
// Registry, and fans messages out to room members. It also forwards
// events published by the REST surface into the matching rooms.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/collabhq/collabd/internal/agent"
	"github.com/collabhq/collabd/internal/auth"
	"github.com/collabhq/collabd/internal/db"
	"github.com/collabhq/collabd/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 256 * 1024
)

// Relay owns all live WebSocket connections.
type Relay struct {
	upgrader  websocket.Upgrader
	db        *db.AppDB
	tokens    *auth.Manager
	responder *agent.Responder
	registry  *Registry
	publisher events.Publisher
	logger    *slog.Logger
	aiDelay   time.Duration

	mu    sync.RWMutex
	conns map[string]*connection

	eventChan <-chan events.Event
	stop      chan struct{}
	stopOnce  sync.Once
}

// connection is one upgraded WebSocket with its outbound queue and the
// AI delay timers it owns. Timers die with the connection.
type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewRelay builds the relay and starts forwarding published events into
// project rooms. Callers must Close it to release the subscription.
func NewRelay(adb *db.AppDB, tokens *auth.Manager, responder *agent.Responder, publisher events.Publisher, logger *slog.Logger, aiDelay time.Duration) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if aiDelay <= 0 {
		aiDelay = 2 * time.Second
	}

	r := &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		db:        adb,
		tokens:    tokens,
		responder: responder,
		registry:  NewRegistry(),
		publisher: publisher,
		logger:    logger,
		aiDelay:   aiDelay,
		conns:     make(map[string]*connection),
		stop:      make(chan struct{}),
	}

	if publisher != nil {
		r.eventChan = publisher.Subscribe(events.GlobalProjectID)
		go r.forwardEvents()
	}
	return r
}

// Registry exposes room occupancy to the REST surface.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// ServeHTTP handles WebSocket upgrade requests.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}

	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()

	r.logger.Debug("websocket connected", "conn_id", c.id)

	go r.readPump(c)
	go r.writePump(c)
}

// readPump reads messages from the WebSocket connection.
func (r *Relay) readPump(c *connection) {
	defer r.closeConnection(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				r.logger.Error("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}
		r.handleMessage(c, message)
	}
}

// writePump writes queued messages and keepalive pings to the peer.
func (r *Relay) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain queued messages as separate frames.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches on the message type without decoding the
// whole payload first.
func (r *Relay) handleMessage(c *connection, data []byte) {
	switch gjson.GetBytes(data, "type").String() {
	case "authenticate":
		r.handleAuthenticate(c, data)
	case "join_project":
		r.handleJoinProject(c, data)
	case "leave_project":
		r.handleLeaveProject(c, data)
	case "document_edit":
		r.handleDocumentEdit(c, data)
	case "cursor_update":
		r.handleCursorUpdate(c, data)
	case "task_update":
		r.handleTaskUpdate(c, data)
	case "ai_request":
		r.handleAIRequest(c, data)
	case "typing_start":
		r.handleTyping(c, data, true)
	case "typing_stop":
		r.handleTyping(c, data, false)
	case "ping":
		r.sendJSON(c, map[string]any{"type": "pong"})
	default:
		r.sendError(c, "unknown message type: "+gjson.GetBytes(data, "type").String())
	}
}

func (r *Relay) handleAuthenticate(c *connection, data []byte) {
	token := gjson.GetBytes(data, "token").String()

	identity, err := r.tokens.VerifyToken(token)
	if err != nil {
		r.sendJSON(c, map[string]any{"type": "auth_error", "message": "Invalid token"})
		return
	}

	user, err := r.db.GetActiveUser(identity.UserID)
	if err != nil {
		r.logger.Error("load user for websocket auth", "error", err)
		r.sendJSON(c, map[string]any{"type": "auth_error", "message": "Invalid token"})
		return
	}
	if user == nil {
		r.sendJSON(c, map[string]any{"type": "auth_error", "message": "Invalid user"})
		return
	}

	m := &Member{UserID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role}
	r.registry.Authenticate(c.id, m)

	if err := r.db.UpsertSession(c.id, user.ID); err != nil {
		r.logger.Error("record session", "conn_id", c.id, "error", err)
	}

	r.sendJSON(c, map[string]any{"type": "authenticated", "user": m})
	r.logger.Info("websocket authenticated", "conn_id", c.id, "username", user.Username)
}

// member resolves the identity of a connection, sending the standard
// error when it has not authenticated yet.
func (r *Relay) member(c *connection) *Member {
	m := r.registry.Identity(c.id)
	if m == nil {
		r.sendError(c, "Not authenticated")
	}
	return m
}

func (r *Relay) handleJoinProject(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()

	role, err := r.db.ProjectAccess(m.UserID, projectID)
	if err != nil {
		r.logger.Error("check project access", "error", err)
		r.sendError(c, "Access denied to project")
		return
	}
	if role == "" {
		r.sendError(c, "Access denied to project")
		return
	}

	r.registry.Join(projectID, c.id)

	r.broadcast(projectID, c.id, map[string]any{
		"type":      "user_joined",
		"user":      m,
		"timestamp": now(),
	})
	r.sendJSON(c, map[string]any{
		"type":  "project_users",
		"users": r.registry.RoomMembers(projectID),
	})

	r.logger.Debug("joined project room", "conn_id", c.id, "project_id", projectID)
}

func (r *Relay) handleLeaveProject(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()

	if !r.registry.Leave(projectID, c.id) {
		return
	}
	r.broadcast(projectID, c.id, map[string]any{
		"type":      "user_left",
		"user":      m,
		"timestamp": now(),
	})
}

func (r *Relay) handleDocumentEdit(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()
	if !r.registry.InRoom(projectID, c.id) {
		return
	}

	r.broadcast(projectID, c.id, map[string]any{
		"type":      "document_updated",
		"user":      m,
		"changes":   rawField(data, "changes"),
		"timestamp": now(),
	})
}

func (r *Relay) handleCursorUpdate(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()
	if !r.registry.InRoom(projectID, c.id) {
		return
	}

	r.broadcast(projectID, c.id, map[string]any{
		"type":      "cursor_moved",
		"user":      m,
		"position":  rawField(data, "position"),
		"timestamp": now(),
	})
}

func (r *Relay) handleTaskUpdate(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()
	taskID := gjson.GetBytes(data, "taskId").String()
	if !r.registry.InRoom(projectID, c.id) {
		return
	}

	var update db.TaskFieldUpdate
	if raw := gjson.GetBytes(data, "updates").Raw; raw != "" {
		if err := json.Unmarshal([]byte(raw), &update); err != nil {
			r.sendError(c, "Failed to update task")
			return
		}
	}
	if update.Empty() {
		r.sendError(c, "No updatable task fields")
		return
	}

	task, err := r.db.GetTask(taskID)
	if err != nil || task == nil || task.ProjectID != projectID {
		r.sendError(c, "Failed to update task")
		return
	}

	if _, err := r.db.UpdateTaskFields(taskID, &update); err != nil {
		r.logger.Error("task update over relay", "task_id", taskID, "error", err)
		r.sendError(c, "Failed to update task")
		return
	}

	// The whole room sees the update, sender included.
	r.broadcast(projectID, "", map[string]any{
		"type":      "task_updated",
		"taskId":    taskID,
		"updates":   update,
		"updatedBy": m,
		"timestamp": now(),
	})

	details := map[string]any{"taskId": taskID, "updates": update}
	if err := r.db.AppendActivity(uuid.NewString(), m.UserID, projectID, "task_updated", details); err != nil {
		r.logger.Error("append activity", "error", err)
	}
}

func (r *Relay) handleAIRequest(c *connection, data []byte) {
	m := r.member(c)
	if m == nil {
		return
	}

	projectID := gjson.GetBytes(data, "projectId").String()
	agentID := gjson.GetBytes(data, "agentId").String()
	task := gjson.GetBytes(data, "task").String()

	var execContext map[string]any
	if raw := gjson.GetBytes(data, "context").Raw; raw != "" {
		if err := json.Unmarshal([]byte(raw), &execContext); err != nil {
			r.sendJSON(c, map[string]any{"type": "ai_error", "message": "Failed to process AI request"})
			return
		}
	}

	// The pending row is written up front so the request shows in the
	// execution history while it is in flight. Only the completion is
	// delayed; the timer is owned by the connection, and disconnecting
	// cancels it and marks the row failed.
	exec, a, err := r.responder.Begin(agentID, task, execContext, m.UserID, projectID)
	if err != nil {
		r.logger.Warn("ai request failed", "agent_id", agentID, "error", err)
		r.sendJSON(c, map[string]any{"type": "ai_error", "message": "Agent not found"})
		return
	}

	timer := time.AfterFunc(r.aiDelay, func() {
		c.dropTimer(exec.ID)

		res, err := r.responder.Complete(exec, a)
		if err != nil {
			r.logger.Error("complete ai execution", "execution_id", exec.ID, "error", err)
			r.sendJSON(c, map[string]any{"type": "ai_error", "message": "Failed to process AI request"})
			return
		}

		r.sendJSON(c, map[string]any{
			"type":        "ai_response",
			"executionId": res.ExecutionID,
			"agent":       res.Agent,
			"result":      res.Result,
			"timestamp":   res.Timestamp,
		})

		if projectID != "" {
			r.broadcast(projectID, "", map[string]any{
				"type":      "ai_activity",
				"user":      m,
				"agent":     res.Agent,
				"task":      task,
				"result":    res.Result,
				"timestamp": res.Timestamp,
			})
		}
	})
	c.addTimer(exec.ID, timer)
}

func (r *Relay) handleTyping(c *connection, data []byte, isTyping bool) {
	m := r.member(c)
	if m == nil {
		return
	}
	projectID := gjson.GetBytes(data, "projectId").String()
	if !r.registry.InRoom(projectID, c.id) {
		return
	}

	r.broadcast(projectID, c.id, map[string]any{
		"type":      "user_typing",
		"user":      m,
		"isTyping":  isTyping,
		"timestamp": now(),
	})
}

// forwardEvents pushes REST-published events into project rooms.
func (r *Relay) forwardEvents() {
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-r.eventChan:
			if !ok {
				return
			}
			r.broadcast(ev.ProjectID, "", map[string]any{
				"type":      ev.Type,
				"projectId": ev.ProjectID,
				"data":      ev.Data,
				"timestamp": now(),
			})
		}
	}
}

// broadcast sends a payload to every connection in a project room,
// optionally excluding one connection (typically the sender).
func (r *Relay) broadcast(projectID, excludeConnID string, payload map[string]any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal broadcast", "error", err)
		return
	}

	for _, connID := range r.registry.RoomConns(projectID) {
		if connID == excludeConnID {
			continue
		}
		r.mu.RLock()
		c := r.conns[connID]
		r.mu.RUnlock()
		if c != nil {
			c.enqueue(msg, r.logger)
		}
	}
}

// closeConnection tears down a connection: cancels its AI timers,
// notifies every room it occupied, and flips its session offline.
func (r *Relay) closeConnection(c *connection) {
	r.mu.Lock()
	if _, exists := r.conns[c.id]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c.id)
	r.mu.Unlock()

	for _, execID := range c.cancelTimers() {
		if err := r.responder.Cancel(execID); err != nil {
			r.logger.Error("cancel ai execution", "execution_id", execID, "error", err)
		}
	}

	m, rooms := r.registry.Remove(c.id)
	if m != nil {
		if err := r.db.MarkSessionOffline(c.id); err != nil {
			r.logger.Error("mark session offline", "conn_id", c.id, "error", err)
		}
		for _, projectID := range rooms {
			r.broadcast(projectID, c.id, map[string]any{
				"type":      "user_left",
				"user":      m,
				"timestamp": now(),
			})
		}
		r.logger.Info("websocket disconnected", "conn_id", c.id, "username", m.Username)
	}

	c.once.Do(func() { close(c.done) })
	_ = c.ws.Close()
}

// Close shuts down the relay and every live connection.
func (r *Relay) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.publisher != nil && r.eventChan != nil {
			r.publisher.Unsubscribe(events.GlobalProjectID, r.eventChan)
		}
	})

	r.mu.Lock()
	conns := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		r.closeConnection(c)
	}
}

// ConnectionCount returns the number of live connections.
func (r *Relay) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Relay) sendJSON(c *connection, payload any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal message", "error", err)
		return
	}
	c.enqueue(msg, r.logger)
}

func (r *Relay) sendError(c *connection, message string) {
	r.sendJSON(c, map[string]any{"type": "error", "message": message})
}

func (c *connection) enqueue(msg []byte, logger *slog.Logger) {
	select {
	case c.send <- msg:
	default:
		logger.Warn("websocket send buffer full, dropping message")
	}
}

func (c *connection) addTimer(id string, t *time.Timer) {
	c.timersMu.Lock()
	c.timers[id] = t
	c.timersMu.Unlock()
}

func (c *connection) dropTimer(id string) {
	c.timersMu.Lock()
	delete(c.timers, id)
	c.timersMu.Unlock()
}

// cancelTimers stops every pending timer and returns the execution ids
// whose timers had not fired yet. A timer that already fired is left to
// finish on its own.
func (c *connection) cancelTimers() []string {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	var cancelled []string
	for id, t := range c.timers {
		if t.Stop() {
			cancelled = append(cancelled, id)
		}
		delete(c.timers, id)
	}
	return cancelled
}

// rawField returns a field's raw JSON so payloads pass through
// untouched, or nil when absent.
func rawField(data []byte, key string) json.RawMessage {
	if res := gjson.GetBytes(data, key); res.Exists() {
		return json.RawMessage(res.Raw)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
