package relay

import (
	"sync"
)

// Member is the identity bound to one authenticated connection.
type Member struct {
	ConnID   string `json:"-"`
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Registry tracks which connections are authenticated and which project
// rooms they occupy. All bookkeeping lives behind one mutex so the
// connection map, the room index, and the per-user index can never
// disagree with each other.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*Member             // connID -> identity
	rooms   map[string]map[string]struct{} // projectID -> connIDs
	byUser  map[string]string              // userID -> latest connID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]*Member),
		rooms:   make(map[string]map[string]struct{}),
		byUser:  make(map[string]string),
	}
}

// Authenticate binds an identity to a connection. A reconnecting user
// replaces their previous entry in the per-user index.
func (r *Registry) Authenticate(connID string, m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.ConnID = connID
	r.members[connID] = m
	r.byUser[m.UserID] = connID
}

// Identity returns the member bound to a connection, or nil when the
// connection has not authenticated.
func (r *Registry) Identity(connID string) *Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[connID]
}

// Join adds a connection to a project room.
func (r *Registry) Join(projectID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[projectID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[projectID] = room
	}
	room[connID] = struct{}{}
}

// Leave removes a connection from a project room. Returns false when
// the connection was not in the room.
func (r *Registry) Leave(projectID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(projectID, connID)
}

func (r *Registry) leaveLocked(projectID, connID string) bool {
	room, ok := r.rooms[projectID]
	if !ok {
		return false
	}
	if _, in := room[connID]; !in {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, projectID)
	}
	return true
}

// InRoom reports whether a connection currently occupies a project room.
func (r *Registry) InRoom(projectID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, in := r.rooms[projectID][connID]
	return in
}

// RoomConns returns the connection IDs in a project room.
func (r *Registry) RoomConns(projectID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.rooms[projectID]))
	for connID := range r.rooms[projectID] {
		conns = append(conns, connID)
	}
	return conns
}

// RoomMembers returns the authenticated members in a project room.
func (r *Registry) RoomMembers(projectID string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Member, 0, len(r.rooms[projectID]))
	for connID := range r.rooms[projectID] {
		if m := r.members[connID]; m != nil {
			members = append(members, m)
		}
	}
	return members
}

// Remove drops a connection entirely: identity, per-user index, and all
// room occupancy. Returns the identity and the rooms it was in so the
// caller can notify the remaining occupants.
func (r *Registry) Remove(connID string) (*Member, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.members[connID]
	delete(r.members, connID)
	if m != nil && r.byUser[m.UserID] == connID {
		delete(r.byUser, m.UserID)
	}

	var left []string
	for projectID := range r.rooms {
		if r.leaveLocked(projectID, connID) {
			left = append(left, projectID)
		}
	}
	return m, left
}

// ConnForUser returns the latest connection ID for a user, or "".
func (r *Registry) ConnForUser(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// MemberCount returns the number of authenticated connections.
func (r *Registry) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
