package chat

import "time"

// Session is a connection's single active room affiliation. It is created
// together with the room-side Member and destroyed together with it, always
// under the engine's lock, so the two views never drift apart.
type Session struct {
	ConnID   string
	Name     string
	RoomID   string
	JoinedAt time.Time
}

// Registry maps live connection ids to their sessions.
type Registry struct {
	byConn map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Session)}
}

func (r *Registry) Add(session *Session) {
	r.byConn[session.ConnID] = session
}

func (r *Registry) Get(connID string) (*Session, bool) {
	session, ok := r.byConn[connID]
	return session, ok
}

// Remove deletes the session if present and returns it.
func (r *Registry) Remove(connID string) (*Session, bool) {
	session, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	return session, ok
}

func (r *Registry) Len() int {
	return len(r.byConn)
}
