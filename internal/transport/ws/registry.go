package ws

import (
	"context"
	"sync"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// Peer is the outbound half of a live connection, enough for handlers to
// push frames at another user's session.
type Peer interface {
	SendPayload(ctx context.Context, payload any) error
}

// Session is the protocol state of one connection. Peer is set once at
// registration and immutable afterwards; the mutable fields are private
// and touched only under the Registry mutex, because other connections'
// handlers read and write them concurrently.
type Session struct {
	ID   string
	Peer Peer

	userID int64

	// pending holds the one outstanding verification challenge, if any.
	// Issuing a new code replaces the previous record.
	pending *domain.PendingVerification
}

// Registry maps live connections to sessions and authenticated users to
// their current connection. Both indices are guarded by one mutex; every
// compound operation happens under a single lock acquisition.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	users    map[int64]string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		users:    make(map[int64]string),
	}
}

// Put registers a fresh session for a just-accepted connection.
func (r *Registry) Put(id string, peer Peer) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := &Session{ID: id, Peer: peer}
	r.sessions[id] = session
	return session
}

// Get returns the session for a connection id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// BindUser points the user index at this connection. A user logging in
// from a second device steals the binding: last write wins, and the
// previous session keeps running unauthenticated. Rebinding the same
// pair is a no-op.
func (r *Registry) BindUser(id string, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return false
	}

	if prevID, ok := r.users[userID]; ok && prevID != id {
		if prev, ok := r.sessions[prevID]; ok {
			prev.userID = 0
		}
	}

	session.userID = userID
	r.users[userID] = id
	return true
}

// UserOf returns the account bound to the connection, zero when the
// connection is unknown or not yet authenticated.
func (r *Registry) UserOf(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return 0
	}
	return session.userID
}

// ResolveUser returns the live session a user is bound to, or nil.
func (r *Registry) ResolveUser(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.users[userID]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// SetPending installs a verification challenge on the session, replacing
// any prior one.
func (r *Registry) SetPending(id string, record *domain.PendingVerification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return false
	}
	session.pending = record
	return true
}

// Pending returns the session's outstanding challenge without clearing it.
func (r *Registry) Pending(id string) *domain.PendingVerification {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return session.pending
}

// TakePending removes and returns the outstanding challenge.
func (r *Registry) TakePending(id string) *domain.PendingVerification {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	record := session.pending
	session.pending = nil
	return record
}

// Remove drops both indices for a closing connection in one step. The
// user index entry is removed only if it still points at this connection,
// so a rebound user is not knocked off their newer session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)

	if session.userID != 0 {
		if boundID, ok := r.users[session.userID]; ok && boundID == id {
			delete(r.users, session.userID)
		}
	}
}

// Snapshot returns the currently registered sessions, for shutdown drains.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
