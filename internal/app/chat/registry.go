package chat

import (
	"sync"

	"roomchat/internal/app/user"
)

// Registry tracks the live sessions of this process. It is keyed by
// connection id, so every concurrent connection of an identity keeps its own
// joined-room set; the identity index only answers lookups.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byIdentity map[string]map[string]*Session
	seq        uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]map[string]*Session),
	}
}

// Register records a new session for identity on connID. first reports
// whether it is the only live session of the identity.
func (r *Registry) Register(identity user.Identity, connID string, outbox Outbox) (s *Session, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	s = newSession(connID, identity, outbox)
	s.seq = r.seq

	r.sessions[connID] = s

	set, ok := r.byIdentity[identity.ID]
	if !ok {
		set = make(map[string]*Session)
		r.byIdentity[identity.ID] = set
	}
	set[connID] = s

	return s, len(set) == 1
}

// Unregister drops the session of connID. last reports whether the identity
// has no live session left. Unknown ids return a nil session.
func (r *Registry) Unregister(connID string) (s *Session, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)

	set := r.byIdentity[s.UserID()]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byIdentity, s.UserID())
		return s, true
	}
	return s, false
}

// Get returns the session of connID.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	return s, ok
}

// Lookup returns the most recently registered session of identityID.
func (r *Registry) Lookup(identityID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *Session
	for _, s := range r.byIdentity[identityID] {
		if newest == nil || s.seq > newest.seq {
			newest = s
		}
	}
	return newest, newest != nil
}

// SessionsOf returns every live session of identityID.
func (r *Registry) SessionsOf(identityID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.byIdentity[identityID]))
	for _, s := range r.byIdentity[identityID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// All returns every live session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
