// Package server tracks login sessions issued by the authentication endpoint.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session associates an opaque token with the username that logged in.
// Sessions are never expired; they live until the process restarts.
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
}

// SessionStore is an in-memory mapping from session token to session. It is
// safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create issues a fresh UUID token for the username and records the session.
func (s *SessionStore) Create(username string) *Session {
	session := &Session{
		Token:     uuid.NewString(),
		Username:  username,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// Get returns the session for the token, if one exists.
func (s *SessionStore) Get(token string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	return session, ok
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
