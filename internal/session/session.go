package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnonymousName is used when a user joins without entering a display name.
// Joining never fails on identity grounds; it degrades to this label.
const AnonymousName = "anonymous"

// Session identifies this client to the server. Presence and message
// attribution both key off UserID, so it must never change once assigned.
type Session struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Store holds the process-wide identity. The user id is generated on the
// first Join and kept for the lifetime of the process; joining again only
// replaces the display name.
type Store struct {
	mu   sync.RWMutex
	sess *Session
}

// NewStore creates an empty identity store.
func NewStore() *Store {
	return &Store{}
}

// Join records the given display name and returns the resulting session.
// The name is trimmed; an empty name falls back to AnonymousName.
func (s *Store) Join(displayName string) *Session {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = AnonymousName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		s.sess = &Session{
			UserID:   uuid.New().String(),
			JoinedAt: time.Now(),
		}
	}
	s.sess.DisplayName = name

	snap := *s.sess
	return &snap
}

// Current returns a snapshot of the active session, or nil before Join.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil
	}
	snap := *s.sess
	return &snap
}
