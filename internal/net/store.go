package net

import "github.com/kittyledger/server/internal/kitty"

// SessionStore tracks live sessions for the server loop. It is not safe for
// concurrent use; only the loop goroutine touches it.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (s *SessionStore) Add(sess *Session) {
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Remove(id uint64) {
	delete(s.sessions, id)
}

func (s *SessionStore) Get(id uint64) *Session {
	return s.sessions[id]
}

func (s *SessionStore) Count() int {
	return len(s.sessions)
}

// Raw exposes the map for loops that remove entries while iterating.
func (s *SessionStore) Raw() map[uint64]*Session {
	return s.sessions
}

func (s *SessionStore) ForEach(fn func(*Session)) {
	for _, sess := range s.sessions {
		fn(sess)
	}
}

// ForAccount calls fn for every open session logged in as a.
func (s *SessionStore) ForAccount(a kitty.Account, fn func(*Session)) {
	if a == "" {
		return
	}
	for _, sess := range s.sessions {
		if sess.Account == a && !sess.IsClosed() {
			fn(sess)
		}
	}
}
