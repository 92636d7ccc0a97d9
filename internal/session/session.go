// Package session holds the authenticated identity of a device: the user,
// the bearer token and whether both are present. Sessions are created by a
// Manager and handed to request handlers through the request context.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dukerupert/gasportal/internal/model"
)

// TokenKey is the durable storage key holding the bearer token.
const TokenKey = "token"

var (
	// ErrNoProvider is returned when a session is read from a context that
	// was never wrapped by a session provider.
	ErrNoProvider = errors.New("session must be used within a provider")
	ErrEmptyToken = errors.New("session: empty token")
	// ErrRevoked is returned by Manager.Get when the backend rejected the
	// device's persisted token.
	ErrRevoked = errors.New("session: persisted token revoked")
)

// Storage is the durable key/value store the token is persisted to.
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Listener is called synchronously after every login or logout.
type Listener func(state model.AuthState)

type Session struct {
	mu        sync.RWMutex
	storage   Storage
	state     model.AuthState
	listeners map[int]Listener
	nextID    int
}

// New creates a session over storage. A token already in storage becomes the
// initial credential, but without a user the session is unauthenticated.
func New(storage Storage) (*Session, error) {
	s := &Session{
		storage:   storage,
		listeners: make(map[int]Listener),
	}
	token, ok, err := storage.GetItem(TokenKey)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if ok {
		s.state.Token = token
	}
	return s, nil
}

// Login persists token and replaces the session state with an authenticated
// one. When persisting fails the state is left untouched.
func (s *Session) Login(token string, user model.User) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	if err := s.storage.SetItem(TokenKey, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist token: %w", err)
	}
	s.state = model.AuthState{User: &user, Token: token, IsAuthenticated: true}
	state := s.snapshot()
	s.mu.Unlock()

	s.notify(state)
	return nil
}

// Logout clears the session and removes the persisted token. It is safe to
// call on a session that is already logged out; the in-memory state is
// cleared even if the storage write fails.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.state = model.AuthState{}
	err := s.storage.RemoveItem(TokenKey)
	state := s.snapshot()
	s.mu.Unlock()

	s.notify(state)
	if err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// State returns a copy of the current session state.
func (s *Session) State() model.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Token returns the bearer token, which may be set before the user is known.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

func (s *Session) User() *model.User {
	return s.State().User
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

// Subscribe registers fn for state changes and returns a function removing it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// snapshot must be called with mu held.
func (s *Session) snapshot() model.AuthState {
	state := s.state
	if state.User != nil {
		u := *state.User
		state.User = &u
	}
	return state
}

func (s *Session) notify(state model.AuthState) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(state)
	}
}
