package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/gasportal/internal/model"
)

// StorageFunc returns the durable storage for a device.
type StorageFunc func(deviceID string) Storage

// Restorer fetches the user behind a persisted token. It runs with the new
// session already in ctx, so API clients reading credentials from the
// context send the restored token.
type Restorer func(ctx context.Context) (model.User, error)

// ChangeFunc observes state changes of every session the manager owns.
type ChangeFunc func(deviceID string, state model.AuthState)

type entry struct {
	session  *Session
	lastSeen time.Time

	// mu serializes restore attempts; restored is set once an attempt
	// succeeded or the token turned out to be revoked.
	mu       sync.Mutex
	restored bool
}

// Manager owns one Session per device.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	storage  StorageFunc
	restore  Restorer
	onChange []ChangeFunc
	logger   *slog.Logger
}

func NewManager(storage StorageFunc, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		storage:  storage,
		logger:   logger,
	}
}

// SetRestorer installs the hook used to rehydrate users for persisted tokens.
func (m *Manager) SetRestorer(r Restorer) {
	m.mu.Lock()
	m.restore = r
	m.mu.Unlock()
}

// OnChange registers fn on every session created after the call.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Get returns the device's session, creating it on first use. A persisted
// token is rehydrated on the first Get that manages to reach the backend. When
// the backend rejects the token, Get returns the now signed-out session along
// with an error wrapping ErrRevoked.
func (m *Manager) Get(ctx context.Context, deviceID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[deviceID]
	if !ok {
		s, err := New(m.storage(deviceID))
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("new session: %w", err)
		}
		for _, fn := range m.onChange {
			s.Subscribe(func(state model.AuthState) { fn(deviceID, state) })
		}
		e = &entry{session: s}
		m.sessions[deviceID] = e
	}
	e.lastSeen = time.Now()
	restore := m.restore
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restored {
		return e.session, nil
	}
	done, err := m.restoreUser(ctx, deviceID, e.session, restore)
	e.restored = done
	return e.session, err
}

// restoreUser reports whether the device needs no further restore attempts.
func (m *Manager) restoreUser(ctx context.Context, deviceID string, s *Session, restore Restorer) (bool, error) {
	token := s.Token()
	if restore == nil || token == "" {
		return true, nil
	}
	user, err := restore(WithSession(ctx, s))
	if err != nil {
		// Credentials drop the token when the backend answers 401.
		if s.Token() == "" {
			return true, fmt.Errorf("%w: %w", ErrRevoked, err)
		}
		m.logger.Warn("restore session", "device", deviceID, "error", err)
		return false, nil
	}
	// A login that raced the restore wins.
	if s.Token() != token {
		return true, nil
	}
	if err := s.Login(token, user); err != nil {
		m.logger.Error("restore session login", "device", deviceID, "error", err)
		return false, nil
	}
	return true, nil
}

// Devices returns the ids of every live session.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Prune drops sessions not used within idle. Their durable tokens stay, so a
// returning device starts from storage again.
func (m *Manager) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	n := 0
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Has reports whether the device has a live session.
func (m *Manager) Has(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[deviceID]
	return ok
}
