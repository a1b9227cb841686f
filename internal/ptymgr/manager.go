package ptymgr

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSessionNotFound is returned by operations on an unknown session id.
var ErrSessionNotFound = errors.New("ptymgr: session not found")

// Manager owns every live PTY session for the daemon (§4.5).
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	scrollback int
	logger     *slog.Logger
}

// NewManager builds a Manager. scrollback <= 0 falls back to
// DefaultScrollback.
func NewManager(scrollback int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		scrollback: scrollback,
		logger:     logger.With("component", "ptymgr"),
	}
}

// Create starts a new PTY session under id, running command with args at
// the given terminal size.
func (m *Manager) Create(id, command string, args []string, cols, rows uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; exists {
		return nil
	}
	s, err := newSession(id, command, args, cols, rows, m.scrollback, m.logger)
	if err != nil {
		return err
	}
	m.sessions[id] = s
	return nil
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Write sends keystroke bytes into session id.
func (m *Manager) Write(id string, data []byte) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// WriteSpecialKey resolves a named key (§6.6) and writes its byte
// sequence into the session.
func (m *Manager) WriteSpecialKey(id, key string) error {
	seq, err := SpecialKeyBytes(key)
	if err != nil {
		return err
	}
	return m.Write(id, seq)
}

// Resize updates a session's terminal dimensions.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Resize(cols, rows)
}

// ReadSince returns every scrollback line appended since cursor, and the
// cursor to resume from on the next call. Used by an observer polling at
// ~100ms intervals (§4.5, §4.6).
func (m *Manager) ReadSince(id string, cursor int) ([]string, int, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, 0, err
	}
	lines, next := s.buffer.Since(cursor)
	return lines, next, nil
}

// InitFrame returns the last n lines of scrollback plus the resume cursor,
// used to seed a newly attaching observer (§6.4).
func (m *Manager) InitFrame(id string, n int) ([]string, int, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, 0, err
	}
	lines, next := s.buffer.LastN(n)
	return lines, next, nil
}

// Closed reports whether the session's subprocess has exited.
func (m *Manager) Closed(id string) (bool, error) {
	s, err := m.get(id)
	if err != nil {
		return false, err
	}
	return s.Closed(), nil
}

// Close terminates a session and removes it from the manager.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

// CloseAll terminates every live session, used on daemon shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}
