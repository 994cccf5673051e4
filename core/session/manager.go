package session

import (
	"errors"
	"sync"
	"time"

	"github.com/landfill/clairkeys/core/playback"
	"github.com/landfill/clairkeys/logger"
)

// ErrSessionNotFound is returned when a session ID is unknown or already closed.
var ErrSessionNotFound = errors.New("session not found")

// defaultIdleTimeout is how long an untouched session survives before the
// reaper closes it. A WebSocket-attached session is touched on every inbound
// message.
const defaultIdleTimeout = 30 * time.Minute

// Manager tracks live playback sessions by ID. Each open session gets its own
// engine; there is deliberately no shared singleton engine, so two browser
// tabs never fight over one clock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newAudio func() playback.AudioAdapter
	opts     playback.Options

	idleTimeout time.Duration
	stopReaper  chan struct{}
	reaperOnce  sync.Once
}

// NewManager creates a session manager. newAudio builds a fresh audio adapter
// per session; nil defaults to the logging adapter.
func NewManager(newAudio func() playback.AudioAdapter, opts playback.Options) *Manager {
	if newAudio == nil {
		newAudio = func() playback.AudioAdapter { return playback.NewLogAdapter() }
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		newAudio:    newAudio,
		opts:        opts,
		idleTimeout: defaultIdleTimeout,
		stopReaper:  make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Open creates a session for userID and starts its driver.
func (m *Manager) Open(userID int64) *Session {
	engine := playback.NewEngine(m.newAudio(), m.opts)
	s := newSession(userID, engine)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	logger.Info("playback session opened",
		logger.String("session", s.ID),
		logger.Int64("user", userID),
		logger.Int("open", count))
	return s
}

// Get looks up a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears down one session.
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
	s.Close()
	return nil
}

// CloseAll tears down every session and stops the idle reaper. Used on
// server shutdown.
func (m *Manager) CloseAll() {
	m.reaperOnce.Do(func() { close(m.stopReaper) })

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	logger.Info("all playback sessions closed", logger.Int("count", len(sessions)))
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// reapLoop closes sessions idle past the timeout.
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopReaper:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		logger.Info("reaping idle playback session", logger.String("session", s.ID))
		s.Close()
	}
}
