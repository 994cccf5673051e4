package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/landfill/clairkeys/core/playback"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
)

// Session binds one playback engine to one driver goroutine. The driver owns
// the tick cadence; the engine owns all playback state. Closing the session
// stops the driver and disposes the engine, in that order, so no tick lands
// after disposal.
type Session struct {
	ID      string
	UserID  int64
	SheetID int64

	engine *playback.Engine

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(userID int64, engine *playback.Engine) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		engine:   engine,
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}
	go s.drive()
	return s
}

// Engine returns the session's playback engine.
func (s *Session) Engine() *playback.Engine {
	return s.engine
}

// Touch marks the session as recently used, deferring idle reaping.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen reports the last Touch time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Load replaces the session's loaded piece and records its sheet ID.
func (s *Session) Load(sheetID int64, data *model.AnimationData) error {
	if err := s.engine.Load(data); err != nil {
		return err
	}
	s.mu.Lock()
	s.SheetID = sheetID
	s.mu.Unlock()
	return nil
}

// Close stops the driver loop and disposes the engine. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.engine.Dispose()
		logger.Debug("session closed", logger.String("session", s.ID))
	})
}

// drive ticks the engine at its configured cadence until the session closes.
// Ticks on a paused engine are no-ops, so the loop runs unconditionally.
func (s *Session) drive() {
	ticker := time.NewTicker(s.engine.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.engine.Tick()
		}
	}
}
