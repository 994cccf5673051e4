package playback

import (
	"context"
	"sync/atomic"

	"github.com/landfill/clairkeys/logger"
)

// AudioAdapter is the contract the engine requires of an audio backend.
//
// PlayNote must be idempotent if the pitch is already sounding; ReleaseNote
// must be a no-op (not an error) if it is not. Initialize may fail; the
// engine treats that as a degraded, visual-only session and keeps going.
type AudioAdapter interface {
	Initialize(ctx context.Context) error
	PlayNote(pitch string, velocity float64)
	ReleaseNote(pitch string)
	Ready() bool
}

// LogAdapter is an AudioAdapter that only logs trigger calls. It is the
// default backend on the server, where actual synthesis happens client-side;
// the trigger stream reaches clients through the event bus instead.
type LogAdapter struct {
	ready atomic.Bool
}

// NewLogAdapter creates a logging audio adapter.
func NewLogAdapter() *LogAdapter {
	return &LogAdapter{}
}

// Initialize marks the adapter ready. Never fails.
func (a *LogAdapter) Initialize(ctx context.Context) error {
	a.ready.Store(true)
	return nil
}

// PlayNote logs a note trigger.
func (a *LogAdapter) PlayNote(pitch string, velocity float64) {
	logger.Debug("audio play",
		logger.String("pitch", pitch),
		logger.Float64("velocity", velocity))
}

// ReleaseNote logs a note release.
func (a *LogAdapter) ReleaseNote(pitch string) {
	logger.Debug("audio release", logger.String("pitch", pitch))
}

// Ready reports whether Initialize has run.
func (a *LogAdapter) Ready() bool {
	return a.ready.Load()
}
