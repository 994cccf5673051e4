package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landfill/clairkeys/core/playback"
	"github.com/landfill/clairkeys/model"
)

func testData() *model.AnimationData {
	return &model.AnimationData{
		Version:       model.AnimationVersion,
		Title:         "test",
		Duration:      2,
		Tempo:         120,
		TimeSignature: "4/4",
		Notes: []model.Note{
			{Pitch: "C4", StartTime: 0, Duration: 1},
		},
	}
}

func TestOpenGetClose(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())
	defer m.CloseAll()

	s := m.Open(7)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(s.ID))
	assert.Zero(t, m.Count())

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())
	defer m.CloseAll()

	a := m.Open(1)
	b := m.Open(2)
	require.NotEqual(t, a.ID, b.ID)

	require.NoError(t, a.Load(10, testData()))
	a.Engine().Play()

	// Playback in one session never leaks into another.
	assert.True(t, a.Engine().State().IsPlaying)
	assert.False(t, b.Engine().State().IsReady)
}

func TestDriverTicksThePlayingEngine(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())
	defer m.CloseAll()

	s := m.Open(1)
	require.NoError(t, s.Load(10, testData()))
	s.Engine().Play()

	// The driver goroutine runs on the real clock; give it a few intervals.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Engine().State().CurrentTime > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("driver never advanced the engine clock")
}

func TestCloseDisposesEngine(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())
	defer m.CloseAll()

	s := m.Open(1)
	require.NoError(t, s.Load(10, testData()))
	require.NoError(t, m.Close(s.ID))

	assert.ErrorIs(t, s.Engine().Load(testData()), playback.ErrDisposed)
	s.Close() // idempotent
}

func TestCloseAll(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())

	a := m.Open(1)
	b := m.Open(2)
	m.CloseAll()

	assert.Zero(t, m.Count())
	assert.ErrorIs(t, a.Engine().Load(testData()), playback.ErrDisposed)
	assert.ErrorIs(t, b.Engine().Load(testData()), playback.ErrDisposed)
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	m := NewManager(nil, playback.DefaultOptions())
	defer m.CloseAll()

	s := m.Open(1)
	before := s.LastSeen()
	time.Sleep(5 * time.Millisecond)
	s.Touch()
	assert.True(t, s.LastSeen().After(before))
}
