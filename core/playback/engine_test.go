package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landfill/clairkeys/model"
)

// fakeClock is an injectable clock the tests advance by hand.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

// recordingAudio records every trigger so tests can assert on the stream.
type recordingAudio struct {
	mu       sync.Mutex
	plays    []string
	releases []string
}

func (a *recordingAudio) Initialize(ctx context.Context) error { return nil }
func (a *recordingAudio) Ready() bool                          { return true }

func (a *recordingAudio) PlayNote(pitch string, velocity float64) {
	a.mu.Lock()
	a.plays = append(a.plays, pitch)
	a.mu.Unlock()
}

func (a *recordingAudio) ReleaseNote(pitch string) {
	a.mu.Lock()
	a.releases = append(a.releases, pitch)
	a.mu.Unlock()
}

func (a *recordingAudio) Plays() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.plays...)
}

func (a *recordingAudio) Releases() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.releases...)
}

// recordedEvent is one bus emission with its topic.
type recordedEvent struct {
	topic Topic
	event interface{}
}

// recorder subscribes to every topic and keeps the emissions in order.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) attach(e *Engine) {
	for _, topic := range []Topic{
		TopicTimeUpdate, TopicPlayStateChange, TopicSpeedChange,
		TopicNoteStart, TopicNoteEnd,
	} {
		topic := topic
		e.On(topic, func(event interface{}) {
			r.mu.Lock()
			r.events = append(r.events, recordedEvent{topic, event})
			r.mu.Unlock()
		})
	}
}

func (r *recorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// byTopic filters the recorded stream.
func (r *recorder) byTopic(topic Topic) []recordedEvent {
	var out []recordedEvent
	for _, ev := range r.all() {
		if ev.topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock, *recordingAudio, *recorder) {
	t.Helper()
	clk := newFakeClock()
	audio := &recordingAudio{}
	e := NewEngine(audio, DefaultOptions())
	e.now = clk.Now
	t.Cleanup(e.Dispose)

	rec := &recorder{}
	rec.attach(e)
	return e, clk, audio, rec
}

func testPiece(duration float64, notes ...model.Note) *model.AnimationData {
	return &model.AnimationData{
		Version:       model.AnimationVersion,
		Title:         "test piece",
		Duration:      duration,
		Tempo:         120,
		TimeSignature: "4/4",
		Notes:         notes,
	}
}

func TestLoadResetsAndEmitsTimeZero(t *testing.T) {
	e, _, _, rec := newTestEngine(t)

	data := testPiece(4, model.Note{Pitch: "C4", StartTime: 1, Duration: 1})
	require.NoError(t, e.Load(data))

	snap := e.State()
	assert.True(t, snap.IsReady)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.CurrentTime)
	assert.Equal(t, 1.0, snap.Speed)
	assert.Empty(t, snap.ActiveNotes)

	updates := rec.byTopic(TopicTimeUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, TimeUpdate{Time: 0}, updates[0].event)
}

func TestLoadRejectsInvalidData(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	bad := testPiece(4, model.Note{Pitch: "H9", StartTime: 0, Duration: 1})
	assert.Error(t, e.Load(bad))
	assert.False(t, e.State().IsReady)
}

func TestPlayWithoutLoadIsNoop(t *testing.T) {
	e, clk, _, rec := newTestEngine(t)

	e.Play()
	clk.Advance(time.Second)
	e.Tick()

	assert.False(t, e.State().IsPlaying)
	assert.Empty(t, rec.all())
}

func TestTickAdvancesClockAndTriggersNotes(t *testing.T) {
	e, clk, audio, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(4,
		model.Note{Pitch: "C4", StartTime: 0.1, Duration: 1},
	)))
	rec.reset()

	e.Play()
	clk.Advance(200 * time.Millisecond)
	e.Tick()

	snap := e.State()
	assert.True(t, snap.IsPlaying)
	assert.InDelta(t, 0.2, snap.CurrentTime, 1e-9)
	assert.Equal(t, []string{"C4"}, snap.ActiveNotes)
	assert.Equal(t, []string{"C4"}, audio.Plays())

	starts := rec.byTopic(TopicNoteStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "C4", starts[0].event.(NoteStart).Note.Pitch)
}

// A note whose tail extends past the piece still ends the piece on time: the
// completion tick releases it, stops the clock and reports the clamped
// duration as the final time.
func TestCompletionClampsAndReleases(t *testing.T) {
	e, clk, audio, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(0.5,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 2},
	)))
	rec.reset()

	e.Play()
	clk.Advance(300 * time.Millisecond)
	e.Tick()

	require.Equal(t, []string{"C4"}, e.State().ActiveNotes)
	rec.reset()

	clk.Advance(300 * time.Millisecond) // past the 0.5s duration
	e.Tick()

	snap := e.State()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.5, snap.CurrentTime)
	assert.Empty(t, snap.ActiveNotes)
	assert.Equal(t, []string{"C4"}, audio.Releases())

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, TopicNoteEnd, events[0].topic)
	assert.Equal(t, TopicPlayStateChange, events[1].topic)
	assert.Equal(t, PlayStateChange{IsPlaying: false}, events[1].event)
	assert.Equal(t, TopicTimeUpdate, events[2].topic)
	assert.Equal(t, TimeUpdate{Time: 0.5}, events[2].event)
}

// Overlapping notes on the same pitch are distinct instances: each gets its
// own start and end, with no deduplication.
func TestOverlappingSamePitchNotesFireIndependently(t *testing.T) {
	e, clk, _, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(2,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 1},
		model.Note{Pitch: "C4", StartTime: 0.5, Duration: 1},
	)))
	rec.reset()

	e.Play()
	for i := 0; i < 7; i++ { // ticks at 0.25s .. 1.75s
		clk.Advance(250 * time.Millisecond)
		e.Tick()
	}

	starts := rec.byTopic(TopicNoteStart)
	ends := rec.byTopic(TopicNoteEnd)
	assert.Len(t, starts, 2)
	assert.Len(t, ends, 2)

	// While both instances sound, the snapshot still reports one pitch.
	e.Stop()
	e.Play()
	clk.Advance(750 * time.Millisecond)
	e.Tick()
	assert.Equal(t, []string{"C4"}, e.State().ActiveNotes)
}

func TestSpeedScalesElapsedTime(t *testing.T) {
	e, clk, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))

	e.SetSpeed(2.0)
	e.Play()
	clk.Advance(time.Second)
	e.Tick()

	assert.InDelta(t, 2.0, e.State().CurrentTime, 1e-9)
}

func TestSpeedIsClamped(t *testing.T) {
	e, _, _, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))
	rec.reset()

	e.SetSpeed(100)
	assert.Equal(t, 4.0, e.State().Speed)

	e.SetSpeed(0.01)
	assert.Equal(t, 0.25, e.State().Speed)

	changes := rec.byTopic(TopicSpeedChange)
	require.Len(t, changes, 2)
	assert.Equal(t, SpeedChange{Speed: 4.0}, changes[0].event)
	assert.Equal(t, SpeedChange{Speed: 0.25}, changes[1].event)
}

// Changing speed mid-playback re-anchors the clock basis so the current time
// never jumps, only the rate of advance changes.
func TestSpeedChangeDoesNotJumpTime(t *testing.T) {
	e, clk, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))

	e.Play()
	clk.Advance(time.Second)
	e.Tick()
	require.InDelta(t, 1.0, e.State().CurrentTime, 1e-9)

	e.SetSpeed(0.5)
	assert.InDelta(t, 1.0, e.State().CurrentTime, 1e-9)

	clk.Advance(time.Second)
	e.Tick()
	assert.InDelta(t, 1.5, e.State().CurrentTime, 1e-9)
}

func TestSeekClampsToPiece(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(5)))

	e.SeekTo(-3)
	assert.Equal(t, 0.0, e.State().CurrentTime)

	e.SeekTo(1e9)
	assert.Equal(t, 5.0, e.State().CurrentTime)

	// Repeating the same seek is a no-op.
	e.SeekTo(1e9)
	assert.Equal(t, 5.0, e.State().CurrentTime)
}

// Seeking during playback releases what sounds now and re-triggers what
// should sound at the target, then keeps playing.
func TestSeekWhilePlayingRetriggers(t *testing.T) {
	e, clk, audio, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 1},
		model.Note{Pitch: "E4", StartTime: 5, Duration: 2},
	)))

	e.Play()
	clk.Advance(500 * time.Millisecond)
	e.Tick()
	require.Equal(t, []string{"C4"}, e.State().ActiveNotes)
	rec.reset()

	e.SeekTo(6)

	snap := e.State()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 6.0, snap.CurrentTime)
	assert.Equal(t, []string{"E4"}, snap.ActiveNotes)
	assert.Contains(t, audio.Releases(), "C4")
	assert.Contains(t, audio.Plays(), "E4")

	updates := rec.byTopic(TopicTimeUpdate)
	require.NotEmpty(t, updates)
	assert.Equal(t, TimeUpdate{Time: 6}, updates[len(updates)-1].event)
}

func TestPauseReleasesNotesAndResumeContinues(t *testing.T) {
	e, clk, audio, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 5},
	)))

	e.Play()
	clk.Advance(time.Second)
	e.Tick()
	require.Equal(t, []string{"C4"}, e.State().ActiveNotes)

	e.Pause()
	snap := e.State()
	assert.False(t, snap.IsPlaying)
	assert.InDelta(t, 1.0, snap.CurrentTime, 1e-9)
	assert.Empty(t, snap.ActiveNotes)
	assert.Equal(t, []string{"C4"}, audio.Releases())

	// Wall-clock time passing while paused must not advance musical time.
	clk.Advance(time.Hour)
	e.Tick()
	assert.InDelta(t, 1.0, e.State().CurrentTime, 1e-9)

	e.Play()
	clk.Advance(500 * time.Millisecond)
	e.Tick()
	assert.InDelta(t, 1.5, e.State().CurrentTime, 1e-9)
}

func TestStopRewindsToZero(t *testing.T) {
	e, clk, _, rec := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))

	e.Play()
	clk.Advance(3 * time.Second)
	e.Tick()
	rec.reset()

	e.Stop()
	snap := e.State()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.CurrentTime)

	updates := rec.byTopic(TopicTimeUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, TimeUpdate{Time: 0}, updates[0].event)
}

func TestEnteringFollowModePauses(t *testing.T) {
	e, clk, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))

	e.Play()
	clk.Advance(time.Second)
	e.Tick()

	e.SetMode(ModeFollow)
	snap := e.State()
	assert.Equal(t, ModeFollow, snap.Mode)
	assert.False(t, snap.IsPlaying)
}

func TestProcessInputAdvancesToNextOnset(t *testing.T) {
	e, _, audio, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 1},
		model.Note{Pitch: "E4", StartTime: 2, Duration: 1},
	)))
	e.SetMode(ModeFollow)

	// Wrong pitch: rejected, no movement.
	assert.False(t, e.ProcessInput("G4"))
	assert.Equal(t, 0.0, e.State().CurrentTime)

	// Correct pitch: triggered and cursor advances to the next onset.
	assert.True(t, e.ProcessInput("C4"))
	assert.Equal(t, 2.0, e.State().CurrentTime)
	assert.Equal(t, []string{"C4"}, audio.Plays())
}

func TestProcessInputOutsideFollowModeRejected(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 1},
	)))

	assert.False(t, e.ProcessInput("C4"))
}

// Any member of a chord advances the cursor; the tolerance window accepts
// near-simultaneous onsets as one expected set.
func TestProcessInputAcceptsAnyChordMember(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 1},
		model.Note{Pitch: "E4", StartTime: 0.1, Duration: 1},
		model.Note{Pitch: "G4", StartTime: 3, Duration: 1},
	)))
	e.SetMode(ModeFollow)

	assert.True(t, e.ProcessInput("E4"))
	// Next onset strictly after 0 is 0.1, not 3.
	assert.InDelta(t, 0.1, e.State().CurrentTime, 1e-9)
}

func TestDisposeStopsEverything(t *testing.T) {
	clk := newFakeClock()
	audio := &recordingAudio{}
	e := NewEngine(audio, DefaultOptions())
	e.now = clk.Now

	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 5},
	)))
	e.Play()
	clk.Advance(time.Second)
	e.Tick()
	require.Equal(t, []string{"C4"}, e.State().ActiveNotes)

	e.Dispose()
	e.Dispose() // idempotent

	assert.Equal(t, []string{"C4"}, audio.Releases())
	assert.ErrorIs(t, e.Load(testPiece(10)), ErrDisposed)

	// A tick still pending in a driver after disposal must be harmless.
	plays := len(audio.Plays())
	clk.Advance(time.Second)
	e.Tick()
	assert.Len(t, audio.Plays(), plays)
	assert.False(t, e.State().IsPlaying)
}

// Subscribers may call back into the engine from an event handler without
// deadlocking; events are published outside the engine lock.
func TestSubscriberMayReenterEngine(t *testing.T) {
	e, clk, _, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10)))

	var got Snapshot
	e.On(TopicTimeUpdate, func(event interface{}) {
		got = e.State()
	})

	e.Play()
	clk.Advance(time.Second)
	e.Tick()

	assert.True(t, got.IsReady)
	assert.InDelta(t, 1.0, got.CurrentTime, 1e-9)
}

func TestLoadWhilePlayingCancelsPlayback(t *testing.T) {
	e, clk, audio, _ := newTestEngine(t)
	require.NoError(t, e.Load(testPiece(10,
		model.Note{Pitch: "C4", StartTime: 0, Duration: 5},
	)))

	e.Play()
	clk.Advance(time.Second)
	e.Tick()
	require.True(t, e.State().IsPlaying)

	require.NoError(t, e.Load(testPiece(3)))
	snap := e.State()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.CurrentTime)
	assert.Empty(t, snap.ActiveNotes)
	assert.Equal(t, []string{"C4"}, audio.Releases())
}
