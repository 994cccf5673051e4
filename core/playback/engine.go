package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
)

// ErrDisposed is returned for operations on a disposed engine.
var ErrDisposed = errors.New("playback: engine disposed")

// followVelocity is the fixed trigger velocity for correct follow-mode input.
const followVelocity = 0.8

// Engine is the playback clock and state machine. It owns the playback
// state, advances musical time from wall-clock elapsed time and speed, diffs
// timeline classifications between ticks and drives the audio adapter and
// event bus from the result.
//
// The tick is cooperative: the engine spawns no goroutine. A host driver
// calls Tick at roughly Options.TickInterval while playing (a stopped clock
// just makes Tick a no-op). All state mutation happens inside engine methods
// under one mutex; external code only ever sees Snapshot copies.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	bus   *Bus
	audio AudioAdapter
	now   func() time.Time

	data     *model.AnimationData
	ready    bool
	playing  bool
	disposed bool
	mode     Mode
	speed    float64

	currentTime float64
	basisWall   time.Time // wall-clock instant of the time basis
	basisTime   float64   // musical time at the basis

	// Sounding note instances by index into data.Notes. Indexing by
	// instance, not pitch, is what makes overlapping same-pitch notes fire
	// independent start/stop pairs.
	active map[int]struct{}
}

// emission is an event captured under the engine lock and published after
// the lock is released, so subscribers may safely call back into the engine.
type emission struct {
	topic Topic
	event interface{}
}

// NewEngine constructs an engine around the given audio backend. The
// adapter's Initialize runs asynchronously; failure degrades the session to
// visual-only playback and is not fatal.
func NewEngine(audio AudioAdapter, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = DefaultLookAhead
	}
	if opts.FollowTolerance <= 0 {
		opts.FollowTolerance = DefaultFollowTolerance
	}

	e := &Engine{
		opts:   opts,
		bus:    NewBus(),
		audio:  audio,
		now:    time.Now,
		mode:   ModeListen,
		speed:  1.0,
		active: make(map[int]struct{}),
	}

	go func() {
		if err := audio.Initialize(context.Background()); err != nil {
			logger.Warn("audio backend failed to initialize, continuing visual-only",
				logger.ErrorField(err))
		}
	}()

	return e
}

// Events exposes the engine's event bus for subscriptions.
func (e *Engine) Events() *Bus {
	return e.bus
}

// On subscribes fn to topic. Shorthand for Events().Subscribe.
func (e *Engine) On(topic Topic, fn Handler) *Subscription {
	return e.bus.Subscribe(topic, fn)
}

// Off removes a subscription obtained from On.
func (e *Engine) Off(sub *Subscription) {
	e.bus.Unsubscribe(sub)
}

// Load replaces the current piece. Always legal on a live engine: any
// running playback is cancelled and pending audio discarded. The data is
// validated eagerly so malformed notes fail here rather than as NaN screen
// positions later.
func (e *Engine) Load(data *model.AnimationData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	data.SortNotes()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}

	for idx := range e.active {
		e.audio.ReleaseNote(e.data.Notes[idx].Pitch)
	}
	e.active = make(map[int]struct{})
	e.playing = false

	e.data = data
	e.currentTime = 0
	e.basisTime = 0
	e.basisWall = e.now()
	e.ready = true
	e.mu.Unlock()

	logger.Info("animation loaded",
		logger.String("title", data.Title),
		logger.Int("notes", len(data.Notes)),
		logger.Float64("duration", data.Duration))

	e.flush([]emission{{TopicTimeUpdate, TimeUpdate{Time: 0}}})
	return nil
}

// Play starts the clock. No-op if already playing or nothing is loaded.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.disposed || !e.ready || e.playing {
		e.mu.Unlock()
		return
	}
	e.basisWall = e.now()
	e.basisTime = e.currentTime
	e.playing = true
	e.mu.Unlock()

	e.flush([]emission{{TopicPlayStateChange, PlayStateChange{IsPlaying: true}}})
}

// Pause stops the clock and releases every sounding note. No-op if not playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	ev := e.pauseLocked()
	e.mu.Unlock()
	e.flush(ev)
}

// Stop pauses and rewinds to time zero.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.disposed || !e.ready {
		e.mu.Unlock()
		return
	}
	ev := e.pauseLocked()
	e.currentTime = 0
	e.basisTime = 0
	e.basisWall = e.now()
	ev = append(ev, emission{TopicTimeUpdate, TimeUpdate{Time: 0}})
	e.mu.Unlock()
	e.flush(ev)
}

// SeekTo jumps to t, clamped to [0, duration]. A seek during playback
// releases sounding notes, re-triggers the notes sounding at t and resumes.
func (e *Engine) SeekTo(t float64) {
	e.mu.Lock()
	if e.disposed || !e.ready {
		e.mu.Unlock()
		return
	}
	ev := e.seekLocked(t)
	e.mu.Unlock()
	e.flush(ev)
}

// SetSpeed changes the playback rate, clamped to [MinSpeed, MaxSpeed]. While
// playing the time basis is re-anchored so currentTime does not jump.
func (e *Engine) SetSpeed(s float64) {
	s = clamp(s, MinSpeed, MaxSpeed)

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	if e.playing {
		t := e.musicalTimeLocked()
		e.currentTime = t
		e.basisTime = t
	}
	e.basisWall = e.now()
	e.speed = s
	e.mu.Unlock()

	e.flush([]emission{{TopicSpeedChange, SpeedChange{Speed: s}}})
}

// SetMode switches between listen and follow. Entering follow mode pauses
// playback; practice requires explicit input to advance.
func (e *Engine) SetMode(m Mode) {
	if !ValidMode(m) {
		return
	}

	e.mu.Lock()
	if e.disposed || m == e.mode {
		e.mu.Unlock()
		return
	}
	var ev []emission
	if m == ModeFollow {
		ev = e.pauseLocked()
	}
	e.mode = m
	e.mu.Unlock()
	e.flush(ev)
}

// Tick advances the clock by one cooperative step. Called by the host driver
// loop; a no-op unless playing. Reaching the end of the piece clamps time to
// the duration, releases all notes and stops the clock.
func (e *Engine) Tick() {
	e.mu.Lock()
	ev := e.tickLocked()
	e.mu.Unlock()
	e.flush(ev)
}

// State returns a defensive snapshot of the playback state.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		IsPlaying:   e.playing,
		CurrentTime: e.currentTime,
		Speed:       e.speed,
		Mode:        e.mode,
		ActiveNotes: []string{},
		IsReady:     e.ready,
	}
	if e.data != nil {
		snap.ActiveNotes = pitchSet(e.active, func(i int) string { return e.data.Notes[i].Pitch })
	}
	return snap
}

// TimelineAt classifies the loaded notes at time t using the configured
// look-ahead window. Returns an empty window when nothing is loaded.
func (e *Engine) TimelineAt(t float64) Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return Window{}
	}
	return Project(e.data.Notes, t, e.opts.LookAhead)
}

// ProcessInput handles a user-played pitch in follow mode. A pitch matching
// any expected note triggers it and advances the cursor to the next note
// onset strictly after the current time; which chord member matched is not
// tracked. Returns false outside follow mode or on a miss, with no state
// change.
func (e *Engine) ProcessInput(pitch string) bool {
	e.mu.Lock()
	if e.disposed || !e.ready || e.mode != ModeFollow {
		e.mu.Unlock()
		return false
	}

	matched := false
	for _, n := range ExpectedNotes(e.data.Notes, e.currentTime, e.opts.FollowTolerance) {
		if n.Pitch == pitch {
			matched = true
			break
		}
	}
	if !matched {
		e.mu.Unlock()
		return false
	}

	e.audio.PlayNote(pitch, followVelocity)
	var ev []emission
	if next, ok := NextNoteAfter(e.data.Notes, e.currentTime); ok {
		ev = e.seekLocked(next.StartTime)
	}
	e.mu.Unlock()
	e.flush(ev)
	return true
}

// Dispose tears down the engine: playback stops, sounding notes are
// released and every event subscription is dropped. Idempotent; any tick
// still pending in a driver becomes a no-op and never reaches the audio
// adapter.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	for idx := range e.active {
		e.audio.ReleaseNote(e.data.Notes[idx].Pitch)
	}
	e.active = make(map[int]struct{})
	e.playing = false
	e.ready = false
	e.disposed = true
	e.mu.Unlock()

	e.bus.Clear()
}

// TickInterval reports the cadence the driver should use.
func (e *Engine) TickInterval() time.Duration {
	return e.opts.TickInterval
}

// ---- locked internals ----

// musicalTimeLocked computes the current musical time from the basis.
func (e *Engine) musicalTimeLocked() float64 {
	elapsed := e.now().Sub(e.basisWall).Seconds() * e.speed
	return clamp(e.basisTime+elapsed, 0, e.data.Duration)
}

func (e *Engine) tickLocked() []emission {
	if e.disposed || !e.ready || !e.playing {
		return nil
	}

	elapsed := e.now().Sub(e.basisWall).Seconds() * e.speed
	newTime := e.basisTime + elapsed

	if newTime >= e.data.Duration {
		// Completion: clamp, release everything, stop the clock. The final
		// timeUpdate carries the clamped duration.
		e.currentTime = e.data.Duration
		e.playing = false
		ev := e.releaseActiveLocked()
		ev = append(ev,
			emission{TopicPlayStateChange, PlayStateChange{IsPlaying: false}},
			emission{TopicTimeUpdate, TimeUpdate{Time: e.currentTime}})
		return ev
	}

	e.currentTime = newTime
	w := Project(e.data.Notes, newTime, e.opts.LookAhead)

	newActive := make(map[int]struct{}, len(w.Active))
	for _, idx := range w.Active {
		newActive[idx] = struct{}{}
	}

	var ev []emission
	for _, idx := range w.Active {
		if _, sounding := e.active[idx]; !sounding {
			n := e.data.Notes[idx]
			e.audio.PlayNote(n.Pitch, n.Velocity)
			ev = append(ev, emission{TopicNoteStart, NoteStart{Note: n, Velocity: n.Velocity}})
		}
	}
	for _, idx := range sortedIndices(e.active) {
		if _, still := newActive[idx]; !still {
			n := e.data.Notes[idx]
			e.audio.ReleaseNote(n.Pitch)
			ev = append(ev, emission{TopicNoteEnd, NoteEnd{Note: n}})
		}
	}

	e.active = newActive
	ev = append(ev, emission{TopicTimeUpdate, TimeUpdate{Time: newTime}})
	return ev
}

func (e *Engine) pauseLocked() []emission {
	if e.disposed || !e.playing {
		return nil
	}
	e.playing = false
	ev := e.releaseActiveLocked()
	return append(ev, emission{TopicPlayStateChange, PlayStateChange{IsPlaying: false}})
}

// releaseActiveLocked releases every sounding note through the adapter and
// returns the matching noteEnd emissions in ascending note order.
func (e *Engine) releaseActiveLocked() []emission {
	var ev []emission
	for _, idx := range sortedIndices(e.active) {
		n := e.data.Notes[idx]
		e.audio.ReleaseNote(n.Pitch)
		ev = append(ev, emission{TopicNoteEnd, NoteEnd{Note: n}})
	}
	e.active = make(map[int]struct{})
	return ev
}

func (e *Engine) seekLocked(t float64) []emission {
	t = clamp(t, 0, e.data.Duration)
	wasPlaying := e.playing

	var ev []emission
	if wasPlaying {
		ev = e.pauseLocked()
	}

	e.currentTime = t
	e.basisTime = t
	e.basisWall = e.now()

	if wasPlaying {
		// Re-trigger whatever should be sounding at the new instant.
		w := Project(e.data.Notes, t, 0)
		for _, idx := range w.Active {
			n := e.data.Notes[idx]
			e.audio.PlayNote(n.Pitch, n.Velocity)
			e.active[idx] = struct{}{}
			ev = append(ev, emission{TopicNoteStart, NoteStart{Note: n, Velocity: n.Velocity}})
		}
		e.playing = true
		ev = append(ev, emission{TopicPlayStateChange, PlayStateChange{IsPlaying: true}})
	}

	return append(ev, emission{TopicTimeUpdate, TimeUpdate{Time: t}})
}

// flush publishes emissions gathered under the lock.
func (e *Engine) flush(ev []emission) {
	for _, em := range ev {
		e.bus.Publish(em.topic, em.event)
	}
}

func sortedIndices(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
