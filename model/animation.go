package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/landfill/clairkeys/logger"
)

// AnimationVersion is the current animation data format version.
const AnimationVersion = "1.0"

// DefaultVelocity is assigned to notes whose wire format omits velocity;
// the OMR converter does not produce dynamics.
const DefaultVelocity = 0.75

// Hand marks which hand plays a note. Advisory only.
type Hand string

const (
	HandLeft  Hand = "L"
	HandRight Hand = "R"
)

// Note is a single playable event on the timeline.
type Note struct {
	Pitch     string  `json:"pitch"`              // e.g. "C4", "F#3"
	MIDI      int     `json:"midi"`               // 21..108
	StartTime float64 `json:"start"`              // seconds from piece start
	Duration  float64 `json:"duration"`           // seconds, > 0
	Velocity  float64 `json:"velocity,omitempty"` // [0, 1]
	Finger    int     `json:"finger,omitempty"`   // 1..5, 0 = unknown
	Hand      Hand    `json:"hand,omitempty"`
}

// End returns the time at which the note stops sounding.
func (n Note) End() float64 {
	return n.StartTime + n.Duration
}

// AnimationData is the immutable description of a piece: metadata plus an
// ordered note list. It is shared by reference with the playback engine for
// the lifetime of one loaded piece and must not be mutated after Validate.
type AnimationData struct {
	Version       string  `json:"version"`
	Title         string  `json:"title"`
	Composer      string  `json:"composer"`
	Duration      float64 `json:"duration"` // seconds, > 0
	Tempo         int     `json:"tempo"`    // BPM
	KeySignature  string  `json:"keySignature,omitempty"`
	TimeSignature string  `json:"timeSignature"`
	Notes         []Note  `json:"notes"`
}

var timeSignatureRe = regexp.MustCompile(`^[0-9]{1,2}/[0-9]{1,2}$`)

// Tempo bounds accepted at validation time.
const (
	MinTempo = 20
	MaxTempo = 300
)

// Validate eagerly checks the animation data so malformed input fails at
// load time instead of propagating NaN into timing math. Notes extending
// past the piece duration are a warning only.
func (a *AnimationData) Validate() error {
	if a == nil {
		return fmt.Errorf("animation data is nil")
	}
	if a.Duration <= 0 || math.IsNaN(a.Duration) || math.IsInf(a.Duration, 0) {
		return fmt.Errorf("invalid duration %v", a.Duration)
	}
	if a.Tempo < MinTempo || a.Tempo > MaxTempo {
		return fmt.Errorf("tempo %d outside [%d, %d] BPM", a.Tempo, MinTempo, MaxTempo)
	}
	if !timeSignatureRe.MatchString(a.TimeSignature) {
		return fmt.Errorf("invalid time signature %q", a.TimeSignature)
	}

	for i := range a.Notes {
		n := &a.Notes[i]
		if err := a.validateNote(n); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
		if n.End() > a.Duration+1e-9 {
			logger.Warn("note extends past piece duration",
				logger.String("pitch", n.Pitch),
				logger.Float64("end", n.End()),
				logger.Float64("duration", a.Duration))
		}
	}
	return nil
}

func (a *AnimationData) validateNote(n *Note) error {
	// Pitch and MIDI are redundant in the wire format; either may be the
	// source of truth. Reconcile and range-check both.
	if n.Pitch == "" && n.MIDI != 0 {
		pitch, err := MIDIToPitch(n.MIDI)
		if err != nil {
			return err
		}
		n.Pitch = pitch
	}
	midi, err := PitchToMIDI(n.Pitch)
	if err != nil {
		return err
	}
	if n.MIDI != 0 && n.MIDI != midi {
		return fmt.Errorf("pitch %q does not match midi %d", n.Pitch, n.MIDI)
	}
	n.MIDI = midi

	if math.IsNaN(n.StartTime) || n.StartTime < 0 {
		return fmt.Errorf("invalid start time %v", n.StartTime)
	}
	if math.IsNaN(n.Duration) || n.Duration <= 0 {
		return fmt.Errorf("invalid note duration %v", n.Duration)
	}
	if n.Velocity == 0 {
		n.Velocity = DefaultVelocity
	}
	if math.IsNaN(n.Velocity) || n.Velocity < 0 || n.Velocity > 1 {
		return fmt.Errorf("velocity %v outside [0, 1]", n.Velocity)
	}
	if n.Finger < 0 || n.Finger > 5 {
		return fmt.Errorf("finger %d outside [1, 5]", n.Finger)
	}
	if n.Hand != "" && n.Hand != HandLeft && n.Hand != HandRight {
		return fmt.Errorf("invalid hand %q", n.Hand)
	}
	return nil
}

// SortNotes orders the note list by start time. Validate does not require
// sorted input; the engine does.
func (a *AnimationData) SortNotes() {
	sort.SliceStable(a.Notes, func(i, j int) bool {
		return a.Notes[i].StartTime < a.Notes[j].StartTime
	})
}

// ParseAnimationData decodes, validates and sorts animation JSON as produced
// by the OMR converter.
func ParseAnimationData(data []byte) (*AnimationData, error) {
	var a AnimationData
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode animation data: %w", err)
	}
	if a.Version == "" {
		a.Version = AnimationVersion
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid animation data: %w", err)
	}
	a.SortNotes()
	return &a, nil
}
