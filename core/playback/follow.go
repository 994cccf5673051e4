package playback

import (
	"math"

	"github.com/landfill/clairkeys/model"
)

// DefaultFollowTolerance is how far (seconds) a note onset may be from the
// current time and still count as expected input in follow mode.
const DefaultFollowTolerance = 0.2

// ExpectedNotes returns the notes whose onset lies within tolerance of t.
// Pure function; used by the engine to judge practice-mode input.
func ExpectedNotes(notes []model.Note, t, tolerance float64) []model.Note {
	var expected []model.Note
	for i := range notes {
		if math.Abs(notes[i].StartTime-t) <= tolerance {
			expected = append(expected, notes[i])
		}
	}
	return expected
}

// NextNoteAfter returns the earliest note whose onset is strictly after t.
// The second result is false when no such note exists.
func NextNoteAfter(notes []model.Note, t float64) (model.Note, bool) {
	best := -1
	for i := range notes {
		if notes[i].StartTime > t {
			if best < 0 || notes[i].StartTime < notes[best].StartTime {
				best = i
			}
		}
	}
	if best < 0 {
		return model.Note{}, false
	}
	return notes[best], true
}
