package playback

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/landfill/clairkeys/model"
)

func note(pitch string, start, dur float64) model.Note {
	return model.Note{Pitch: pitch, StartTime: start, Duration: dur}
}

func TestProjectBoundaries(t *testing.T) {
	notes := []model.Note{note("C4", 1, 1)}

	// Onset is inclusive, end is exclusive.
	assert.Empty(t, Project(notes, 0.999, 0).Active)
	assert.Equal(t, []int{0}, Project(notes, 1, 0).Active)
	assert.Equal(t, []int{0}, Project(notes, 1.999, 0).Active)
	assert.Empty(t, Project(notes, 2, 0).Active)
}

func TestProjectLookAheadWindows(t *testing.T) {
	notes := []model.Note{
		note("C4", 1, 1),
		note("E4", 1.1, 0.05),
	}

	w := Project(notes, 1.0, 0.2)
	assert.Equal(t, []int{0}, w.Active)
	// Both onsets fall inside [1.0, 1.2); C4's onset is exactly at t.
	assert.Equal(t, []int{0, 1}, w.Starting)
	// E4 ends at 1.15, inside the window.
	assert.Equal(t, []int{1}, w.Stopping)

	// Zero look-ahead classifies nothing as starting or stopping.
	w = Project(notes, 1.0, 0)
	assert.Empty(t, w.Starting)
	assert.Empty(t, w.Stopping)
}

func TestProjectKeepsInstancesDistinct(t *testing.T) {
	notes := []model.Note{
		note("C4", 0, 1),
		note("C4", 0.5, 1),
	}

	w := Project(notes, 0.75, 0)
	assert.Equal(t, []int{0, 1}, w.Active)
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	notes := []model.Note{note("C4", 0, 1), note("D4", 2, 1)}
	before := append([]model.Note(nil), notes...)

	Project(notes, 0.5, 0.5)
	assert.Equal(t, before, notes)
}

// Classification agrees with the membership predicate on random input.
func TestProjectMatchesPredicateOnRandomNotes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		notes := make([]model.Note, 40)
		for i := range notes {
			notes[i] = note("C4", rng.Float64()*10, 0.05+rng.Float64()*2)
		}
		at := rng.Float64() * 12
		look := rng.Float64() * 0.5

		w := Project(notes, at, look)

		active := make(map[int]bool)
		for _, idx := range w.Active {
			active[idx] = true
		}
		for i, n := range notes {
			want := n.StartTime <= at && at < n.End()
			assert.Equal(t, want, active[i],
				"trial %d note %d at %v", trial, i, at)
		}
		for _, idx := range w.Starting {
			assert.GreaterOrEqual(t, notes[idx].StartTime, at)
			assert.Less(t, notes[idx].StartTime, at+look)
		}
		for _, idx := range w.Stopping {
			assert.GreaterOrEqual(t, notes[idx].End(), at)
			assert.Less(t, notes[idx].End(), at+look)
		}
	}
}

func TestActivePitches(t *testing.T) {
	notes := []model.Note{
		note("C4", 0, 1),
		note("C4", 0.5, 1),
		note("E4", 0.5, 1),
		note("G4", 3, 1),
	}

	got := ActivePitches(notes, 0.75)
	assert.Equal(t, map[string]bool{"C4": true, "E4": true}, got)
}
