package playback

import "github.com/landfill/clairkeys/model"

// Window classifies a note list relative to an instant t.
//
// Notes are identified by index into the input slice, not by pitch: two
// overlapping notes on the same pitch are distinct instances and each
// triggers its own start/stop pair. Deduplication by pitch is deliberately
// not performed.
type Window struct {
	// Active holds indices of notes sounding at t: start <= t < start+duration.
	Active []int
	// Starting holds indices of notes whose onset lies in [t, t+lookAhead).
	Starting []int
	// Stopping holds indices of notes whose end lies in [t, t+lookAhead).
	Stopping []int
}

// Project classifies notes at time t with the given look-ahead window.
// Pure function; the note list is never mutated.
//
// A linear scan per call is fine for realistic scores (hundreds to low
// thousands of notes). A sorted-by-start index with a moving window pointer
// is the upgrade path for very large inputs.
func Project(notes []model.Note, t, lookAhead float64) Window {
	var w Window
	horizon := t + lookAhead
	for i := range notes {
		n := &notes[i]
		if n.StartTime <= t && t < n.End() {
			w.Active = append(w.Active, i)
		}
		if lookAhead > 0 {
			if t <= n.StartTime && n.StartTime < horizon {
				w.Starting = append(w.Starting, i)
			}
			if end := n.End(); t <= end && end < horizon {
				w.Stopping = append(w.Stopping, i)
			}
		}
	}
	return w
}

// ActivePitches returns the set of pitches sounding at t.
func ActivePitches(notes []model.Note, t float64) map[string]bool {
	pitches := make(map[string]bool)
	for i := range notes {
		if notes[i].StartTime <= t && t < notes[i].End() {
			pitches[notes[i].Pitch] = true
		}
	}
	return pitches
}
