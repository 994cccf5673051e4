package playback

import "sort"

// Mode selects how playback advances.
type Mode string

const (
	// ModeListen is autonomous playback driven by the clock.
	ModeListen Mode = "listen"
	// ModeFollow gates playback on correct user input.
	ModeFollow Mode = "follow"
)

// ValidMode reports whether m names a playback mode.
func ValidMode(m Mode) bool {
	return m == ModeListen || m == ModeFollow
}

// Snapshot is a defensive copy of the engine's playback state. Callers get a
// fresh ActiveNotes slice on every call and cannot corrupt engine state
// through it.
type Snapshot struct {
	IsPlaying   bool     `json:"isPlaying"`
	CurrentTime float64  `json:"currentTime"`
	Speed       float64  `json:"speed"`
	Mode        Mode     `json:"mode"`
	ActiveNotes []string `json:"activeNotes"` // sorted pitch names currently sounding
	IsReady     bool     `json:"isReady"`
}

// pitchSet flattens a set of note indices into sorted unique pitch names.
func pitchSet(active map[int]struct{}, pitchOf func(int) string) []string {
	seen := make(map[string]bool, len(active))
	pitches := make([]string, 0, len(active))
	for idx := range active {
		p := pitchOf(idx)
		if !seen[p] {
			seen[p] = true
			pitches = append(pitches, p)
		}
	}
	sort.Strings(pitches)
	return pitches
}
