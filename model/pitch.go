package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Piano key range in MIDI numbers: A0 (21) through C8 (108).
const (
	MinMIDI = 21
	MaxMIDI = 108
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var nameToSemitone = map[string]int{
	"C": 0, "C#": 1, "DB": 1,
	"D": 2, "D#": 3, "EB": 3,
	"E": 4,
	"F": 5, "F#": 6, "GB": 6,
	"G": 7, "G#": 8, "AB": 8,
	"A": 9, "A#": 10, "BB": 10,
	"B": 11,
}

// MIDIToPitch converts a MIDI note number to a pitch name like "C4" or "F#3".
// Numbers outside the 88-key range return an error.
func MIDIToPitch(midi int) (string, error) {
	if midi < MinMIDI || midi > MaxMIDI {
		return "", fmt.Errorf("midi number %d outside piano range [%d, %d]", midi, MinMIDI, MaxMIDI)
	}
	octave := (midi - 12) / 12
	return fmt.Sprintf("%s%d", noteNames[(midi-12)%12], octave), nil
}

// PitchToMIDI converts a pitch name like "C4", "F#3" or "Bb2" to a MIDI
// note number, validating it against the 88-key range.
func PitchToMIDI(pitch string) (int, error) {
	p := strings.TrimSpace(pitch)
	if len(p) < 2 {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}

	// Octave is the trailing digits (C8 .. A0, single digit on a piano).
	split := len(p)
	for split > 0 && p[split-1] >= '0' && p[split-1] <= '9' {
		split--
	}
	if split == 0 || split == len(p) {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}

	name := strings.ToUpper(p[:split])
	octave, err := strconv.Atoi(p[split:])
	if err != nil {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}

	semitone, ok := nameToSemitone[name]
	if !ok {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}

	midi := 12 + octave*12 + semitone
	if midi < MinMIDI || midi > MaxMIDI {
		return 0, fmt.Errorf("pitch %q outside piano range", pitch)
	}
	return midi, nil
}

// ValidPitch reports whether pitch names a key on an 88-key piano.
func ValidPitch(pitch string) bool {
	_, err := PitchToMIDI(pitch)
	return err == nil
}

// IsBlackKey reports whether the MIDI number is a black key.
func IsBlackKey(midi int) bool {
	switch (midi - 12) % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
