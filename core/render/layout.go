package render

import "github.com/landfill/clairkeys/model"

// WhiteKeyCount is the number of white keys on an 88-key piano.
const WhiteKeyCount = 52

// blackKeyWidthRatio is the black key width relative to a white key.
const blackKeyWidthRatio = 0.6

// KeyGeometry is the horizontal placement of one key on screen.
type KeyGeometry struct {
	X     float64 `json:"x"`
	Width float64 `json:"width"`
	Black bool    `json:"black"`
}

// KeyboardLayout maps pitch names to screen geometry for an 88-key keyboard
// spanning A0..C8. White keys tile the full width; black keys are narrower
// and centered on the boundary between their neighboring white keys.
type KeyboardLayout struct {
	Width float64
	keys  map[string]KeyGeometry
}

// NewKeyboardLayout builds the layout for a keyboard of the given pixel width.
func NewKeyboardLayout(width float64) KeyboardLayout {
	whiteWidth := width / WhiteKeyCount
	blackWidth := whiteWidth * blackKeyWidthRatio

	keys := make(map[string]KeyGeometry, model.MaxMIDI-model.MinMIDI+1)
	whiteIndex := 0
	for midi := model.MinMIDI; midi <= model.MaxMIDI; midi++ {
		pitch, err := model.MIDIToPitch(midi)
		if err != nil {
			continue
		}
		if model.IsBlackKey(midi) {
			// Centered on the boundary to the next white key.
			keys[pitch] = KeyGeometry{
				X:     float64(whiteIndex)*whiteWidth - blackWidth/2,
				Width: blackWidth,
				Black: true,
			}
			continue
		}
		keys[pitch] = KeyGeometry{
			X:     float64(whiteIndex) * whiteWidth,
			Width: whiteWidth,
		}
		whiteIndex++
	}

	return KeyboardLayout{Width: width, keys: keys}
}

// Key returns the geometry for a pitch name. The second result is false for
// pitches outside the 88-key range.
func (l KeyboardLayout) Key(pitch string) (KeyGeometry, bool) {
	g, ok := l.keys[pitch]
	return g, ok
}
