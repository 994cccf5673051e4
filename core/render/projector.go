package render

import "github.com/landfill/clairkeys/model"

// Pixel margin beyond the viewport inside which rectangles are still emitted.
const cullMarginPx = 100

// Time margin (seconds) around the visible window inside which notes are
// still considered.
const cullMarginSec = 1.0

// minNoteHeightPx keeps very short notes visible.
const minNoteHeightPx = 3

// NoteRect is one falling-note rectangle in screen coordinates. Y grows
// downward; the hit line sits at y = height, where a note's bottom edge
// arrives exactly when its onset is due.
type NoteRect struct {
	Pitch  string     `json:"pitch"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"` // top edge
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Black  bool       `json:"black"`
	Hand   model.Hand `json:"hand,omitempty"`
	Finger int        `json:"finger,omitempty"`
}

// Project maps the note list to falling-note rectangles for one render
// frame. Pure function: safe to call from a render loop at a different
// cadence than the engine tick, and never mutates its inputs.
//
// Rectangles are ordered white-key notes first, black-key notes last, so a
// painter drawing in order places black-key notes on top.
func Project(notes []model.Note, currentTime, pxPerSec, height float64, layout KeyboardLayout) []NoteRect {
	if pxPerSec <= 0 || height <= 0 {
		return nil
	}

	// Notes outside this window cannot intersect the viewport.
	timeLo := currentTime - cullMarginSec
	timeHi := currentTime + height/pxPerSec + cullMarginSec

	var white, black []NoteRect
	for i := range notes {
		n := &notes[i]
		if n.End() < timeLo || n.StartTime > timeHi {
			continue
		}

		geo, ok := layout.Key(n.Pitch)
		if !ok {
			continue
		}

		noteHeight := n.Duration * pxPerSec
		if noteHeight < minNoteHeightPx {
			noteHeight = minNoteHeightPx
		}
		bottom := height - (n.StartTime-currentTime)*pxPerSec
		top := bottom - noteHeight

		if bottom < -cullMarginPx || top > height+cullMarginPx {
			continue
		}

		rect := NoteRect{
			Pitch:  n.Pitch,
			X:      geo.X,
			Y:      top,
			Width:  geo.Width,
			Height: noteHeight,
			Black:  geo.Black,
			Hand:   n.Hand,
			Finger: n.Finger,
		}
		if geo.Black {
			black = append(black, rect)
		} else {
			white = append(white, rect)
		}
	}

	return append(white, black...)
}
