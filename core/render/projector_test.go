package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landfill/clairkeys/model"
)

func note(pitch string, start, dur float64) model.Note {
	return model.Note{Pitch: pitch, StartTime: start, Duration: dur}
}

func testLayout() KeyboardLayout {
	return NewKeyboardLayout(520) // white key width 10
}

// A note whose onset equals the current time has its bottom edge exactly on
// the hit line at y = height.
func TestNoteArrivesAtHitLineOnTime(t *testing.T) {
	rects := Project(
		[]model.Note{note("C4", 2.0, 0.5)},
		2.0, 100, 400, testLayout(),
	)
	require.Len(t, rects, 1)

	r := rects[0]
	assert.InDelta(t, 50.0, r.Height, 1e-9) // 0.5s * 100px/s
	assert.InDelta(t, 400.0, r.Y+r.Height, 1e-9)
}

func TestFutureNoteSitsAboveHitLine(t *testing.T) {
	rects := Project(
		[]model.Note{note("C4", 3.0, 1)},
		2.0, 100, 400, testLayout(),
	)
	require.Len(t, rects, 1)

	// Onset 1s away: bottom edge 100px above the hit line.
	assert.InDelta(t, 300.0, rects[0].Y+rects[0].Height, 1e-9)
}

func TestVeryShortNotesKeepMinimumHeight(t *testing.T) {
	rects := Project(
		[]model.Note{note("C4", 0, 0.01)},
		0, 100, 400, testLayout(),
	)
	require.Len(t, rects, 1)
	assert.Equal(t, 3.0, rects[0].Height)
}

func TestNotesOutsideTheWindowAreCulled(t *testing.T) {
	notes := []model.Note{
		note("C4", 0, 0.5),  // ended long before the window
		note("D4", 5, 0.5),  // visible
		note("E4", 50, 0.5), // far future
	}

	rects := Project(notes, 5, 100, 400, testLayout())
	require.Len(t, rects, 1)
	assert.Equal(t, "D4", rects[0].Pitch)
}

func TestRecentlyEndedNoteStillWithinMargin(t *testing.T) {
	// Ended 0.5s ago: inside the 1s time margin, bottom below the hit line
	// but within the 100px pixel margin.
	rects := Project(
		[]model.Note{note("C4", 4.0, 0.5)},
		5.0, 100, 400, testLayout(),
	)
	assert.Len(t, rects, 1)
}

func TestBlackKeyNotesDrawLast(t *testing.T) {
	notes := []model.Note{
		note("C#4", 2.0, 0.5),
		note("C4", 2.0, 0.5),
		note("D4", 2.2, 0.5),
	}

	rects := Project(notes, 2.0, 100, 400, testLayout())
	require.Len(t, rects, 3)
	assert.False(t, rects[0].Black)
	assert.False(t, rects[1].Black)
	assert.True(t, rects[2].Black)
	assert.Equal(t, "C#4", rects[2].Pitch)
}

func TestBlackKeyGeometryCarriesThrough(t *testing.T) {
	rects := Project(
		[]model.Note{note("F#3", 0, 1)},
		0, 100, 400, testLayout(),
	)
	require.Len(t, rects, 1)

	geo, ok := testLayout().Key("F#3")
	require.True(t, ok)
	assert.Equal(t, geo.X, rects[0].X)
	assert.Equal(t, geo.Width, rects[0].Width)
	assert.True(t, rects[0].Black)
}

func TestUnknownPitchIsSkipped(t *testing.T) {
	rects := Project(
		[]model.Note{note("C9", 0, 1), note("C4", 0, 1)},
		0, 100, 400, testLayout(),
	)
	require.Len(t, rects, 1)
	assert.Equal(t, "C4", rects[0].Pitch)
}

func TestDegenerateViewportReturnsNothing(t *testing.T) {
	notes := []model.Note{note("C4", 0, 1)}

	assert.Nil(t, Project(notes, 0, 0, 400, testLayout()))
	assert.Nil(t, Project(notes, 0, 100, 0, testLayout()))
}

func TestHandAndFingerPassThrough(t *testing.T) {
	n := note("C4", 0, 1)
	n.Hand = model.HandLeft
	n.Finger = 2

	rects := Project([]model.Note{n}, 0, 100, 400, testLayout())
	require.Len(t, rects, 1)
	assert.Equal(t, model.HandLeft, rects[0].Hand)
	assert.Equal(t, 2, rects[0].Finger)
}
