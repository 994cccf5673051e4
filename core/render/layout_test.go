package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutCoversAll88Keys(t *testing.T) {
	layout := NewKeyboardLayout(520)

	white, black := 0, 0
	for _, pitch := range []string{"A0", "C4", "C8"} {
		_, ok := layout.Key(pitch)
		assert.True(t, ok, pitch)
	}
	for pitch, geo := range layout.keys {
		if geo.Black {
			black++
		} else {
			white++
		}
		assert.NotEmpty(t, pitch)
	}
	assert.Equal(t, 52, white)
	assert.Equal(t, 36, black)
}

func TestWhiteKeysTileTheWidth(t *testing.T) {
	layout := NewKeyboardLayout(520)
	whiteWidth := 520.0 / WhiteKeyCount

	a0, ok := layout.Key("A0")
	require.True(t, ok)
	assert.Equal(t, 0.0, a0.X)
	assert.Equal(t, whiteWidth, a0.Width)
	assert.False(t, a0.Black)

	c8, ok := layout.Key("C8")
	require.True(t, ok)
	assert.InDelta(t, 51*whiteWidth, c8.X, 1e-9)
}

func TestBlackKeysAreNarrowerAndCentered(t *testing.T) {
	layout := NewKeyboardLayout(520)
	whiteWidth := 520.0 / WhiteKeyCount

	bb0, ok := layout.Key("A#0")
	require.True(t, ok)
	assert.True(t, bb0.Black)
	assert.InDelta(t, whiteWidth*0.6, bb0.Width, 1e-9)
	// Centered on the A0/B0 boundary.
	assert.InDelta(t, whiteWidth-bb0.Width/2, bb0.X, 1e-9)
}

func TestKeyUnknownPitch(t *testing.T) {
	layout := NewKeyboardLayout(520)

	_, ok := layout.Key("C9")
	assert.False(t, ok)
	_, ok = layout.Key("")
	assert.False(t, ok)
}
