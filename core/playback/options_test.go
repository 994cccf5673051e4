package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeAppliesOnlySetFields(t *testing.T) {
	base := DefaultOptions()

	look := 0.5
	got := base.Merge(OptionsPatch{LookAhead: &look})

	assert.Equal(t, 0.5, got.LookAhead)
	assert.Equal(t, base.TickInterval, got.TickInterval)
	assert.Equal(t, base.FollowTolerance, got.FollowTolerance)
}

func TestMergeEmptyPatchIsIdentity(t *testing.T) {
	base := DefaultOptions()
	assert.Equal(t, base, base.Merge(OptionsPatch{}))
}

func TestMergeDoesNotModifyReceiver(t *testing.T) {
	base := DefaultOptions()
	interval := 50 * time.Millisecond
	tol := 0.3

	base.Merge(OptionsPatch{TickInterval: &interval, FollowTolerance: &tol})

	assert.Equal(t, DefaultOptions(), base)
}
