package playback

import "time"

// Playback rate bounds. Requests outside the range are clamped, not rejected.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// DefaultTickInterval is the cadence at which a driver should call Tick.
const DefaultTickInterval = 16 * time.Millisecond

// DefaultLookAhead is the timeline look-ahead window in seconds.
const DefaultLookAhead = 0.2

// Options is the immutable engine configuration. Engines hold it by value;
// to change settings at runtime build a new Options with Merge and construct
// a new engine.
type Options struct {
	TickInterval    time.Duration
	LookAhead       float64 // seconds
	FollowTolerance float64 // seconds
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		TickInterval:    DefaultTickInterval,
		LookAhead:       DefaultLookAhead,
		FollowTolerance: DefaultFollowTolerance,
	}
}

// OptionsPatch is a sparse update: nil fields keep their current value.
type OptionsPatch struct {
	TickInterval    *time.Duration `json:"tickIntervalMs,omitempty"`
	LookAhead       *float64       `json:"lookAhead,omitempty"`
	FollowTolerance *float64       `json:"followTolerance,omitempty"`
}

// Merge returns a new Options with the patch applied. The receiver is not
// modified.
func (o Options) Merge(p OptionsPatch) Options {
	out := o
	if p.TickInterval != nil {
		out.TickInterval = *p.TickInterval
	}
	if p.LookAhead != nil {
		out.LookAhead = *p.LookAhead
	}
	if p.FollowTolerance != nil {
		out.FollowTolerance = *p.FollowTolerance
	}
	return out
}
