package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { order = append(order, 1) })
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { order = append(order, 2) })
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { order = append(order, 3) })

	bus.Publish(TopicTimeUpdate, TimeUpdate{Time: 1})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBusTopicsAreIsolated(t *testing.T) {
	bus := NewBus()

	var got []Topic
	bus.Subscribe(TopicNoteStart, func(interface{}) { got = append(got, TopicNoteStart) })
	bus.Subscribe(TopicNoteEnd, func(interface{}) { got = append(got, TopicNoteEnd) })

	bus.Publish(TopicNoteStart, NoteStart{})
	assert.Equal(t, []Topic{TopicNoteStart}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	sub := bus.Subscribe(TopicTimeUpdate, func(interface{}) { calls++ })

	bus.Publish(TopicTimeUpdate, TimeUpdate{})
	bus.Unsubscribe(sub)
	bus.Publish(TopicTimeUpdate, TimeUpdate{})

	assert.Equal(t, 1, calls)

	// Unknown or nil handles are harmless.
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
}

func TestBusPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { panic("handler bug") })
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(TopicTimeUpdate, TimeUpdate{})
	})
	assert.True(t, delivered)
}

func TestBusClearDropsAllSubscriptions(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(TopicTimeUpdate, func(interface{}) { calls++ })
	bus.Subscribe(TopicNoteStart, func(interface{}) { calls++ })

	bus.Clear()
	bus.Publish(TopicTimeUpdate, TimeUpdate{})
	bus.Publish(TopicNoteStart, NoteStart{})

	assert.Zero(t, calls)
}

func TestBusPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(TopicSpeedChange, SpeedChange{Speed: 2})
	})
}
