package playback

import (
	"sync"

	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
)

// Topic identifies an event stream published by the engine.
type Topic string

const (
	TopicTimeUpdate      Topic = "timeUpdate"
	TopicPlayStateChange Topic = "playStateChange"
	TopicSpeedChange     Topic = "speedChange"
	TopicNoteStart       Topic = "noteStart"
	TopicNoteEnd         Topic = "noteEnd"
)

// Event payloads, one type per topic.

// TimeUpdate carries the current musical time in seconds.
type TimeUpdate struct {
	Time float64 `json:"time"`
}

// PlayStateChange signals a transition between playing and not playing.
type PlayStateChange struct {
	IsPlaying bool `json:"isPlaying"`
}

// SpeedChange carries the new playback rate.
type SpeedChange struct {
	Speed float64 `json:"speed"`
}

// NoteStart signals that a note instance began sounding.
type NoteStart struct {
	Note     model.Note `json:"note"`
	Velocity float64    `json:"velocity"`
}

// NoteEnd signals that a note instance stopped sounding.
type NoteEnd struct {
	Note model.Note `json:"note"`
}

// Handler receives a published event payload.
type Handler func(event interface{})

// Subscription is the handle returned by Subscribe; pass it to Unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a minimal per-topic publish/subscribe used by the playback engine.
// Delivery is synchronous and in registration order on the publishing
// goroutine. A panicking handler is recovered and logged; it never affects
// other handlers or the publisher.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// Subscribe registers fn for topic and returns an unsubscribe handle.
func (b *Bus) Subscribe(topic Topic, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, fn: fn})
	return &Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes the handler identified by sub. Unknown handles are a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber of topic, in registration order.
func (b *Bus) Publish(topic Topic, event interface{}) {
	b.mu.Lock()
	list := make([]subscriber, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.Unlock()

	for _, s := range list {
		b.deliver(topic, s, event)
	}
}

func (b *Bus) deliver(topic Topic, s subscriber, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				logger.String("topic", string(topic)),
				logger.Any("panic", r))
		}
	}()
	s.fn(event)
}

// Clear drops every subscription. Used on engine disposal.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Topic][]subscriber)
}
