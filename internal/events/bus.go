// Package events carries engine and command notifications to observers
// such as the status tracker, without those observers holding engine locks.
package events

import (
	"github.com/kelindar/event"
)

// Event type constants for kelindar/event.
const (
	TypeCommandApplied uint32 = iota + 1
	TypeChannelWriteFailed
	TypePatternAssigned
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CommandApplied is published once per processed command batch.
type CommandApplied struct {
	Keys   int // keys in the batch, aliases included
	Errors int // keys that failed
}

// Type returns the event type identifier for CommandApplied.
func (e CommandApplied) Type() uint32 { return TypeCommandApplied }

// ChannelWriteFailed is published when an output refused a level write.
type ChannelWriteFailed struct {
	Channel string
	Level   bool
	Error   string
}

// Type returns the event type identifier for ChannelWriteFailed.
func (e ChannelWriteFailed) Type() uint32 { return TypeChannelWriteFailed }

// PatternAssigned is published after a channel's pattern was replaced.
// Idle is true for stops and for patterns that compiled to nothing.
type PatternAssigned struct {
	Channel string
	Ticks   int
	Idle    bool
}

// Type returns the event type identifier for PatternAssigned.
func (e PatternAssigned) Type() uint32 { return TypePatternAssigned }

// Bus wraps a kelindar/event dispatcher. A nil *Bus is valid and drops
// everything, so components can be built without one in tests.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of its type. Delivery is
// asynchronous; Publish never waits on a subscriber.
func Publish[T Event](b *Bus, ev T) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers handler for events of type T and returns an
// unsubscribe function.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	if b == nil {
		return func() {}
	}
	return event.Subscribe(b.dispatcher, handler)
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.dispatcher.Close()
}
