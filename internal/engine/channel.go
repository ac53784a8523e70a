// Package engine schedules compiled patterns onto output channels.
//
// A single Registry owns one entry per channel. A Driver advances every
// entry by one tick per period. Assign and Stop replace an entry's state
// under the same lock the driver holds for a full pass, so no tick ever
// observes a half-replaced pattern.
package engine

import (
	"errors"
	"fmt"
)

// Channel is a named boolean output: an LED, a siren, a buzzer or a
// simulated stand-in. The engine only ever sets its level.
type Channel interface {
	// Set drives the output ON (true) or OFF (false).
	// It must not block for long; it is called with the registry lock held.
	Set(on bool) error
}

// ErrDuplicateChannel is returned by Register for a name already known.
var ErrDuplicateChannel = errors.New("engine: channel already registered")

// UnknownChannelError reports a command for a channel that was never registered.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("engine: unknown channel %q", e.Channel)
}

// ChannelWriteFailure reports a failed level write on one channel.
// The channel keeps its schedule; the next tick writes again.
type ChannelWriteFailure struct {
	Channel string
	Level   bool
	Err     error
}

func (e *ChannelWriteFailure) Error() string {
	return fmt.Sprintf("engine: write %s to %q: %v", levelString(e.Level), e.Channel, e.Err)
}

func (e *ChannelWriteFailure) Unwrap() error {
	return e.Err
}

func levelString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
