// Package pattern compiles blink and siren pattern descriptors into
// quantized tick sequences.
// This package has NO external dependencies (no GPIO, MQTT, locks or timers).
// The tick period is always passed in explicitly.
package pattern

import (
	"fmt"
	"time"
)

// Infinite is the remaining-repeats sentinel for patterns that never end.
// It is never decremented.
const Infinite = -1

// MaxTicks bounds the length of a single compiled cycle.
// At the reference 25ms period this is a little over 27 minutes.
const MaxTicks = 1 << 16

// Descriptor is the declarative form of a pattern: how many times to run
// and an ordered list of signed millisecond durations.
// A non-negative duration holds the output ON, a negative one holds it OFF.
type Descriptor struct {
	// Repeat is the total number of passes. Negative means forever.
	// Zero compiles to an idle program.
	Repeat int `json:"repeat" toml:"repeat" yaml:"repeat"`
	// Scheme is the ordered list of signed durations in milliseconds.
	Scheme []int `json:"scheme" toml:"scheme" yaml:"scheme"`
}

// Off returns the descriptor equivalent of the "off" command token.
func Off() Descriptor {
	return Descriptor{Repeat: 0}
}

// Program is a compiled descriptor: the immutable tick template plus the
// number of refills left after the first pass.
type Program struct {
	Remaining int
	Ticks     []bool
}

// Idle reports whether the program produces no ticks at all.
func (p Program) Idle() bool {
	return len(p.Ticks) == 0
}

// Cycle returns the wall-clock length of one pass at the given period.
func (p Program) Cycle(period time.Duration) time.Duration {
	return time.Duration(len(p.Ticks)) * period
}

// PatternSyntaxError reports a malformed repeat count or duration value.
type PatternSyntaxError struct {
	Field  string // "repeat", "scheme[3]", ...
	Value  string // raw offending value, if any
	Reason string
}

func (e *PatternSyntaxError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("pattern: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("pattern: %s: %s (got %s)", e.Field, e.Reason, e.Value)
}
