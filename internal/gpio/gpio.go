// Package gpio provides output channels with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation records writes for tests, and the noop
// implementation stands in for channels with no pin attached.
package gpio

// Output drives one physical actuator. It satisfies engine.Channel.
type Output interface {
	// Set drives the output ON (true) or OFF (false).
	// Active-low wiring is handled by the implementation.
	Set(on bool) error
}

// Line describes one output pin.
type Line struct {
	Name   string
	Pin    int  // BCM line offset on the chip
	Invert bool // true for active-low actuators
}

// DefaultChip is the Raspberry Pi header chip.
const DefaultChip = "gpiochip0"

// NoPin marks a channel without hardware; it gets a NoopOutput.
const NoPin = -1
