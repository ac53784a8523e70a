//go:build !linux

package gpio

import "errors"

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// NewRealBank returns an error on non-Linux platforms.
func NewRealBank(chipName string, lines []Line) (*RealBank, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Output is not implemented on non-Linux platforms.
func (b *RealBank) Output(name string) (Output, bool) {
	return nil, false
}

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error {
	return nil
}
