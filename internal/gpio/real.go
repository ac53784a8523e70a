//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// realOutput is one requested output line.
type realOutput struct {
	line *gpiocdev.Line
}

// Set writes the logical level; the line itself applies active-low.
func (o *realOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return o.line.SetValue(v)
}

// RealBank owns the output lines requested from one GPIO chip.
type RealBank struct {
	chip    *gpiocdev.Chip
	lines   map[string]*gpiocdev.Line
	outputs map[string]*realOutput
	order   []string
}

// NewRealBank requests every line as an output driven OFF.
// On any failure the lines already requested are released.
func NewRealBank(chipName string, lines []Line) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("signal-agent"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBank{
		chip:    chip,
		lines:   make(map[string]*gpiocdev.Line),
		outputs: make(map[string]*realOutput),
	}
	for _, l := range lines {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if l.Invert {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(l.Pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", l.Name, l.Pin, err)
		}
		b.lines[l.Name] = line
		b.outputs[l.Name] = &realOutput{line: line}
		b.order = append(b.order, l.Name)
	}
	return b, nil
}

// Output returns the output for a named line.
func (b *RealBank) Output(name string) (Output, bool) {
	o, ok := b.outputs[name]
	return o, ok
}

// Close drives every line OFF and releases it.
// Lines are returned to input with pull-down (matching Pi boot defaults)
// so attached drivers stay quiet through a reboot.
func (b *RealBank) Close() error {
	var errs []error

	for _, name := range b.order {
		line := b.lines[name]
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s off: %w", name, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	b.lines = nil
	b.outputs = nil
	b.order = nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
