package gpio

import "sync"

// FakeOutput is a test double that records every level written to it.
// It is safe for concurrent use, since the tick driver writes from its own
// goroutine while tests read.
type FakeOutput struct {
	mu sync.Mutex

	// levels contains every successfully written level, in order.
	levels []bool

	// setError, if set, will be returned by Set and nothing is recorded.
	setError error

	closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setError != nil {
		return f.setError
	}
	f.levels = append(f.levels, on)
	return nil
}

// SetError makes subsequent writes fail with err (nil clears it).
func (f *FakeOutput) SetError(err error) {
	f.mu.Lock()
	f.setError = err
	f.mu.Unlock()
}

// Levels returns a copy of the recorded levels.
func (f *FakeOutput) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// Level returns the last recorded level, OFF if nothing was written.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded levels and any injected error.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	f.levels = nil
	f.setError = nil
	f.closed = false
	f.mu.Unlock()
}
