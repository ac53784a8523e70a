package mqtt

import "sync"

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Results contains every result event that was published.
	Results []ResultEvent

	// ResultPayloads contains the JSON payloads for results.
	ResultPayloads [][]byte

	// SystemEvents contains every system event that was published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishResultError, if set, is returned by PublishResult.
	PublishResultError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishResult records the result.
func (f *FakePublisher) PublishResult(ev ResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishResultError != nil {
		return f.PublishResultError
	}
	payload, err := FormatResultPayload(ev)
	if err != nil {
		return err
	}
	f.Results = append(f.Results, ev)
	f.ResultPayloads = append(f.ResultPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(ev SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, ev)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Events returns a copy of the recorded system event names.
func (f *FakePublisher) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, ev := range f.SystemEvents {
		names[i] = ev.Event
	}
	return names
}

// Reset clears everything recorded.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results = nil
	f.ResultPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.PublishResultError = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Connected = true
}
